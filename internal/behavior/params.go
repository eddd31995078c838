package behavior

import "time"

// Params holds every threshold and speed used by the state machine.
// Distances are millimetres, speeds mm/s or rad/s.
type Params struct {
	// Forward
	ForwardFrontHalfWidth float64
	ForwardObstacle       float64
	ForwardSpeed          float64
	OpenAreaClearance     float64
	SpiralEntryLinear     float64
	SpiralEntryAngular    float64

	// Turn
	TurnRate        float64
	TurnMinDuration time.Duration
	// TurnJitterSteps is the number of extra millisecond steps drawn on top of
	// TurnMinDuration; 2000 gives a duration in [1.0, 3.0] s.
	TurnJitterSteps    int
	TurnFollowOutcomes int // draws below this go to FollowWall
	TurnDrawOutcomes   int
	TurnExitFollow     float64
	TurnExitForward    float64

	// FollowWall
	FollowFrontHalfWidth float64
	FollowObstacle       float64
	FollowEscapeLinear   float64
	FollowStandoff       float64
	FollowGain           float64
	FollowMaxAngular     float64
	FollowSpeed          float64

	// Spiral
	SpiralFrontHalfWidth float64
	SpiralObstacle       float64
	SpiralWallProximity  float64
	SpiralWallLinear     float64
	SpiralSpeed          float64
	SpiralInitialRate    float64
	SpiralRampStep       float64
	SpiralRampInterval   time.Duration
	SpiralMaxRate        float64
	SpiralResetRate      float64
}

// DefaultParams returns the tuned values the controller ships with.
func DefaultParams() Params {
	return Params{
		ForwardFrontHalfWidth: 0.25,
		ForwardObstacle:       900,
		ForwardSpeed:          1000,
		OpenAreaClearance:     1400,
		SpiralEntryLinear:     500,
		SpiralEntryAngular:    0.5,

		TurnRate:           0.6,
		TurnMinDuration:    time.Second,
		TurnJitterSteps:    2000,
		TurnFollowOutcomes: 5,
		TurnDrawOutcomes:   10,
		TurnExitFollow:     800,
		TurnExitForward:    1000,

		FollowFrontHalfWidth: 0.2,
		FollowObstacle:       900,
		FollowEscapeLinear:   1000,
		FollowStandoff:       800,
		FollowGain:           1.0 / 1000,
		FollowMaxAngular:     0.2,
		FollowSpeed:          600,

		SpiralFrontHalfWidth: 0.3,
		SpiralObstacle:       800,
		SpiralWallProximity:  1000,
		SpiralWallLinear:     800,
		SpiralSpeed:          700,
		SpiralInitialRate:    0.7,
		SpiralRampStep:       0.02,
		SpiralRampInterval:   200 * time.Millisecond,
		SpiralMaxRate:        0.9,
		SpiralResetRate:      0.1,
	}
}

// FrontHalfWidth returns the front sector half-width mode reasons with.
// Modes without their own width use Forward's.
func (p Params) FrontHalfWidth(m Mode) float64 {
	switch m {
	case ModeFollowWall:
		return p.FollowFrontHalfWidth
	case ModeSpiral:
		return p.SpiralFrontHalfWidth
	default:
		return p.ForwardFrontHalfWidth
	}
}
