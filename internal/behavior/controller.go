package behavior

import (
	"time"

	"github.com/banshee-data/scanroam/internal/monitoring"
	"github.com/banshee-data/scanroam/internal/scan"
)

// turnState is the Turn behaviour's timer. It is armed once per entry.
type turnState struct {
	armed    bool
	start    time.Time
	duration time.Duration
}

// followState is the FollowWall behaviour's side memory. right survives
// between engagements as the last-used wall side.
type followState struct {
	right   bool
	engaged bool
}

// spiralState is the Spiral behaviour's rotation ramp.
type spiralState struct {
	rate     float64
	lastRamp time.Time
}

// Controller is the behaviour state machine. It is not safe for concurrent
// use; the control loop owns it.
type Controller struct {
	params Params
	rng    Rand
	mode   Mode

	turn   turnState
	follow followState
	spiral spiralState

	// spiralDone would stop Forward from re-entering Spiral once a spiral has
	// run. Nothing sets it, so Spiral stays re-enterable.
	spiralDone bool
}

// NewController returns a Controller in ModeIdle.
func NewController(params Params, rng Rand) *Controller {
	if rng == nil {
		rng = NewRand(uint64(time.Now().UnixNano()))
	}
	return &Controller{
		params: params,
		rng:    rng,
		mode:   ModeIdle,
		spiral: spiralState{rate: params.SpiralInitialRate},
	}
}

// Mode returns the current mode.
func (c *Controller) Mode() Mode { return c.mode }

// Params returns the thresholds the controller was built with.
func (c *Controller) Params() Params { return c.params }

// FollowRight reports which wall side FollowWall tracks (or last tracked).
func (c *Controller) FollowRight() bool { return c.follow.right }

// SpiralRate returns the current spiral rotation rate in rad/s.
func (c *Controller) SpiralRate() float64 { return c.spiral.rate }

// TurnDeadline returns when the current turn ends. ok is false when no turn
// timer is armed.
func (c *Controller) TurnDeadline() (deadline time.Time, ok bool) {
	if !c.turn.armed {
		return time.Time{}, false
	}
	return c.turn.start.Add(c.turn.duration), true
}

// Step advances the state machine by one control cycle.
//
// An empty frame returns the safe-stop decision (ModeIdle, Stop) from any
// mode.
func (c *Controller) Step(frame scan.ReducedFrame, now time.Time) Decision {
	if len(frame) == 0 {
		return c.commit(Decision{Mode: ModeIdle, Command: Stop}, now)
	}

	var d Decision
	switch c.mode {
	case ModeIdle:
		d = Decision{Mode: ModeForward, Command: Stop}
	case ModeForward:
		d = c.stepForward(frame)
	case ModeTurn:
		d = c.stepTurn(now)
	case ModeFollowWall:
		d = c.stepFollowWall(frame)
	case ModeSpiral:
		d = c.stepSpiral(frame, now)
	default:
		d = Decision{Mode: ModeIdle, Command: Stop}
	}
	return c.commit(d, now)
}

// commit applies exit and entry hooks when the mode changes.
func (c *Controller) commit(d Decision, now time.Time) Decision {
	if d.Mode == c.mode {
		return d
	}
	monitoring.Logf("[behavior] %s -> %s cmd=(%.0f, %+.2f)", c.mode, d.Mode, d.Command.Linear, d.Command.Angular)

	switch c.mode {
	case ModeTurn:
		c.turn.armed = false
	case ModeFollowWall:
		c.follow.engaged = false
	}

	switch d.Mode {
	case ModeIdle:
		c.turn = turnState{}
		c.follow.engaged = false
	case ModeTurn:
		c.armTurn(now)
	case ModeSpiral:
		c.spiral.lastRamp = now
	}
	c.mode = d.Mode
	return d
}

func (c *Controller) stepForward(frame scan.ReducedFrame) Decision {
	p := c.params
	sum := scan.Sectors(frame, p.ForwardFrontHalfWidth)

	if sum.Front < p.ForwardObstacle {
		rot := p.TurnRate
		if c.rng.IntN(2) != 0 {
			rot = -rot
		}
		return Decision{Mode: ModeTurn, Command: MotionCommand{Linear: 0, Angular: rot}}
	}

	clear := p.OpenAreaClearance
	if !c.spiralDone && sum.Front > clear && sum.Left > clear && sum.Right > clear && sum.Rear > clear {
		return Decision{Mode: ModeSpiral, Command: MotionCommand{Linear: p.SpiralEntryLinear, Angular: p.SpiralEntryAngular}}
	}

	return Decision{Mode: ModeForward, Command: MotionCommand{Linear: p.ForwardSpeed}}
}

// armTurn samples a fresh turn duration starting at now.
func (c *Controller) armTurn(now time.Time) {
	p := c.params
	jitter := 0
	if p.TurnJitterSteps > 0 {
		jitter = c.rng.IntN(p.TurnJitterSteps + 1)
	}
	c.turn = turnState{
		armed:    true,
		start:    now,
		duration: p.TurnMinDuration + time.Duration(jitter)*time.Millisecond,
	}
	monitoring.Logf("[behavior] turn armed for %v", c.turn.duration)
}

func (c *Controller) stepTurn(now time.Time) Decision {
	p := c.params
	if !c.turn.armed {
		c.armTurn(now)
	}
	if now.Sub(c.turn.start) < c.turn.duration {
		// The entry sign chosen by Forward is not carried into the loop.
		return Decision{Mode: ModeTurn, Command: MotionCommand{Linear: 0, Angular: p.TurnRate}}
	}

	c.turn.armed = false
	if c.rng.IntN(p.TurnDrawOutcomes) < p.TurnFollowOutcomes {
		return Decision{Mode: ModeFollowWall, Command: MotionCommand{Linear: p.TurnExitFollow}}
	}
	return Decision{Mode: ModeForward, Command: MotionCommand{Linear: p.TurnExitForward}}
}

func (c *Controller) stepFollowWall(frame scan.ReducedFrame) Decision {
	p := c.params
	sum := scan.Sectors(frame, p.FollowFrontHalfWidth)

	if !c.follow.engaged {
		c.follow.right = sum.Right < sum.Left
		c.follow.engaged = true
		monitoring.Logf("[behavior] following %s wall (L=%.0f R=%.0f)", sideName(c.follow.right), sum.Left, sum.Right)
	}

	if sum.Front < p.FollowObstacle {
		c.follow.right = !c.follow.right
		rot := p.TurnRate
		if !c.follow.right {
			rot = -rot
		}
		return Decision{Mode: ModeTurn, Command: MotionCommand{Linear: p.FollowEscapeLinear, Angular: rot}}
	}

	side := sum.Left
	if c.follow.right {
		side = sum.Right
	}
	rot := clamp((side-p.FollowStandoff)*p.FollowGain, -p.FollowMaxAngular, p.FollowMaxAngular)
	if !c.follow.right {
		rot = -rot
	}
	return Decision{Mode: ModeFollowWall, Command: MotionCommand{Linear: p.FollowSpeed, Angular: rot}}
}

func (c *Controller) stepSpiral(frame scan.ReducedFrame, now time.Time) Decision {
	p := c.params
	sum := scan.Sectors(frame, p.SpiralFrontHalfWidth)

	if sum.Front < p.SpiralObstacle {
		return Decision{Mode: ModeTurn, Command: MotionCommand{Linear: 0, Angular: p.TurnRate}}
	}

	if sum.Left < p.SpiralWallProximity || sum.Right < p.SpiralWallProximity {
		c.follow.right = sum.Right < sum.Left
		c.follow.engaged = true
		monitoring.Logf("[behavior] spiral found %s wall", sideName(c.follow.right))
		return Decision{Mode: ModeFollowWall, Command: MotionCommand{Linear: p.SpiralWallLinear}}
	}

	if now.Sub(c.spiral.lastRamp) >= p.SpiralRampInterval {
		c.spiral.rate += p.SpiralRampStep
		if c.spiral.rate > p.SpiralMaxRate {
			c.spiral.rate = p.SpiralResetRate
		}
		c.spiral.lastRamp = now
	}
	return Decision{Mode: ModeSpiral, Command: MotionCommand{Linear: p.SpiralSpeed, Angular: c.spiral.rate}}
}

func sideName(right bool) string {
	if right {
		return "right"
	}
	return "left"
}

// clamp keeps value inside [lo, hi].
func clamp(value, lo, hi float64) float64 {
	if value < lo {
		return lo
	}
	if value > hi {
		return hi
	}
	return value
}
