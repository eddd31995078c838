package scan

import (
	"fmt"
	"math"
)

// NoReturn is reported for a sector with no samples. It compares larger than
// any range a real scanner produces so "no data" reads as "no obstacle".
const NoReturn = 1e6

// BinWidth is the angular resolution of the reducer in radians.
const BinWidth = 0.01

const binsPerRadian = 100

// RangeSample is a single scanner return.
//
// Bearing is in radians relative to the robot's forward axis, zero straight
// ahead, in (-pi, pi]. Range is in millimetres. X and Y are the Cartesian
// projection of the polar reading.
type RangeSample struct {
	Bearing float64 `json:"bearing"`
	Range   float64 `json:"range"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
}

// NewRangeSample builds a sample from polar coordinates and fills in the
// Cartesian projection.
func NewRangeSample(bearing, rng float64) RangeSample {
	return RangeSample{
		Bearing: bearing,
		Range:   rng,
		X:       rng * math.Cos(bearing),
		Y:       rng * math.Sin(bearing),
	}
}

func (s RangeSample) String() string {
	return fmt.Sprintf("(%.3f rad, %.0f mm)", s.Bearing, s.Range)
}

// ScanFrame is the raw point cloud captured at one instant. Order carries no
// meaning.
type ScanFrame []RangeSample

// ReducedFrame holds at most one sample per angular bin, all with bearings in
// (-pi/2, pi/2]. Order carries no meaning.
type ReducedFrame []RangeSample

// Clone returns an independent copy of the frame.
func (f ReducedFrame) Clone() ReducedFrame {
	if f == nil {
		return nil
	}
	out := make(ReducedFrame, len(f))
	copy(out, f)
	return out
}

// Ranges returns the range of every sample in frame order.
func (f ReducedFrame) Ranges() []float64 {
	out := make([]float64, len(f))
	for i, s := range f {
		out[i] = s.Range
	}
	return out
}

// SectorSummary is the nearest range observed in each named sector.
type SectorSummary struct {
	Front float64 `json:"front"`
	Left  float64 `json:"left"`
	Right float64 `json:"right"`
	Rear  float64 `json:"rear"`
}

// EmptySummary returns a summary with every sector at NoReturn.
func EmptySummary() SectorSummary {
	return SectorSummary{Front: NoReturn, Left: NoReturn, Right: NoReturn, Rear: NoReturn}
}
