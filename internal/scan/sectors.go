package scan

import "math"

// RearHalfWidth is the half-width of the rear sector around +/-pi.
const RearHalfWidth = 0.4

// Sectors summarises frame into the nearest range per sector.
//
// frontHalfWidth selects the front window |bearing| < frontHalfWidth; each
// behaviour passes its own tolerance. Left is (-pi/2, 0), right is (0, pi/2)
// and rear is ||bearing| - pi| < RearHalfWidth. A sector without samples
// reports NoReturn.
func Sectors(frame ReducedFrame, frontHalfWidth float64) SectorSummary {
	sum := EmptySummary()
	for _, s := range frame {
		b := s.Bearing
		if math.Abs(b) < frontHalfWidth && s.Range < sum.Front {
			sum.Front = s.Range
		}
		if b > -math.Pi/2 && b < 0 && s.Range < sum.Left {
			sum.Left = s.Range
		}
		if b > 0 && b < math.Pi/2 && s.Range < sum.Right {
			sum.Right = s.Range
		}
		if math.Abs(math.Abs(b)-math.Pi) < RearHalfWidth && s.Range < sum.Rear {
			sum.Rear = s.Range
		}
	}
	return sum
}
