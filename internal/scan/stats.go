package scan

import "gonum.org/v1/gonum/stat"

// FrameStats describes the range distribution of a reduced frame.
type FrameStats struct {
	Points    int     `json:"points"`
	MinRange  float64 `json:"min_range"`
	MeanRange float64 `json:"mean_range"`
	StdRange  float64 `json:"std_range"`
}

// Stats computes FrameStats for frame. An empty frame yields zero counts and
// MinRange of NoReturn.
func Stats(frame ReducedFrame) FrameStats {
	fs := FrameStats{Points: len(frame), MinRange: NoReturn}
	if len(frame) == 0 {
		return fs
	}
	ranges := frame.Ranges()
	for _, r := range ranges {
		if r < fs.MinRange {
			fs.MinRange = r
		}
	}
	fs.MeanRange, fs.StdRange = stat.MeanStdDev(ranges, nil)
	if len(ranges) < 2 {
		fs.StdRange = 0
	}
	return fs
}
