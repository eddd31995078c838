package scan

import "math"

// binKey returns the integer bin index for a bearing. Two bearings share a
// bin exactly when floor(bearing*100)/100 is equal for both.
func binKey(bearing float64) int64 {
	return int64(math.Floor(bearing * binsPerRadian))
}

// inFrontHemisphere reports whether bearing lies in (-pi/2, pi/2].
func inFrontHemisphere(bearing float64) bool {
	return bearing > -math.Pi/2 && bearing <= math.Pi/2
}

// Reduce collapses frame into one representative per 0.01 rad bin.
//
// Samples are grouped by bin key over the unsorted input, so two samples at
// the same key are merged even when they are not adjacent. The representative
// is the minimum-range sample of its bin; on equal ranges the first one seen
// wins. Bins whose representative falls outside the front hemisphere are
// dropped. Output follows first-seen bin order.
func Reduce(frame ScanFrame) ReducedFrame {
	if len(frame) == 0 {
		return ReducedFrame{}
	}

	index := make(map[int64]int, len(frame)/2)
	reps := make([]RangeSample, 0, len(frame)/2)
	for _, s := range frame {
		if math.IsNaN(s.Bearing) || math.IsNaN(s.Range) {
			continue
		}
		key := binKey(s.Bearing)
		i, ok := index[key]
		if !ok {
			index[key] = len(reps)
			reps = append(reps, s)
			continue
		}
		if s.Range < reps[i].Range {
			reps[i] = s
		}
	}

	out := make(ReducedFrame, 0, len(reps))
	for _, s := range reps {
		if inFrontHemisphere(s.Bearing) {
			out = append(out, s)
		}
	}
	return out
}

// Threshold applies the acquisition filter a scanner driver would apply
// before handing the cloud over: samples beyond maxRange (when maxRange > 0)
// or with a negative range are dropped, and when minReturnsPerBin > 1 only
// bins holding at least that many returns are kept.
func Threshold(frame ScanFrame, maxRange float64, minReturnsPerBin int) ScanFrame {
	kept := make(ScanFrame, 0, len(frame))
	for _, s := range frame {
		if math.IsNaN(s.Range) || s.Range < 0 {
			continue
		}
		if maxRange > 0 && s.Range > maxRange {
			continue
		}
		kept = append(kept, s)
	}
	if minReturnsPerBin <= 1 {
		return kept
	}

	counts := make(map[int64]int, len(kept))
	for _, s := range kept {
		counts[binKey(s.Bearing)]++
	}
	out := kept[:0]
	for _, s := range kept {
		if counts[binKey(s.Bearing)] >= minReturnsPerBin {
			out = append(out, s)
		}
	}
	return out
}
