package scan

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSectors_Empty(t *testing.T) {
	t.Parallel()
	assert.Equal(t, EmptySummary(), Sectors(nil, 0.25))
}

func TestSectors_Windows(t *testing.T) {
	t.Parallel()

	frame := ReducedFrame{
		NewRangeSample(0.0, 2000),
		NewRangeSample(0.24, 1800),
		NewRangeSample(-0.8, 1200),
		NewRangeSample(0.9, 1100),
		NewRangeSample(1.4, 3000),
	}

	tests := []struct {
		name      string
		halfWidth float64
		want      SectorSummary
	}{
		{
			name:      "forward tolerance",
			halfWidth: 0.25,
			want:      SectorSummary{Front: 1800, Left: 1200, Right: 1100, Rear: NoReturn},
		},
		{
			name:      "follow wall tolerance",
			halfWidth: 0.2,
			want:      SectorSummary{Front: 2000, Left: 1200, Right: 1100, Rear: NoReturn},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Sectors(frame, tt.halfWidth))
		})
	}
}

func TestSectors_ZeroBearingIsFrontOnly(t *testing.T) {
	t.Parallel()
	got := Sectors(ReducedFrame{NewRangeSample(0, 500)}, 0.3)
	assert.Equal(t, 500.0, got.Front)
	assert.Equal(t, NoReturn, got.Left)
	assert.Equal(t, NoReturn, got.Right)
}

func TestSectors_Rear(t *testing.T) {
	t.Parallel()
	// Rear samples never survive Reduce, but Sectors accepts any frame.
	got := Sectors(ReducedFrame{NewRangeSample(math.Pi-0.1, 700), NewRangeSample(-math.Pi+0.3, 650)}, 0.25)
	assert.Equal(t, 650.0, got.Rear)
	assert.Equal(t, NoReturn, got.Front)
}

func TestSectors_NoReturnExceedsRealRanges(t *testing.T) {
	t.Parallel()
	assert.Greater(t, NoReturn, 12000.0*10)
}

func TestStats(t *testing.T) {
	t.Parallel()

	empty := Stats(nil)
	assert.Equal(t, 0, empty.Points)
	assert.Equal(t, NoReturn, empty.MinRange)

	one := Stats(ReducedFrame{NewRangeSample(0, 800)})
	assert.Equal(t, 800.0, one.MeanRange)
	assert.Equal(t, 0.0, one.StdRange)

	fs := Stats(ReducedFrame{NewRangeSample(0, 1000), NewRangeSample(0.1, 2000), NewRangeSample(0.2, 3000)})
	assert.Equal(t, 3, fs.Points)
	assert.Equal(t, 1000.0, fs.MinRange)
	assert.InDelta(t, 2000.0, fs.MeanRange, 1e-9)
	assert.InDelta(t, 1000.0, fs.StdRange, 1e-9)
}
