package sim

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/scanroam/internal/scan"
	"github.com/banshee-data/scanroam/internal/timeutil"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func quietWorld(room Room, base *Base) *World {
	return NewWorld(room, base, WorldConfig{Rays: 720, MaxRange: 12000})
}

func rangeAt(t *testing.T, frame scan.ScanFrame, bearing float64) float64 {
	t.Helper()
	for _, s := range frame {
		if math.Abs(s.Bearing-bearing) < 1e-9 {
			return s.Range
		}
	}
	t.Fatalf("no sample at bearing %f", bearing)
	return 0
}

func TestWorld_CastsBoxWalls(t *testing.T) {
	clock := timeutil.NewMockClock(t0)
	base := NewBase(clock, Pose{})
	world := quietWorld(Box(-4000, -3000, 4000, 3000), base)

	frame, err := world.AcquireScan(context.Background(), 0, 1)
	require.NoError(t, err)
	require.Len(t, frame, 720)

	assert.InDelta(t, 4000, rangeAt(t, frame, 0), 1e-6)
	assert.InDelta(t, 3000, rangeAt(t, frame, math.Pi/2), 1e-6)
	assert.InDelta(t, 3000, rangeAt(t, frame, -math.Pi/2+0), 1e-6)
	assert.InDelta(t, 4000, rangeAt(t, frame, math.Pi), 1e-6)

	for _, s := range frame {
		assert.Greater(t, s.Bearing, -math.Pi)
		assert.LessOrEqual(t, s.Bearing, math.Pi)
	}
}

func TestWorld_RightIsPositiveBearing(t *testing.T) {
	clock := timeutil.NewMockClock(t0)
	base := NewBase(clock, Pose{})
	// Wall 1 m to the right (negative Y when facing +X), far wall on the left.
	world := quietWorld(Box(-4000, -1000, 4000, 3000), base)

	summary := scan.Sectors(mustReduce(t, world), 0.25)
	assert.InDelta(t, 1000, summary.Right, 1)
	assert.InDelta(t, 3000, summary.Left, 1)
}

func mustReduce(t *testing.T, w *World) scan.ReducedFrame {
	t.Helper()
	frame, err := w.AcquireScan(context.Background(), 0, 1)
	require.NoError(t, err)
	return scan.Reduce(frame)
}

func TestWorld_MaxRangeDropsRays(t *testing.T) {
	clock := timeutil.NewMockClock(t0)
	base := NewBase(clock, Pose{})
	world := quietWorld(Box(-4000, -3000, 4000, 3000), base)

	frame, err := world.AcquireScan(context.Background(), 3500, 1)
	require.NoError(t, err)
	for _, s := range frame {
		assert.LessOrEqual(t, s.Range, 3500.0)
	}
	assert.Less(t, len(frame), 720)
}

func TestWorld_NoiseIsSeeded(t *testing.T) {
	cfg := WorldConfig{Rays: 90, MaxRange: 12000, NoiseStd: 10, Seed: 7}
	scanOnce := func() scan.ScanFrame {
		base := NewBase(timeutil.NewMockClock(t0), Pose{})
		frame, err := NewWorld(DefaultRoom(), base, cfg).AcquireScan(context.Background(), 0, 1)
		require.NoError(t, err)
		return frame
	}
	assert.Equal(t, scanOnce(), scanOnce())
}

func TestWorld_CancelledContext(t *testing.T) {
	world := quietWorld(DefaultRoom(), NewBase(timeutil.NewMockClock(t0), Pose{}))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := world.AcquireScan(ctx, 0, 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBase_Kinematics(t *testing.T) {
	clock := timeutil.NewMockClock(t0)
	base := NewBase(clock, Pose{})
	ctx := context.Background()

	require.NoError(t, base.SetVelocity(ctx, 1000, 0))
	clock.Advance(time.Second)
	p := base.Pose()
	assert.InDelta(t, 1000, p.X, 1e-9)
	assert.InDelta(t, 0, p.Y, 1e-9)

	// Positive angular turns right (clockwise).
	require.NoError(t, base.SetVelocity(ctx, 0, 0.5))
	clock.Advance(2 * time.Second)
	assert.InDelta(t, -1.0, base.Pose().Heading, 1e-9)
	assert.InDelta(t, 1000, base.Pose().X, 1e-9)

	require.NoError(t, base.Stop(ctx))
	clock.Advance(time.Second)
	assert.InDelta(t, -1.0, base.Pose().Heading, 1e-9)
	assert.InDelta(t, 1000, base.Travelled(), 1e-9)
}

func TestBase_BlockedByWall(t *testing.T) {
	clock := timeutil.NewMockClock(t0)
	base := NewBase(clock, Pose{X: 3500})
	quietWorld(Box(-4000, -3000, 4000, 3000), base)

	require.NoError(t, base.SetVelocity(context.Background(), 1000, 0))
	clock.Advance(time.Second)
	assert.InDelta(t, 3500, base.Pose().X, 1e-9)
	assert.Equal(t, 1, base.Bumps())
}

func TestRaySegment(t *testing.T) {
	seg := Segment{Point{10, -5}, Point{10, 5}}
	d, ok := raySegment(Point{}, 1, 0, seg)
	require.True(t, ok)
	assert.InDelta(t, 10, d, 1e-12)

	_, ok = raySegment(Point{}, -1, 0, seg)
	assert.False(t, ok, "segment behind the ray")

	_, ok = raySegment(Point{}, 0, 1, seg)
	assert.False(t, ok, "parallel ray")
}
