package sim

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/banshee-data/scanroam/internal/behavior"
	"github.com/banshee-data/scanroam/internal/timeutil"
)

// Pose is a planar position and heading. Heading is measured
// counter-clockwise from +X in radians.
type Pose struct {
	X, Y    float64
	Heading float64
}

// DefaultRadius is the robot footprint radius in mm.
const DefaultRadius = 200

// Base integrates velocity commands over clock time with a unicycle model.
type Base struct {
	clock  timeutil.Clock
	radius float64

	mu        sync.Mutex
	pose      Pose
	cmd       behavior.MotionCommand
	updated   time.Time
	obstruct  func(from, to Point, radius float64) bool
	bumps     int
	travelled float64
}

// NewBase places a base at start.
func NewBase(clock timeutil.Clock, start Pose) *Base {
	return &Base{
		clock:   clock,
		radius:  DefaultRadius,
		pose:    start,
		updated: clock.Now(),
	}
}

func (b *Base) setObstruction(f func(from, to Point, radius float64) bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.obstruct = f
}

// SetVelocity integrates the previous command up to now and adopts the new one.
func (b *Base) SetVelocity(ctx context.Context, linear, angular float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.advanceLocked()
	b.cmd = behavior.MotionCommand{Linear: linear, Angular: angular}
	return nil
}

// Stop halts the base.
func (b *Base) Stop(ctx context.Context) error {
	return b.SetVelocity(context.WithoutCancel(ctx), 0, 0)
}

// Pose returns the pose at the current clock time.
func (b *Base) Pose() Pose {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.advanceLocked()
	return b.pose
}

// Bumps counts how many integration steps were blocked by a wall.
func (b *Base) Bumps() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bumps
}

// Travelled returns the distance covered in mm.
func (b *Base) Travelled() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.travelled
}

func (b *Base) advanceLocked() {
	now := b.clock.Now()
	dt := now.Sub(b.updated).Seconds()
	b.updated = now
	if dt <= 0 {
		return
	}

	heading := b.pose.Heading - b.cmd.Angular*dt
	mid := (b.pose.Heading + heading) / 2
	next := Point{
		X: b.pose.X + b.cmd.Linear*dt*math.Cos(mid),
		Y: b.pose.Y + b.cmd.Linear*dt*math.Sin(mid),
	}
	b.pose.Heading = math.Remainder(heading, 2*math.Pi)

	if b.cmd.Linear == 0 {
		return
	}
	if b.obstruct != nil && b.obstruct(Point{b.pose.X, b.pose.Y}, next, b.radius) {
		b.bumps++
		return
	}
	b.travelled += math.Abs(b.cmd.Linear * dt)
	b.pose.X, b.pose.Y = next.X, next.Y
}
