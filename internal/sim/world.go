// Package sim provides a simulated room and robot base so the controller
// can run end to end without hardware.
//
// Bearings follow the scanner convention used throughout: zero is straight
// ahead, positive bearings are to the right and negative to the left.
// Positive angular velocity turns the robot to the right.
package sim

import (
	"context"
	"math"
	"math/rand/v2"
	"sync"

	"github.com/banshee-data/scanroam/internal/scan"
)

// Point is a position in millimetres.
type Point struct{ X, Y float64 }

// Segment is a wall between two points.
type Segment struct{ A, B Point }

// Room is a set of wall segments.
type Room []Segment

// Box returns the four walls of an axis-aligned rectangle.
func Box(minX, minY, maxX, maxY float64) Room {
	a, b := Point{minX, minY}, Point{maxX, minY}
	c, d := Point{maxX, maxY}, Point{minX, maxY}
	return Room{{a, b}, {b, c}, {c, d}, {d, a}}
}

// DefaultRoom is an 8 m by 6 m room with a pillar off centre.
func DefaultRoom() Room {
	room := Box(-4000, -3000, 4000, 3000)
	return append(room, Box(1500, 500, 2100, 1100)...)
}

// WorldConfig configures ray casting.
type WorldConfig struct {
	Rays     int     // rays per sweep over the full circle
	MaxRange float64 // rays that hit nothing within this range return no sample
	NoiseStd float64 // gaussian range noise in mm
	Seed     uint64
}

// DefaultWorldConfig is a 720 ray, 12 m scanner with 5 mm noise.
func DefaultWorldConfig() WorldConfig {
	return WorldConfig{Rays: 720, MaxRange: 12000, NoiseStd: 5, Seed: 1}
}

// World ray-casts scans of a Room from the pose of a Base.
type World struct {
	room Room
	base *Base
	cfg  WorldConfig

	mu  sync.Mutex
	rng *rand.Rand
}

// NewWorld attaches base to room. The base stops translating when it would
// come within its radius of a wall.
func NewWorld(room Room, base *Base, cfg WorldConfig) *World {
	if cfg.Rays <= 0 {
		cfg.Rays = DefaultWorldConfig().Rays
	}
	if cfg.MaxRange <= 0 {
		cfg.MaxRange = DefaultWorldConfig().MaxRange
	}
	w := &World{
		room: room,
		base: base,
		cfg:  cfg,
		rng:  rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x5eed)),
	}
	base.setObstruction(w.obstructed)
	return w
}

// AcquireScan casts one sweep from the base's current pose.
func (w *World) AcquireScan(ctx context.Context, maxRange float64, minReturnsPerBin int) (scan.ScanFrame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pose := w.base.Pose()

	w.mu.Lock()
	defer w.mu.Unlock()

	frame := make(scan.ScanFrame, 0, w.cfg.Rays)
	step := 2 * math.Pi / float64(w.cfg.Rays)
	for i := 0; i < w.cfg.Rays; i++ {
		bearing := math.Pi - float64(i)*step // (-pi, pi]
		dir := pose.Heading - bearing
		r, ok := w.cast(Point{pose.X, pose.Y}, dir)
		if !ok {
			continue
		}
		if w.cfg.NoiseStd > 0 {
			r = math.Max(0, r+w.rng.NormFloat64()*w.cfg.NoiseStd)
		}
		frame = append(frame, scan.NewRangeSample(bearing, r))
	}
	return scan.Threshold(frame, maxRange, minReturnsPerBin), nil
}

// cast returns the distance to the nearest wall along dir.
func (w *World) cast(origin Point, dir float64) (float64, bool) {
	dx, dy := math.Cos(dir), math.Sin(dir)
	best := math.Inf(1)
	for _, s := range w.room {
		if t, ok := raySegment(origin, dx, dy, s); ok && t < best {
			best = t
		}
	}
	if best > w.cfg.MaxRange {
		return 0, false
	}
	return best, true
}

// raySegment intersects the ray origin + t*(dx, dy), t >= 0, with s.
func raySegment(o Point, dx, dy float64, s Segment) (float64, bool) {
	ex, ey := s.B.X-s.A.X, s.B.Y-s.A.Y
	denom := dx*ey - dy*ex
	if math.Abs(denom) < 1e-12 {
		return 0, false
	}
	ax, ay := s.A.X-o.X, s.A.Y-o.Y
	t := (ax*ey - ay*ex) / denom
	u := (ax*dy - ay*dx) / denom
	if t < 0 || u < 0 || u > 1 {
		return 0, false
	}
	return t, true
}

// obstructed reports whether moving a disc of radius r from one point to
// another crosses a wall or ends overlapping one.
func (w *World) obstructed(from, to Point, r float64) bool {
	move := Segment{from, to}
	for _, s := range w.room {
		if pointSegmentDistance(to, s) < r || segmentsIntersect(move, s) {
			return true
		}
	}
	return false
}

func segmentsIntersect(p, q Segment) bool {
	dx, dy := p.B.X-p.A.X, p.B.Y-p.A.Y
	length := math.Hypot(dx, dy)
	if length == 0 {
		return false
	}
	t, ok := raySegment(p.A, dx/length, dy/length, q)
	return ok && t <= length
}

func pointSegmentDistance(p Point, s Segment) float64 {
	ex, ey := s.B.X-s.A.X, s.B.Y-s.A.Y
	l2 := ex*ex + ey*ey
	if l2 == 0 {
		return math.Hypot(p.X-s.A.X, p.Y-s.A.Y)
	}
	t := ((p.X-s.A.X)*ex + (p.Y-s.A.Y)*ey) / l2
	t = math.Max(0, math.Min(1, t))
	return math.Hypot(p.X-(s.A.X+t*ex), p.Y-(s.A.Y+t*ey))
}
