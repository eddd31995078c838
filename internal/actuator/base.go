// Package actuator dispatches motion commands to the robot base.
package actuator

import (
	"context"
	"errors"
	"sync"

	"github.com/banshee-data/scanroam/internal/behavior"
	"github.com/banshee-data/scanroam/internal/monitoring"
)

// ErrWriteFailed is returned when a command was only partially written.
var ErrWriteFailed = errors.New("actuator: failed to write command")

// Base accepts velocity commands: linear in mm/s, angular in rad/s.
type Base interface {
	SetVelocity(ctx context.Context, linear, angular float64) error
	Stop(ctx context.Context) error
}

// LogBase is a Base with no hardware behind it. It logs each command that
// differs from the previous one and remembers the last command.
type LogBase struct {
	mu   sync.Mutex
	last behavior.MotionCommand
	sent bool
}

// NewLogBase returns a LogBase.
func NewLogBase() *LogBase { return &LogBase{} }

// SetVelocity records and logs the command.
func (b *LogBase) SetVelocity(ctx context.Context, linear, angular float64) error {
	cmd := behavior.MotionCommand{Linear: linear, Angular: angular}
	b.mu.Lock()
	changed := !b.sent || cmd != b.last
	b.last = cmd
	b.sent = true
	b.mu.Unlock()
	if changed {
		monitoring.Logf("[actuator] velocity linear=%.1f angular=%.3f", linear, angular)
	}
	return nil
}

// Stop sends (0, 0).
func (b *LogBase) Stop(ctx context.Context) error {
	return b.SetVelocity(ctx, 0, 0)
}

// Last returns the most recent command and whether one was sent.
func (b *LogBase) Last() (behavior.MotionCommand, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.last, b.sent
}
