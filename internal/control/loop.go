// Package control runs the perception-decision-actuation cycle: acquire a
// scan, reduce it, step the behaviour controller, dispatch the command and
// publish what happened. Nothing that goes wrong inside a cycle stops the
// loop.
package control

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/banshee-data/scanroam/internal/actuator"
	"github.com/banshee-data/scanroam/internal/behavior"
	"github.com/banshee-data/scanroam/internal/scan"
	"github.com/banshee-data/scanroam/internal/sensor"
	"github.com/banshee-data/scanroam/internal/telemetry"
	"github.com/banshee-data/scanroam/internal/timeutil"
	"github.com/banshee-data/scanroam/internal/viz"
)

var (
	// ErrAcquire wraps acquisition failures; the tick was skipped.
	ErrAcquire = errors.New("acquisition failed")
	// ErrEmptyScan is an acquisition that returned no samples.
	ErrEmptyScan = errors.New("empty scan")
	// ErrDispatch wraps actuator failures; the decision stands.
	ErrDispatch = errors.New("dispatch failed")
)

// Recorder receives per-tick telemetry. Implementations must not block.
type Recorder interface {
	RecordTick(telemetry.Tick)
	RecordTransition(at time.Time, from, to behavior.Mode)
}

// HealthReporter is told the outcome of every acquisition.
type HealthReporter interface {
	AcquireSucceeded()
	AcquireFailed()
}

// Config holds the loop's timing and acquisition limits.
type Config struct {
	Period           time.Duration
	MaxRange         float64
	MinReturnsPerBin int
}

// Deps are the loop's collaborators. Source, Base and Controller are
// required; the rest default to no-ops.
type Deps struct {
	Clock      timeutil.Clock
	Source     sensor.Source
	Base       actuator.Base
	Controller *behavior.Controller
	Sink       viz.Sink
	Recorder   Recorder
	Health     HealthReporter
}

// Status is a point-in-time view of the loop for the API.
type Status struct {
	Mode             behavior.Mode          `json:"mode"`
	LastCommand      behavior.MotionCommand `json:"last_command"`
	Sectors          scan.SectorSummary     `json:"sectors"`
	Ticks            uint64                 `json:"ticks"`
	Stepped          uint64                 `json:"stepped"`
	AcquireFailures  uint64                 `json:"acquire_failures"`
	DispatchFailures uint64                 `json:"dispatch_failures"`
	Transitions      uint64                 `json:"transitions"`
	LastTick         time.Time              `json:"last_tick"`
	LastError        string                 `json:"last_error,omitempty"`
}

// Loop owns the controller and drives it from a ticker. Only the goroutine
// calling Run or Tick touches the controller.
type Loop struct {
	cfg        Config
	clock      timeutil.Clock
	source     sensor.Source
	base       actuator.Base
	controller *behavior.Controller
	sink       viz.Sink
	recorder   Recorder
	health     HealthReporter

	// acquireStreak counts consecutive failed acquisitions for log throttling.
	acquireStreak int

	mu     sync.RWMutex
	status Status
}

// NewLoop validates deps and returns a loop.
func NewLoop(cfg Config, deps Deps) (*Loop, error) {
	if deps.Source == nil {
		return nil, errors.New("control: nil sensor source")
	}
	if deps.Base == nil {
		return nil, errors.New("control: nil actuator base")
	}
	if deps.Controller == nil {
		return nil, errors.New("control: nil behaviour controller")
	}
	if cfg.Period <= 0 {
		return nil, fmt.Errorf("control: period must be positive, got %s", cfg.Period)
	}
	if deps.Clock == nil {
		deps.Clock = timeutil.RealClock{}
	}
	if deps.Sink == nil {
		deps.Sink = viz.NopSink{}
	}
	if deps.Recorder == nil {
		deps.Recorder = nopRecorder{}
	}
	if deps.Health == nil {
		deps.Health = nopHealth{}
	}
	return &Loop{
		cfg:        cfg,
		clock:      deps.Clock,
		source:     deps.Source,
		base:       deps.Base,
		controller: deps.Controller,
		sink:       deps.Sink,
		recorder:   deps.Recorder,
		health:     deps.Health,
		status:     Status{Mode: deps.Controller.Mode()},
	}, nil
}

type nopRecorder struct{}

func (nopRecorder) RecordTick(telemetry.Tick)                               {}
func (nopRecorder) RecordTransition(time.Time, behavior.Mode, behavior.Mode) {}

type nopHealth struct{}

func (nopHealth) AcquireSucceeded() {}
func (nopHealth) AcquireFailed()    {}

// Run ticks every Period until ctx is cancelled, then stops the base.
func (l *Loop) Run(ctx context.Context) error {
	ticker := l.clock.NewTicker(l.cfg.Period)
	defer ticker.Stop()
	log.Printf("[control] loop started, period %s", l.cfg.Period)

	for {
		select {
		case <-ctx.Done():
			l.stopBase(ctx)
			return ctx.Err()
		case <-ticker.C():
			if _, err := l.Tick(ctx); err != nil {
				l.logTickError(err)
			} else {
				l.acquireStreak = 0
			}
		}
	}
}

// stopBase sends the safe-stop command on shutdown.
func (l *Loop) stopBase(ctx context.Context) {
	if err := l.base.Stop(context.WithoutCancel(ctx)); err != nil {
		log.Printf("[control] failed to stop base on shutdown: %v", err)
		return
	}
	l.mu.Lock()
	l.status.LastCommand = behavior.Stop
	l.mu.Unlock()
	log.Printf("[control] base stopped")
}

// logTickError logs dispatch failures every time and acquisition failures
// on the first tick of a streak and every 50 after.
func (l *Loop) logTickError(err error) {
	if !errors.Is(err, ErrAcquire) {
		l.acquireStreak = 0
		log.Printf("[control] %v", err)
		return
	}
	l.acquireStreak++
	if l.acquireStreak == 1 || l.acquireStreak%50 == 0 {
		log.Printf("[control] %v (%d consecutive)", err, l.acquireStreak)
	}
}

// Tick runs one cycle. On an acquisition error nothing is stepped or
// dispatched and the controller is untouched. On a dispatch error the
// decision has already been taken and is kept.
func (l *Loop) Tick(ctx context.Context) (behavior.Decision, error) {
	now := l.clock.Now()
	seq := l.beginTick(now)

	raw, err := l.source.AcquireScan(ctx, l.cfg.MaxRange, l.cfg.MinReturnsPerBin)
	if err == nil && len(raw) == 0 {
		err = ErrEmptyScan
	}
	if err != nil {
		return l.failAcquire(seq, now, err)
	}
	l.health.AcquireSucceeded()

	prev := l.controller.Mode()
	reduced := scan.Reduce(raw)
	decision := l.controller.Step(reduced, now)
	sectors := scan.Sectors(reduced, l.controller.Params().FrontHalfWidth(decision.Mode))

	tick := telemetry.Tick{
		Seq:       seq,
		Time:      now,
		Status:    telemetry.StatusOK,
		Decision:  decision,
		RawPoints: len(raw),
		Sectors:   sectors,
		Stats:     scan.Stats(reduced),
	}

	var dispatchErr error
	if err := l.base.SetVelocity(ctx, decision.Command.Linear, decision.Command.Angular); err != nil {
		dispatchErr = fmt.Errorf("%w: %w", ErrDispatch, err)
		tick.Status = telemetry.StatusDispatchError
		tick.Err = err.Error()
	}

	l.sink.Publish(viz.Snapshot{
		Time:    now,
		Mode:    decision.Mode,
		Command: decision.Command,
		Sectors: sectors,
		Frame:   reduced,
	})
	l.recorder.RecordTick(tick)
	if decision.Mode != prev {
		l.recorder.RecordTransition(now, prev, decision.Mode)
	}

	l.mu.Lock()
	l.status.Stepped++
	l.status.Mode = decision.Mode
	l.status.Sectors = sectors
	if decision.Mode != prev {
		l.status.Transitions++
	}
	if dispatchErr != nil {
		l.status.DispatchFailures++
		l.status.LastError = dispatchErr.Error()
	} else {
		l.status.LastCommand = decision.Command
	}
	l.mu.Unlock()

	return decision, dispatchErr
}

func (l *Loop) beginTick(now time.Time) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.status.Ticks++
	l.status.LastTick = now
	return l.status.Ticks
}

func (l *Loop) failAcquire(seq uint64, now time.Time, err error) (behavior.Decision, error) {
	l.health.AcquireFailed()
	err = fmt.Errorf("%w: %w", ErrAcquire, err)

	l.mu.Lock()
	l.status.AcquireFailures++
	l.status.LastError = err.Error()
	mode := l.status.Mode
	l.mu.Unlock()

	l.recorder.RecordTick(telemetry.Tick{
		Seq:      seq,
		Time:     now,
		Status:   telemetry.StatusAcquireError,
		Decision: behavior.Decision{Mode: mode},
		Err:      err.Error(),
	})
	return behavior.Decision{Mode: mode}, err
}

// Status returns a snapshot of the loop's counters.
func (l *Loop) Status() Status {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.status
}
