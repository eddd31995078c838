package telemetry

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/scanroam/internal/behavior"
)

type event struct {
	tick     *Tick
	at       time.Time
	from, to behavior.Mode
}

// Recorder writes one run's telemetry from a background goroutine so the
// control loop never waits on the database. Events that do not fit in the
// queue are dropped and counted.
type Recorder struct {
	store *Store
	runID string
	queue chan event

	dropped atomic.Uint64
	written atomic.Uint64

	closeOnce sync.Once
	done      chan struct{}
}

// NewRecorder returns a recorder for runID with the given queue length.
func NewRecorder(store *Store, runID string, queueLen int) *Recorder {
	if queueLen <= 0 {
		queueLen = 256
	}
	return &Recorder{
		store: store,
		runID: runID,
		queue: make(chan event, queueLen),
		done:  make(chan struct{}),
	}
}

// RunID returns the run being recorded.
func (r *Recorder) RunID() string { return r.runID }

// RecordTick enqueues a tick.
func (r *Recorder) RecordTick(t Tick) {
	r.enqueue(event{tick: &t})
}

// RecordTransition enqueues a mode change.
func (r *Recorder) RecordTransition(at time.Time, from, to behavior.Mode) {
	r.enqueue(event{at: at, from: from, to: to})
}

func (r *Recorder) enqueue(e event) {
	select {
	case r.queue <- e:
	default:
		if r.dropped.Add(1)%100 == 1 {
			log.Printf("[telemetry] queue full, dropped %d events so far", r.dropped.Load())
		}
	}
}

// Run drains the queue until Close is called, then writes what remains.
// It outlives the control context so the final ticks of a run are kept.
func (r *Recorder) Run() {
	ctx := context.Background()
	for {
		select {
		case e := <-r.queue:
			r.write(ctx, e)
		case <-r.done:
			for {
				select {
				case e := <-r.queue:
					r.write(ctx, e)
				default:
					return
				}
			}
		}
	}
}

// Close stops Run after the queue is drained.
func (r *Recorder) Close() {
	r.closeOnce.Do(func() { close(r.done) })
}

func (r *Recorder) write(ctx context.Context, e event) {
	var err error
	if e.tick != nil {
		err = r.store.RecordTick(ctx, r.runID, *e.tick)
	} else {
		err = r.store.RecordTransition(ctx, r.runID, e.at, e.from, e.to)
	}
	if err != nil {
		log.Printf("[telemetry] %v", err)
		return
	}
	r.written.Add(1)
}

// Stats returns written and dropped event counts.
func (r *Recorder) Stats() (written, dropped uint64) {
	return r.written.Load(), r.dropped.Load()
}
