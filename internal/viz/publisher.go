// Package viz shows what the controller sees: the latest reduced frame and
// decision, served as an ECharts page, a PNG, JSON and a websocket stream.
// Nothing here can affect control.
package viz

import (
	"sync"
	"time"

	"github.com/banshee-data/scanroam/internal/behavior"
	"github.com/banshee-data/scanroam/internal/scan"
)

// Snapshot is one control cycle as seen by the operator.
type Snapshot struct {
	Seq     uint64                 `json:"seq"`
	Time    time.Time              `json:"time"`
	Mode    behavior.Mode          `json:"mode"`
	Command behavior.MotionCommand `json:"command"`
	Sectors scan.SectorSummary     `json:"sectors"`
	Frame   scan.ReducedFrame      `json:"frame"`
}

// Sink receives snapshots. Publish must not block the caller.
type Sink interface {
	Publish(Snapshot)
}

// NopSink discards snapshots.
type NopSink struct{}

// Publish does nothing.
func (NopSink) Publish(Snapshot) {}

const subscriberBuffer = 4

// Publisher keeps the latest snapshot and fans it out to subscribers.
// Slow subscribers miss snapshots rather than stall the publisher.
type Publisher struct {
	mu     sync.RWMutex
	latest Snapshot
	has    bool
	seq    uint64
	subs   map[chan Snapshot]struct{}
}

// NewPublisher returns an empty publisher.
func NewPublisher() *Publisher {
	return &Publisher{subs: make(map[chan Snapshot]struct{})}
}

// Publish stores a copy of s and offers it to every subscriber.
func (p *Publisher) Publish(s Snapshot) {
	s.Frame = s.Frame.Clone()

	p.mu.Lock()
	defer p.mu.Unlock()
	p.seq++
	s.Seq = p.seq
	p.latest = s
	p.has = true
	for ch := range p.subs {
		select {
		case ch <- s:
		default:
		}
	}
}

// Latest returns the most recent snapshot and whether there is one. The
// returned frame is a copy.
func (p *Publisher) Latest() (Snapshot, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s := p.latest
	s.Frame = s.Frame.Clone()
	return s, p.has
}

// Subscribe registers a channel that receives future snapshots. Call the
// returned function to unsubscribe.
func (p *Publisher) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, subscriberBuffer)
	p.mu.Lock()
	p.subs[ch] = struct{}{}
	p.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.subs, ch)
			p.mu.Unlock()
		})
	}
}

// Subscribers returns the number of live subscribers.
func (p *Publisher) Subscribers() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.subs)
}
