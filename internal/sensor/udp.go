package sensor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/scanroam/internal/scan"
)

// UDPSourceConfig configures a UDPSource.
type UDPSourceConfig struct {
	Address       string
	RcvBuf        int
	SocketFactory UDPSocketFactory // nil uses net.ListenUDP
}

// UDPStats counts listener activity.
type UDPStats struct {
	Packets   uint64 `json:"packets"`
	Malformed uint64 `json:"malformed"`
	Dropped   uint64 `json:"dropped"` // superseded before acquisition
}

// UDPSource receives scan packets on a UDP socket. Start runs the listener;
// AcquireScan hands the newest complete scan to the caller exactly once.
type UDPSource struct {
	address       string
	rcvBuf        int
	socketFactory UDPSocketFactory

	mu      sync.Mutex
	latest  scan.ScanFrame
	fresh   bool
	lastSeq uint32
	closed  bool

	packets   atomic.Uint64
	malformed atomic.Uint64
	dropped   atomic.Uint64
}

// NewUDPSource creates a source; call Start to begin listening.
func NewUDPSource(cfg UDPSourceConfig) *UDPSource {
	factory := cfg.SocketFactory
	if factory == nil {
		factory = realUDPSocketFactory{}
	}
	return &UDPSource{
		address:       cfg.Address,
		rcvBuf:        cfg.RcvBuf,
		socketFactory: factory,
	}
}

// Start listens until ctx is cancelled or the socket is closed.
func (s *UDPSource) Start(ctx context.Context) error {
	defer s.markClosed()

	addr, err := net.ResolveUDPAddr("udp", s.address)
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address: %w", err)
	}
	conn, err := s.socketFactory.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP address: %w", err)
	}
	defer conn.Close()

	if s.rcvBuf > 0 {
		if err := conn.SetReadBuffer(s.rcvBuf); err != nil {
			log.Printf("[sensor] Warning: failed to set UDP receive buffer to %d: %v", s.rcvBuf, err)
		}
	}
	log.Printf("[sensor] UDP listener started on %s", s.address)

	buffer := make([]byte, 65536)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		_ = conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))

		n, from, err := conn.ReadFromUDP(buffer)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			log.Printf("[sensor] UDP read error: %v", err)
			continue
		}
		s.handlePacket(buffer[:n], from)
	}
}

func (s *UDPSource) handlePacket(data []byte, from *net.UDPAddr) {
	s.packets.Add(1)
	pkt, err := DecodePacket(data)
	if err != nil {
		s.malformed.Add(1)
		log.Printf("[sensor] dropping packet from %v: %v", from, err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fresh {
		s.dropped.Add(1)
	}
	s.latest = pkt.Frame
	s.lastSeq = pkt.Sequence
	s.fresh = true
}

func (s *UDPSource) markClosed() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

// AcquireScan returns the newest scan not yet acquired. It returns ErrNoScan
// when nothing new has arrived and ErrClosed after the listener has stopped
// and the last scan was consumed.
func (s *UDPSource) AcquireScan(ctx context.Context, maxRange float64, minReturnsPerBin int) (scan.ScanFrame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	if !s.fresh {
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return nil, ErrClosed
		}
		return nil, ErrNoScan
	}
	frame := s.latest
	s.latest = nil
	s.fresh = false
	s.mu.Unlock()

	return scan.Threshold(frame, maxRange, minReturnsPerBin), nil
}

// Stats returns a snapshot of the listener counters.
func (s *UDPSource) Stats() UDPStats {
	return UDPStats{
		Packets:   s.packets.Load(),
		Malformed: s.malformed.Load(),
		Dropped:   s.dropped.Load(),
	}
}
