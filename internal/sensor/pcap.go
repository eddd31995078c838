package sensor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"sync"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/banshee-data/scanroam/internal/scan"
)

// packetReader is satisfied by both pcapgo.Reader and pcapgo.NgReader.
type packetReader interface {
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
	LinkType() layers.LinkType
}

// PCAPSourceConfig configures a PCAPSource.
type PCAPSourceConfig struct {
	Path    string
	UDPPort int  // only UDP packets to this destination port are used; 0 accepts any
	Loop    bool // restart from the beginning at end of file
}

// PCAPSource replays scan packets from a pcap or pcapng capture. Each
// AcquireScan returns the next scan packet in the file.
type PCAPSource struct {
	cfg PCAPSourceConfig

	mu      sync.Mutex
	file    *os.File
	reader  packetReader
	packets int
	done    bool
}

// OpenPCAPSource opens the capture and validates its header.
func OpenPCAPSource(cfg PCAPSourceConfig) (*PCAPSource, error) {
	s := &PCAPSource{cfg: cfg}
	if err := s.open(); err != nil {
		return nil, err
	}
	log.Printf("[sensor] replaying %s (udp port %d, loop=%v)", cfg.Path, cfg.UDPPort, cfg.Loop)
	return s, nil
}

func (s *PCAPSource) open() error {
	f, err := os.Open(s.cfg.Path)
	if err != nil {
		return fmt.Errorf("failed to open PCAP file %s: %w", s.cfg.Path, err)
	}
	r, err := newPacketReader(f)
	if err != nil {
		f.Close()
		return fmt.Errorf("failed to read PCAP header from %s: %w", s.cfg.Path, err)
	}
	s.file = f
	s.reader = r
	return nil
}

// newPacketReader sniffs the file magic and picks the classic or ng reader.
func newPacketReader(f *os.File) (packetReader, error) {
	br := bufio.NewReader(f)
	magic, err := br.Peek(4)
	if err != nil {
		return nil, err
	}
	// pcapng section header block type
	if magic[0] == 0x0a && magic[1] == 0x0d && magic[2] == 0x0d && magic[3] == 0x0a {
		return pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
	}
	return pcapgo.NewReader(br)
}

// AcquireScan returns the next scan in the capture, thresholded.
func (s *PCAPSource) AcquireScan(ctx context.Context, maxRange float64, minReturnsPerBin int) (scan.ScanFrame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if s.done {
			return nil, ErrClosed
		}

		data, _, err := s.reader.ReadPacketData()
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			if err := s.rewind(); err != nil {
				return nil, err
			}
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read PCAP packet: %w", err)
		}

		payload, ok := s.scanPayload(data)
		if !ok {
			continue
		}
		pkt, err := DecodePacket(payload)
		if err != nil {
			log.Printf("[sensor] skipping PCAP packet %d: %v", s.packets, err)
			continue
		}
		s.packets++
		return scan.Threshold(pkt.Frame, maxRange, minReturnsPerBin), nil
	}
}

// scanPayload extracts the UDP payload when the packet targets the scan port.
func (s *PCAPSource) scanPayload(data []byte) ([]byte, bool) {
	packet := gopacket.NewPacket(data, s.reader.LinkType(), gopacket.DecodeOptions{Lazy: true, NoCopy: true})
	udpLayer := packet.Layer(layers.LayerTypeUDP)
	if udpLayer == nil {
		return nil, false
	}
	udp, ok := udpLayer.(*layers.UDP)
	if !ok {
		return nil, false
	}
	if s.cfg.UDPPort != 0 && int(udp.DstPort) != s.cfg.UDPPort {
		return nil, false
	}
	if len(udp.Payload) == 0 {
		return nil, false
	}
	return udp.Payload, true
}

func (s *PCAPSource) rewind() error {
	if !s.cfg.Loop {
		log.Printf("[sensor] PCAP replay complete: %d scans", s.packets)
		s.done = true
		return ErrClosed
	}
	if s.packets == 0 {
		s.done = true
		return fmt.Errorf("no scan packets in %s: %w", s.cfg.Path, ErrClosed)
	}
	s.file.Close()
	if err := s.open(); err != nil {
		s.done = true
		return err
	}
	return nil
}

// Scans returns how many scans have been replayed so far.
func (s *PCAPSource) Scans() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.packets
}

// Close releases the capture file.
func (s *PCAPSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.done = true
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}
