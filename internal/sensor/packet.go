package sensor

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/banshee-data/scanroam/internal/scan"
)

// Scan packet layout, little endian:
//
//	offset 0   magic "SCN1"
//	offset 4   uint32 sequence number
//	offset 8   uint16 sample count N
//	offset 10  N x (float32 bearing rad, float32 range mm)
//
// One packet carries one full sweep.
const (
	PacketMagic      = "SCN1"
	packetHeaderSize = 10
	packetSampleSize = 8
	// MaxPacketSamples keeps a packet inside a single UDP datagram.
	MaxPacketSamples = (65507 - packetHeaderSize) / packetSampleSize
)

// Packet is a decoded scan packet.
type Packet struct {
	Sequence uint32
	Frame    scan.ScanFrame
}

// EncodePacket serialises a frame into the scan packet format.
func EncodePacket(seq uint32, frame scan.ScanFrame) ([]byte, error) {
	if len(frame) > MaxPacketSamples {
		return nil, fmt.Errorf("frame has %d samples, max %d per packet", len(frame), MaxPacketSamples)
	}
	buf := make([]byte, packetHeaderSize+len(frame)*packetSampleSize)
	copy(buf[0:4], PacketMagic)
	binary.LittleEndian.PutUint32(buf[4:8], seq)
	binary.LittleEndian.PutUint16(buf[8:10], uint16(len(frame)))
	off := packetHeaderSize
	for _, s := range frame {
		binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(float32(s.Bearing)))
		binary.LittleEndian.PutUint32(buf[off+4:], math.Float32bits(float32(s.Range)))
		off += packetSampleSize
	}
	return buf, nil
}

// DecodePacket parses a scan packet. Samples are rebuilt with
// scan.NewRangeSample so their cartesian coordinates are consistent.
func DecodePacket(data []byte) (Packet, error) {
	if len(data) < packetHeaderSize {
		return Packet{}, fmt.Errorf("packet too short: %d bytes", len(data))
	}
	if !bytes.Equal(data[0:4], []byte(PacketMagic)) {
		return Packet{}, fmt.Errorf("bad packet magic %q", data[0:4])
	}
	seq := binary.LittleEndian.Uint32(data[4:8])
	count := int(binary.LittleEndian.Uint16(data[8:10]))
	want := packetHeaderSize + count*packetSampleSize
	if len(data) < want {
		return Packet{}, fmt.Errorf("packet truncated: have %d bytes, need %d for %d samples", len(data), want, count)
	}

	frame := make(scan.ScanFrame, 0, count)
	off := packetHeaderSize
	for i := 0; i < count; i++ {
		bearing := float64(math.Float32frombits(binary.LittleEndian.Uint32(data[off:])))
		rng := float64(math.Float32frombits(binary.LittleEndian.Uint32(data[off+4:])))
		frame = append(frame, scan.NewRangeSample(bearing, rng))
		off += packetSampleSize
	}
	return Packet{Sequence: seq, Frame: frame}, nil
}
