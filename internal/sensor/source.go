// Package sensor acquires raw range scans for the control loop.
//
// A Source returns the most recent full scan each time it is asked. Two
// transports are provided: UDPSource listens for live scan packets and
// PCAPSource replays packets from a capture file.
package sensor

import (
	"context"
	"errors"

	"github.com/banshee-data/scanroam/internal/scan"
)

var (
	// ErrNoScan is returned when no new scan arrived since the last acquisition.
	ErrNoScan = errors.New("sensor: no scan available")
	// ErrClosed is returned once the source has stopped producing scans.
	ErrClosed = errors.New("sensor: source closed")
)

// Source yields raw scan frames. maxRange and minReturnsPerBin are applied
// before the frame is returned (see scan.Threshold).
type Source interface {
	AcquireScan(ctx context.Context, maxRange float64, minReturnsPerBin int) (scan.ScanFrame, error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(ctx context.Context, maxRange float64, minReturnsPerBin int) (scan.ScanFrame, error)

// AcquireScan calls f.
func (f SourceFunc) AcquireScan(ctx context.Context, maxRange float64, minReturnsPerBin int) (scan.ScanFrame, error) {
	return f(ctx, maxRange, minReturnsPerBin)
}
