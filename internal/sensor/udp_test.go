package sensor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/scanroam/internal/scan"
)

func mustEncode(t *testing.T, seq uint32, frame scan.ScanFrame) []byte {
	t.Helper()
	data, err := EncodePacket(seq, frame)
	require.NoError(t, err)
	return data
}

// startSource runs the listener until every queued packet is consumed.
func startSource(t *testing.T, sock *MockUDPSocket) (*UDPSource, context.CancelFunc, <-chan error) {
	t.Helper()
	src := NewUDPSource(UDPSourceConfig{
		Address:       "127.0.0.1:0",
		RcvBuf:        4096,
		SocketFactory: &MockUDPSocketFactory{Socket: sock},
	})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- src.Start(ctx) }()
	require.Eventually(t, sock.Drained, time.Second, time.Millisecond)
	return src, cancel, done
}

func TestUDPSource_NoScanBeforePackets(t *testing.T) {
	src := NewUDPSource(UDPSourceConfig{Address: ":0"})
	_, err := src.AcquireScan(context.Background(), 0, 1)
	assert.ErrorIs(t, err, ErrNoScan)
}

func TestUDPSource_AcquireLatestOnce(t *testing.T) {
	first := scan.ScanFrame{scan.NewRangeSample(0, 1000)}
	second := scan.ScanFrame{scan.NewRangeSample(0.1, 2000), scan.NewRangeSample(0.2, 3000)}
	sock := NewMockUDPSocket(mustEncode(t, 1, first), mustEncode(t, 2, second))

	src, cancel, done := startSource(t, sock)
	defer cancel()

	require.Eventually(t, func() bool { return src.Stats().Packets == 2 }, time.Second, time.Millisecond)

	frame, err := src.AcquireScan(context.Background(), 0, 1)
	require.NoError(t, err)
	require.Len(t, frame, 2)
	assert.InDelta(t, 2000, frame[0].Range, 1e-3)

	_, err = src.AcquireScan(context.Background(), 0, 1)
	assert.ErrorIs(t, err, ErrNoScan)
	assert.Equal(t, uint64(1), src.Stats().Dropped)
	assert.Equal(t, 4096, sock.ReadBufferSize)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	_, err = src.AcquireScan(context.Background(), 0, 1)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestUDPSource_AppliesThreshold(t *testing.T) {
	frame := scan.ScanFrame{
		scan.NewRangeSample(0, 1000),
		scan.NewRangeSample(0.5, 15000),
	}
	sock := NewMockUDPSocket(mustEncode(t, 1, frame))
	src, cancel, _ := startSource(t, sock)
	defer cancel()
	require.Eventually(t, func() bool { return src.Stats().Packets == 1 }, time.Second, time.Millisecond)

	got, err := src.AcquireScan(context.Background(), 12000, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.InDelta(t, 1000, got[0].Range, 1e-3)
}

func TestUDPSource_MalformedPacketsCounted(t *testing.T) {
	sock := NewMockUDPSocket([]byte("garbage"), mustEncode(t, 3, testFrame()))
	src, cancel, _ := startSource(t, sock)
	defer cancel()

	require.Eventually(t, func() bool { return src.Stats().Packets == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, uint64(1), src.Stats().Malformed)

	frame, err := src.AcquireScan(context.Background(), 0, 1)
	require.NoError(t, err)
	assert.Len(t, frame, len(testFrame()))
}

func TestUDPSource_ListenError(t *testing.T) {
	src := NewUDPSource(UDPSourceConfig{
		Address:       "127.0.0.1:0",
		SocketFactory: &MockUDPSocketFactory{Error: errors.New("address in use")},
	})
	err := src.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "address in use")

	_, err = src.AcquireScan(context.Background(), 0, 1)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestUDPSource_SocketClosedEndsListener(t *testing.T) {
	sock := NewMockUDPSocket()
	src := NewUDPSource(UDPSourceConfig{Address: "127.0.0.1:0", SocketFactory: &MockUDPSocketFactory{Socket: sock}})
	done := make(chan error, 1)
	go func() { done <- src.Start(context.Background()) }()

	require.NoError(t, sock.Close())
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("listener did not stop after socket close")
	}
}

func TestUDPSource_CancelledContext(t *testing.T) {
	src := NewUDPSource(UDPSourceConfig{Address: ":0"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := src.AcquireScan(ctx, 0, 1)
	assert.ErrorIs(t, err, context.Canceled)
}
