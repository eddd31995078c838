package actuator

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"

	"github.com/banshee-data/scanroam/internal/behavior"
	"github.com/banshee-data/scanroam/internal/monitoring"
	"github.com/banshee-data/scanroam/internal/testutil"
)

func TestMain(m *testing.M) {
	monitoring.SetLogger(nil)
	os.Exit(m.Run())
}

func TestFormatParseCommand(t *testing.T) {
	line := FormatCommand(1000, -0.6)
	assert.Equal(t, "V 1000.0 -0.600\n", line)

	cmd, err := ParseCommand(line)
	require.NoError(t, err)
	assert.Equal(t, behavior.MotionCommand{Linear: 1000, Angular: -0.6}, cmd)

	for _, bad := range []string{"", "V 1", "X 1 2", "V a 2", "V 1 b"} {
		_, err := ParseCommand(bad)
		assert.Error(t, err, "input %q", bad)
	}
}

func TestSerialBase_SetVelocity(t *testing.T) {
	port := NewTestablePort()
	base := NewSerialBase(port)

	require.NoError(t, base.SetVelocity(context.Background(), 500, 0.5))
	require.NoError(t, base.Stop(context.Background()))

	assert.Equal(t, "V 500.0 0.500\nV 0.0 0.000\n", port.Written())
	st := base.Status()
	assert.True(t, st.Sent)
	assert.Equal(t, behavior.Stop, st.LastCommand)
}

func TestSerialBase_WriteErrors(t *testing.T) {
	port := NewTestablePort()
	base := NewSerialBase(port)

	port.WriteError = errors.New("unplugged")
	err := base.SetVelocity(context.Background(), 1, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unplugged")
	assert.False(t, base.Status().Sent, "failed write must not update state")

	port.ShortWrite = true
	err = base.SetVelocity(context.Background(), 1, 1)
	assert.ErrorIs(t, err, ErrWriteFailed)
}

func TestSerialBase_StopIgnoresCancellation(t *testing.T) {
	port := NewTestablePort()
	base := NewSerialBase(port)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, base.SetVelocity(ctx, 1, 1), context.Canceled)
	require.NoError(t, base.Stop(ctx))
	assert.Equal(t, "V 0.0 0.000\n", port.Written())
}

func TestSerialBase_Monitor(t *testing.T) {
	port := NewTestablePort()
	base := NewSerialBase(port)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- base.Monitor(ctx) }()

	port.AddReadData([]byte("OK\nERR overcurrent\n\nOK\n"))
	require.Eventually(t, func() bool {
		st := base.Status()
		return st.LastReply == "OK" && st.Errors == 1
	}, time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Monitor did not return after cancel")
	}
	require.NoError(t, base.Close())
}

func TestSerialBase_AdminRoutes(t *testing.T) {
	port := NewTestablePort()
	base := NewSerialBase(port)
	mux := http.NewServeMux()
	base.AttachAdminRoutes(mux)

	form := url.Values{"command": {"V 300 0.1"}}
	req := testutil.LocalFormRequest(http.MethodPost, "/debug/base-send", form)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "V 300.0 0.100\n", port.Written())

	req = testutil.LocalRequest(http.MethodGet, "/debug/base-send")
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	form = url.Values{"command": {"go fast"}}
	req = testutil.LocalFormRequest(http.MethodPost, "/debug/base-send", form)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLogBase(t *testing.T) {
	base := NewLogBase()
	_, sent := base.Last()
	assert.False(t, sent)

	require.NoError(t, base.SetVelocity(context.Background(), 700, 0.72))
	cmd, sent := base.Last()
	assert.True(t, sent)
	assert.Equal(t, behavior.MotionCommand{Linear: 700, Angular: 0.72}, cmd)

	require.NoError(t, base.Stop(context.Background()))
	cmd, _ = base.Last()
	assert.Equal(t, behavior.Stop, cmd)
}

func TestPortOptions(t *testing.T) {
	tests := []struct {
		name    string
		in      PortOptions
		want    PortOptions
		wantErr bool
	}{
		{"defaults", PortOptions{}, PortOptions{BaudRate: DefaultBaudRate, DataBits: 8, StopBits: 1, Parity: "N"}, false},
		{"even words", PortOptions{BaudRate: 9600, DataBits: 7, StopBits: 2, Parity: "even"}, PortOptions{BaudRate: 9600, DataBits: 7, StopBits: 2, Parity: "E"}, false},
		{"bad data bits", PortOptions{DataBits: 9}, PortOptions{}, true},
		{"bad stop bits", PortOptions{StopBits: 3}, PortOptions{}, true},
		{"bad parity", PortOptions{Parity: "mark"}, PortOptions{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.in.Normalize()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPortOptions_SerialMode(t *testing.T) {
	mode, err := PortOptions{StopBits: 2, Parity: "O"}.SerialMode()
	require.NoError(t, err)
	assert.Equal(t, DefaultBaudRate, mode.BaudRate)
	assert.Equal(t, serial.TwoStopBits, mode.StopBits)
	assert.Equal(t, serial.OddParity, mode.Parity)

	mode, err = PortOptions{}.SerialMode()
	require.NoError(t, err)
	assert.Equal(t, serial.OneStopBit, mode.StopBits)
	assert.Equal(t, serial.NoParity, mode.Parity)

	_, err = PortOptions{DataBits: 4}.SerialMode()
	assert.Error(t, err)
}
