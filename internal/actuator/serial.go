package actuator

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"go.bug.st/serial"
	"tailscale.com/tsweb"

	"github.com/banshee-data/scanroam/internal/behavior"
)

// Port is the minimal serial port surface SerialBase needs.
type Port interface {
	io.ReadWriter
	io.Closer
}

// SerialBase drives a differential base over a serial line. Each command
// is one line:
//
//	V <linear mm/s> <angular rad/s>\n
//
// The base answers with "OK" or "ERR <reason>" lines, which Monitor reads.
type SerialBase[T Port] struct {
	port T

	writeMu sync.Mutex

	stateMu   sync.Mutex
	last      behavior.MotionCommand
	sent      bool
	lastReply string
	errs      int
}

// NewSerialBase wraps an open port.
func NewSerialBase[T Port](port T) *SerialBase[T] {
	return &SerialBase[T]{port: port}
}

// OpenSerialBase opens the serial device at path.
func OpenSerialBase(path string, opts PortOptions) (*SerialBase[serial.Port], error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", path, err)
	}
	return NewSerialBase[serial.Port](port), nil
}

// FormatCommand renders the wire form of a velocity command.
func FormatCommand(linear, angular float64) string {
	return fmt.Sprintf("V %.1f %.3f\n", linear, angular)
}

// ParseCommand parses a line produced by FormatCommand.
func ParseCommand(line string) (behavior.MotionCommand, error) {
	fields := strings.Fields(line)
	if len(fields) != 3 || fields[0] != "V" {
		return behavior.MotionCommand{}, fmt.Errorf("malformed command %q", line)
	}
	linear, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return behavior.MotionCommand{}, fmt.Errorf("bad linear velocity in %q: %w", line, err)
	}
	angular, err := strconv.ParseFloat(fields[2], 64)
	if err != nil {
		return behavior.MotionCommand{}, fmt.Errorf("bad angular velocity in %q: %w", line, err)
	}
	return behavior.MotionCommand{Linear: linear, Angular: angular}, nil
}

// SetVelocity writes one command line to the port.
func (b *SerialBase[T]) SetVelocity(ctx context.Context, linear, angular float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	line := FormatCommand(linear, angular)

	b.writeMu.Lock()
	n, err := b.port.Write([]byte(line))
	b.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to write velocity command: %w", err)
	}
	if n != len(line) {
		return ErrWriteFailed
	}

	b.stateMu.Lock()
	b.last = behavior.MotionCommand{Linear: linear, Angular: angular}
	b.sent = true
	b.stateMu.Unlock()
	return nil
}

// Stop commands (0, 0). It ignores ctx cancellation so it can run during
// shutdown.
func (b *SerialBase[T]) Stop(ctx context.Context) error {
	return b.SetVelocity(context.WithoutCancel(ctx), 0, 0)
}

// Monitor reads reply lines from the base until ctx is done or the port
// closes. ERR replies are logged and counted.
func (b *SerialBase[T]) Monitor(ctx context.Context) error {
	scanner := bufio.NewScanner(b.port)
	lines := make(chan string)
	scanErr := make(chan error, 1)

	go func() {
		defer close(lines)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			scanErr <- err
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-scanErr:
			return err
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			b.handleReply(strings.TrimSpace(line))
		}
	}
}

func (b *SerialBase[T]) handleReply(line string) {
	if line == "" {
		return
	}
	b.stateMu.Lock()
	b.lastReply = line
	if strings.HasPrefix(line, "ERR") {
		b.errs++
	}
	b.stateMu.Unlock()
	if strings.HasPrefix(line, "ERR") {
		log.Printf("[actuator] base reported error: %s", line)
	}
}

// Status summarises the base link.
type Status struct {
	LastCommand behavior.MotionCommand `json:"last_command"`
	Sent        bool                   `json:"sent"`
	LastReply   string                 `json:"last_reply"`
	Errors      int                    `json:"errors"`
}

// Status returns the current link summary.
func (b *SerialBase[T]) Status() Status {
	b.stateMu.Lock()
	defer b.stateMu.Unlock()
	return Status{LastCommand: b.last, Sent: b.sent, LastReply: b.lastReply, Errors: b.errs}
}

// Close closes the port.
func (b *SerialBase[T]) Close() error {
	return b.port.Close()
}

// AttachAdminRoutes registers manual drive endpoints on the debug mux.
func (b *SerialBase[T]) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.HandleFunc("base", "serial base link status", func(w http.ResponseWriter, r *http.Request) {
		st := b.Status()
		fmt.Fprintf(w, "last command: linear=%.1f angular=%.3f (sent=%v)\n", st.LastCommand.Linear, st.LastCommand.Angular, st.Sent)
		fmt.Fprintf(w, "last reply: %q\nerrors: %d\n", st.LastReply, st.Errors)
	})

	// POST command=V <linear> <angular>
	debug.HandleSilentFunc("base-send", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		cmd, err := ParseCommand(r.FormValue("command"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := b.SetVelocity(r.Context(), cmd.Linear, cmd.Angular); err != nil {
			http.Error(w, "Failed to write command", http.StatusInternalServerError)
			return
		}
		io.WriteString(w, strings.TrimSpace(FormatCommand(cmd.Linear, cmd.Angular)))
	})
}
