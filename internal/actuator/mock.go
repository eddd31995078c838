package actuator

import (
	"bytes"
	"errors"
	"sync"
)

// TestablePort is an in-memory Port. Reads block until data is added or
// the port is closed.
type TestablePort struct {
	mu   sync.Mutex
	cond *sync.Cond

	ReadBuffer  *bytes.Buffer
	WriteBuffer *bytes.Buffer

	// WriteError is returned by the next Write call if set.
	WriteError error
	// ShortWrite makes Write report one byte fewer than requested.
	ShortWrite bool
	Closed     bool
	WriteCalls int
}

// NewTestablePort returns an empty port.
func NewTestablePort() *TestablePort {
	p := &TestablePort{
		ReadBuffer:  bytes.NewBuffer(nil),
		WriteBuffer: bytes.NewBuffer(nil),
	}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Read waits for data.
func (p *TestablePort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for !p.Closed && p.ReadBuffer.Len() == 0 {
		p.cond.Wait()
	}
	if p.ReadBuffer.Len() == 0 {
		return 0, errors.New("serial port closed")
	}
	return p.ReadBuffer.Read(b)
}

// Write appends to WriteBuffer.
func (p *TestablePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.WriteCalls++
	if p.Closed {
		return 0, errors.New("serial port closed")
	}
	if p.WriteError != nil {
		err := p.WriteError
		p.WriteError = nil
		return 0, err
	}
	if p.ShortWrite && len(b) > 0 {
		return p.WriteBuffer.Write(b[:len(b)-1])
	}
	return p.WriteBuffer.Write(b)
}

// Close wakes blocked readers.
func (p *TestablePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Closed = true
	p.cond.Broadcast()
	return nil
}

// AddReadData queues bytes for Read.
func (p *TestablePort) AddReadData(data []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ReadBuffer.Write(data)
	p.cond.Broadcast()
}

// Written returns a copy of everything written.
func (p *TestablePort) Written() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.WriteBuffer.String()
}
