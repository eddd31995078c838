// Package discovery advertises the controller's HTTP server over mDNS and
// finds controllers on the local network.
package discovery

import (
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
)

const (
	// ServiceType is the DNS-SD service type.
	ServiceType = "_scanroam._tcp"
	// ServiceDomain is the mDNS domain.
	ServiceDomain = "local."
)

type shutdowner interface{ Shutdown() }

type registerFunc func(instance, service, domain string, port int, text []string, ifaces []net.Interface) (shutdowner, error)

func zeroconfRegister(instance, service, domain string, port int, text []string, ifaces []net.Interface) (shutdowner, error) {
	server, err := zeroconf.Register(instance, service, domain, port, text, ifaces)
	if err != nil {
		return nil, err
	}
	return server, nil
}

// Advertiser publishes one service instance.
type Advertiser struct {
	instance string
	port     int
	text     []string
	register registerFunc

	mu     sync.Mutex
	server shutdowner
}

// NewAdvertiser describes an instance named "<hostname>-scanroam" on port.
// text holds key=value metadata records.
func NewAdvertiser(port int, text ...string) *Advertiser {
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		hostname = "robot"
	}
	return &Advertiser{
		instance: hostname + "-scanroam",
		port:     port,
		text:     text,
		register: zeroconfRegister,
	}
}

// Instance returns the advertised instance name.
func (a *Advertiser) Instance() string { return a.instance }

// Start registers the service. Starting twice is a no-op.
func (a *Advertiser) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.server != nil {
		return nil
	}
	server, err := a.register(a.instance, ServiceType, ServiceDomain, a.port, a.text, nil)
	if err != nil {
		return fmt.Errorf("failed to register mDNS service: %w", err)
	}
	a.server = server
	log.Printf("[discovery] advertising %s.%s%s on port %d", a.instance, ServiceType, ServiceDomain, a.port)
	return nil
}

// Running reports whether the service is registered.
func (a *Advertiser) Running() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.server != nil
}

// Stop withdraws the service.
func (a *Advertiser) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.server == nil {
		return
	}
	a.server.Shutdown()
	a.server = nil
	log.Printf("[discovery] stopped advertising %s", a.instance)
}

// Instance is a controller found on the network.
type Instance struct {
	Name string
	Host string
	Port int
	Addr []net.IP
	Text []string
}

// URL returns an http URL for the first address of the instance.
func (i Instance) URL() string {
	host := i.Host
	if len(i.Addr) > 0 {
		host = i.Addr[0].String()
	}
	return "http://" + net.JoinHostPort(host, fmt.Sprint(i.Port))
}

// Browse collects controllers that answer within timeout.
func Browse(ctx context.Context, timeout time.Duration) ([]Instance, error) {
	resolver, err := zeroconf.NewResolver()
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS resolver: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	var found []Instance
	done := make(chan struct{})
	go func() {
		defer close(done)
		for e := range entries {
			found = append(found, fromEntry(e))
		}
	}()

	if err := resolver.Browse(ctx, ServiceType, ServiceDomain, entries); err != nil {
		return nil, fmt.Errorf("failed to browse: %w", err)
	}
	<-ctx.Done()
	<-done
	return found, nil
}

func fromEntry(e *zeroconf.ServiceEntry) Instance {
	return Instance{
		Name: e.Instance,
		Host: e.HostName,
		Port: e.Port,
		Addr: e.AddrIPv4,
		Text: e.Text,
	}
}
