package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/banshee-data/scanroam/internal/actuator"
	"github.com/banshee-data/scanroam/internal/config"
	"github.com/banshee-data/scanroam/internal/sensor"
	"github.com/banshee-data/scanroam/internal/sim"
	"github.com/banshee-data/scanroam/internal/timeutil"
)

// simBase is shared by the sim sensor and the sim actuator so the simulated
// robot sees the room from where it has driven to.
type simBase struct {
	once sync.Once
	base *sim.Base
}

func (s *simBase) get(clock timeutil.Clock) *sim.Base {
	s.once.Do(func() { s.base = sim.NewBase(clock, sim.Pose{}) })
	return s.base
}

// sensorHandle is the wired sensor with its background work and teardown.
type sensorHandle struct {
	source sensor.Source
	stats  func() interface{}
	run    func(ctx context.Context) error
	close  func() error
}

func openSensor(cfg *config.TuningConfig, clock timeutil.Clock, sb *simBase) (*sensorHandle, error) {
	switch cfg.GetSensorMode() {
	case config.SensorUDP:
		src := sensor.NewUDPSource(sensor.UDPSourceConfig{
			Address: cfg.GetSensorAddr(),
			RcvBuf:  cfg.GetSensorRcvBuf(),
		})
		return &sensorHandle{
			source: src,
			stats:  func() interface{} { return src.Stats() },
			run:    src.Start,
		}, nil

	case config.SensorPCAP:
		src, err := sensor.OpenPCAPSource(sensor.PCAPSourceConfig{
			Path:    cfg.GetPCAPFile(),
			UDPPort: cfg.GetPCAPUDPPort(),
			Loop:    cfg.GetPCAPLoop(),
		})
		if err != nil {
			return nil, err
		}
		return &sensorHandle{
			source: src,
			stats:  func() interface{} { return map[string]int{"scans": src.Scans()} },
			close:  src.Close,
		}, nil

	case config.SensorSim:
		worldCfg := sim.DefaultWorldConfig()
		worldCfg.MaxRange = cfg.GetMaxRange()
		if seed := cfg.GetSeed(); seed != 0 {
			worldCfg.Seed = seed
		}
		base := sb.get(clock)
		world := sim.NewWorld(sim.DefaultRoom(), base, worldCfg)
		return &sensorHandle{
			source: world,
			stats: func() interface{} {
				p := base.Pose()
				return map[string]interface{}{
					"pose":      p,
					"bumps":     base.Bumps(),
					"travelled": base.Travelled(),
				}
			},
		}, nil
	}
	return nil, fmt.Errorf("unknown sensor mode %q", cfg.GetSensorMode())
}

// actuatorHandle is the wired base with its background work and teardown.
type actuatorHandle struct {
	base   actuator.Base
	stats  func() interface{}
	routes func(mux *http.ServeMux)
	run    func(ctx context.Context) error
	close  func() error
}

func openActuator(cfg *config.TuningConfig, clock timeutil.Clock, sb *simBase) (*actuatorHandle, error) {
	switch cfg.GetActuatorMode() {
	case config.ActuatorSerial:
		opts := actuator.PortOptions{
			BaudRate: cfg.GetSerialBaudRate(),
			DataBits: cfg.GetSerialDataBits(),
			StopBits: cfg.GetSerialStopBits(),
			Parity:   cfg.GetSerialParity(),
		}
		base, err := actuator.OpenSerialBase(cfg.GetSerialPort(), opts)
		if err != nil {
			return nil, err
		}
		return &actuatorHandle{
			base:   base,
			stats:  func() interface{} { return base.Status() },
			routes: base.AttachAdminRoutes,
			run:    base.Monitor,
			close:  base.Close,
		}, nil

	case config.ActuatorSim:
		return &actuatorHandle{base: sb.get(clock)}, nil

	case config.ActuatorNone:
		base := actuator.NewLogBase()
		return &actuatorHandle{
			base: base,
			stats: func() interface{} {
				last, ok := base.Last()
				if !ok {
					return nil
				}
				return map[string]interface{}{"last_command": last}
			},
		}, nil
	}
	return nil, fmt.Errorf("unknown actuator mode %q", cfg.GetActuatorMode())
}

// listenPort extracts the numeric port from a listen address such as ":8080".
func listenPort(addr string) (int, error) {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(port)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("listen address %q has no fixed port", addr)
	}
	return n, nil
}

// goRun starts fn on wg and logs how it ended.
func goRun(ctx context.Context, wg *sync.WaitGroup, name string, fn func(ctx context.Context) error) {
	if fn == nil {
		return
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("[%s] stopped with error: %v", name, err)
		}
		log.Printf("[%s] routine terminated", name)
	}()
}

// serveHTTP runs server until ctx is cancelled, then shuts it down.
func serveHTTP(ctx context.Context, server *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	log.Printf("[http] listening on %s", server.Addr)

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	log.Println("[http] shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("[http] shutdown error: %v", err)
		if err := server.Close(); err != nil {
			log.Printf("[http] force close error: %v", err)
		}
	}
	return nil
}
