// Command roam runs the reactive exploration controller: it reads scans from
// a UDP scanner, a capture file or the simulated room, and drives a serial
// motor base, the simulated base or nothing at all.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/scanroam/internal/api"
	"github.com/banshee-data/scanroam/internal/behavior"
	"github.com/banshee-data/scanroam/internal/config"
	"github.com/banshee-data/scanroam/internal/control"
	"github.com/banshee-data/scanroam/internal/discovery"
	"github.com/banshee-data/scanroam/internal/health"
	"github.com/banshee-data/scanroam/internal/telemetry"
	"github.com/banshee-data/scanroam/internal/timeutil"
	"github.com/banshee-data/scanroam/internal/version"
	"github.com/banshee-data/scanroam/internal/viz"
)

var flags = registerFlags(flag.CommandLine)

func main() {
	flag.Parse()

	if *flags.showVersion {
		fmt.Println(version.Get())
		return
	}

	cfg, err := loadConfig(*flags.configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := flags.apply(flag.CommandLine, cfg); err != nil {
		log.Fatal(err)
	}

	if *flags.startupCheck {
		if err := printSummary(os.Stdout, cfg); err != nil {
			log.Fatal(err)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatal(err)
	}
	log.Printf("Graceful shutdown complete")
}

// run wires every component from cfg and blocks until ctx is cancelled.
func run(ctx context.Context, cfg *config.TuningConfig) error {
	clock := timeutil.RealClock{}
	log.Printf("starting %s", version.Get())

	seed := cfg.GetSeed()
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	log.Printf("[control] behaviour seed %d", seed)

	var sb simBase
	sens, err := openSensor(cfg, clock, &sb)
	if err != nil {
		return fmt.Errorf("failed to open sensor: %w", err)
	}
	if sens.close != nil {
		defer sens.close()
	}
	act, err := openActuator(cfg, clock, &sb)
	if err != nil {
		return fmt.Errorf("failed to open actuator: %w", err)
	}
	if act.close != nil {
		defer act.close()
	}

	mux := http.NewServeMux()
	publisher := viz.NewPublisher()
	publisher.AttachAdminRoutes(mux)
	mux.Handle("/api/scan/stream", publisher.StreamHandler())
	if act.routes != nil {
		act.routes(mux)
	}

	reporter := health.NewReporter(cfg.GetHealthFailureThreshold())

	var recorder control.Recorder
	var telemetryDone func()
	if path := cfg.GetTelemetryDB(); path != "" {
		rec, done, err := openTelemetry(ctx, path, cfg, seed, clock)
		if err != nil {
			return err
		}
		recorder, telemetryDone = rec.recorder, done
		rec.store.AttachAdminRoutes(mux)
	}

	loop, err := control.NewLoop(control.Config{
		Period:           cfg.GetPeriod(),
		MaxRange:         cfg.GetMaxRange(),
		MinReturnsPerBin: cfg.GetMinReturnsPerBin(),
	}, control.Deps{
		Clock:      clock,
		Source:     sens.source,
		Base:       act.base,
		Controller: behavior.NewController(cfg.BehaviorParams(), behavior.NewRand(seed)),
		Sink:       publisher,
		Recorder:   recorder,
		Health:     reporter,
	})
	if err != nil {
		return err
	}

	api.NewServer(api.Options{
		Loop:          loop,
		Health:        reporter,
		Config:        cfg,
		Clock:         clock,
		SensorStats:   sens.stats,
		ActuatorStats: act.stats,
	}).AttachRoutes(mux)

	var wg sync.WaitGroup
	goRun(ctx, &wg, "sensor", sens.run)
	goRun(ctx, &wg, "actuator", act.run)
	if addr := cfg.GetGRPCListen(); addr != "" {
		goRun(ctx, &wg, "health", func(ctx context.Context) error { return reporter.Serve(ctx, addr) })
	}

	server := &http.Server{
		Addr:    cfg.GetHTTPListen(),
		Handler: api.LoggingMiddleware(mux),
	}
	goRun(ctx, &wg, "http", func(ctx context.Context) error { return serveHTTP(ctx, server) })

	if cfg.GetDiscovery() {
		if adv, err := advertise(cfg); err != nil {
			log.Printf("[discovery] not advertising: %v", err)
		} else {
			defer adv.Stop()
		}
	}

	// The loop stops the base itself once ctx is cancelled.
	if err := loop.Run(ctx); err != nil && ctx.Err() == nil {
		log.Printf("[control] loop exited: %v", err)
	}

	wg.Wait()
	if telemetryDone != nil {
		telemetryDone()
	}
	return nil
}

type telemetryHandle struct {
	store    *telemetry.Store
	recorder *telemetry.Recorder
}

// openTelemetry opens the store, starts a run and the background writer.
// The returned func drains the writer, ends the run and closes the store.
func openTelemetry(ctx context.Context, path string, cfg *config.TuningConfig, seed uint64, clock timeutil.Clock) (*telemetryHandle, func(), error) {
	store, err := telemetry.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open telemetry db: %w", err)
	}
	cfgJSON, _ := json.Marshal(cfg)
	runID, err := store.StartRun(ctx, clock.Now(), telemetry.RunMeta{
		Version:      version.Version,
		SensorMode:   cfg.GetSensorMode(),
		ActuatorMode: cfg.GetActuatorMode(),
		Seed:         seed,
		ConfigJSON:   string(cfgJSON),
	})
	if err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("failed to start telemetry run: %w", err)
	}
	log.Printf("[telemetry] recording run %s to %s", runID, path)

	recorder := telemetry.NewRecorder(store, runID, 256)
	done := make(chan struct{})
	go func() {
		defer close(done)
		recorder.Run()
	}()

	finish := func() {
		recorder.Close()
		<-done
		written, dropped := recorder.Stats()
		if err := store.EndRun(context.Background(), runID, clock.Now()); err != nil {
			log.Printf("[telemetry] failed to end run: %v", err)
		}
		if err := store.Close(); err != nil {
			log.Printf("[telemetry] failed to close db: %v", err)
		}
		log.Printf("[telemetry] run %s closed: %d events written, %d dropped", runID, written, dropped)
	}
	return &telemetryHandle{store: store, recorder: recorder}, finish, nil
}

func advertise(cfg *config.TuningConfig) (*discovery.Advertiser, error) {
	port, err := listenPort(cfg.GetHTTPListen())
	if err != nil {
		return nil, err
	}
	adv := discovery.NewAdvertiser(port,
		"version="+version.Version,
		"status=/api/status",
		"sensor="+cfg.GetSensorMode(),
	)
	if err := adv.Start(); err != nil {
		return nil, err
	}
	log.Printf("[discovery] advertising %s on port %d", adv.Instance(), port)
	return adv, nil
}
