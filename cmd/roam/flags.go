package main

import (
	"flag"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/banshee-data/scanroam/internal/config"
	"github.com/banshee-data/scanroam/internal/version"
)

// cliFlags are the command-line overrides. Only flags the user actually set
// replace values from the config file.
type cliFlags struct {
	configPath   *string
	dev          *bool
	startupCheck *bool
	showVersion  *bool

	listen     *string
	grpcListen *string
	sensor     *string
	sensorAddr *string
	pcapFile   *string
	pcapLoop   *bool
	actuator   *string
	serialPort *string
	baudRate   *int
	dbPath     *string
	seed       *uint64
	period     *string
	discover   *bool
}

func registerFlags(fs *flag.FlagSet) *cliFlags {
	return &cliFlags{
		configPath:   fs.String("config", "", "Path to tuning config JSON (defaults built in when empty)"),
		dev:          fs.Bool("dev", false, "Run against the simulated room (sim sensor and sim actuator)"),
		startupCheck: fs.Bool("startup-check", false, "Validate config, print the effective settings and exit"),
		showVersion:  fs.Bool("version", false, "Print version and exit"),

		listen:     fs.String("listen", "", "HTTP listen address (overrides http_listen)"),
		grpcListen: fs.String("grpc-listen", "", "gRPC health listen address (overrides grpc_listen)"),
		sensor:     fs.String("sensor", "", "Sensor mode: udp, pcap or sim"),
		sensorAddr: fs.String("sensor-addr", "", "UDP address to receive scans on"),
		pcapFile:   fs.String("pcap", "", "Capture file to replay (implies -sensor pcap)"),
		pcapLoop:   fs.Bool("pcap-loop", false, "Rewind the capture at end of file"),
		actuator:   fs.String("actuator", "", "Actuator mode: serial, sim or none"),
		serialPort: fs.String("port", "", "Serial port of the motor base (implies -actuator serial)"),
		baudRate:   fs.Int("baud", 0, "Serial baud rate"),
		dbPath:     fs.String("db", "", "Telemetry sqlite database path"),
		seed:       fs.Uint64("seed", 0, "Random seed for behaviour draws (0 picks one)"),
		period:     fs.String("period", "", "Control period, e.g. 100ms"),
		discover:   fs.Bool("discovery", false, "Advertise the HTTP server over mDNS"),
	}
}

// loadConfig reads path, or returns the built-in defaults when path is empty.
func loadConfig(path string) (*config.TuningConfig, error) {
	if path == "" {
		return config.DefaultTuningConfig(), nil
	}
	return config.LoadTuningConfig(path)
}

// apply copies every explicitly set flag into cfg and validates the result.
func (f *cliFlags) apply(fs *flag.FlagSet, cfg *config.TuningConfig) error {
	set := make(map[string]bool)
	fs.Visit(func(fl *flag.Flag) { set[fl.Name] = true })

	str := func(v string) *string { return &v }

	if *f.dev {
		if !set["sensor"] && !set["pcap"] {
			cfg.SensorMode = str(config.SensorSim)
		}
		if !set["actuator"] && !set["port"] {
			cfg.ActuatorMode = str(config.ActuatorSim)
		}
	}
	if set["listen"] {
		cfg.HTTPListen = str(*f.listen)
	}
	if set["grpc-listen"] {
		cfg.GRPCListen = str(*f.grpcListen)
	}
	if set["pcap"] {
		cfg.PCAPFile = str(*f.pcapFile)
		cfg.SensorMode = str(config.SensorPCAP)
	}
	if set["pcap-loop"] {
		v := *f.pcapLoop
		cfg.PCAPLoop = &v
	}
	if set["sensor"] {
		cfg.SensorMode = str(*f.sensor)
	}
	if set["sensor-addr"] {
		cfg.SensorAddr = str(*f.sensorAddr)
	}
	if set["port"] {
		cfg.SerialPort = str(*f.serialPort)
		cfg.ActuatorMode = str(config.ActuatorSerial)
	}
	if set["actuator"] {
		cfg.ActuatorMode = str(*f.actuator)
	}
	if set["baud"] {
		v := *f.baudRate
		cfg.SerialBaudRate = &v
	}
	if set["db"] {
		cfg.TelemetryDB = str(*f.dbPath)
	}
	if set["seed"] {
		v := *f.seed
		cfg.Seed = &v
	}
	if set["period"] {
		cfg.Period = str(*f.period)
	}
	if set["discovery"] {
		v := *f.discover
		cfg.Discovery = &v
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// printSummary writes the effective settings for -startup-check.
func printSummary(w io.Writer, cfg *config.TuningConfig) error {
	p := cfg.BehaviorParams()
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, version.Get().String())
	rows := [][2]string{
		{"period", cfg.GetPeriod().String()},
		{"max range (mm)", strconv.FormatFloat(cfg.GetMaxRange(), 'f', 0, 64)},
		{"min returns per bin", strconv.Itoa(cfg.GetMinReturnsPerBin())},
		{"sensor", sensorSummary(cfg)},
		{"actuator", actuatorSummary(cfg)},
		{"forward obstacle (mm)", strconv.FormatFloat(p.ForwardObstacle, 'f', 0, 64)},
		{"open area clearance (mm)", strconv.FormatFloat(p.OpenAreaClearance, 'f', 0, 64)},
		{"follow standoff (mm)", strconv.FormatFloat(p.FollowStandoff, 'f', 0, 64)},
		{"turn rate (rad/s)", strconv.FormatFloat(p.TurnRate, 'f', 2, 64)},
		{"http", cfg.GetHTTPListen()},
		{"grpc health", orOff(cfg.GetGRPCListen())},
		{"telemetry db", orOff(cfg.GetTelemetryDB())},
		{"discovery", strconv.FormatBool(cfg.GetDiscovery())},
	}
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\n", r[0], r[1])
	}
	return tw.Flush()
}

func sensorSummary(cfg *config.TuningConfig) string {
	switch cfg.GetSensorMode() {
	case config.SensorUDP:
		return "udp " + cfg.GetSensorAddr()
	case config.SensorPCAP:
		s := fmt.Sprintf("pcap %s (udp port %d)", cfg.GetPCAPFile(), cfg.GetPCAPUDPPort())
		if cfg.GetPCAPLoop() {
			s += " looping"
		}
		return s
	default:
		return cfg.GetSensorMode()
	}
}

func actuatorSummary(cfg *config.TuningConfig) string {
	if cfg.GetActuatorMode() == config.ActuatorSerial {
		return fmt.Sprintf("serial %s @ %d", cfg.GetSerialPort(), cfg.GetSerialBaudRate())
	}
	return cfg.GetActuatorMode()
}

func orOff(s string) string {
	if s == "" {
		return "off"
	}
	return s
}
