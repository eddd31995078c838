package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/banshee-data/scanroam/internal/behavior"
)

// DefaultConfigPath is the path to the canonical defaults file.
const DefaultConfigPath = "config/tuning.defaults.json"

// Sensor modes.
const (
	SensorUDP  = "udp"
	SensorPCAP = "pcap"
	SensorSim  = "sim"
)

// Actuator modes.
const (
	ActuatorSerial = "serial"
	ActuatorSim    = "sim"
	ActuatorNone   = "none"
)

// TuningConfig is the root configuration of the controller process. Every
// field is optional; the Get* accessors supply defaults for fields the file
// omits.
type TuningConfig struct {
	// Control loop
	Period           *string  `json:"period,omitempty"` // duration string like "100ms"
	MaxRange         *float64 `json:"max_range,omitempty"`
	MinReturnsPerBin *int     `json:"min_returns_per_bin,omitempty"`
	Seed             *uint64  `json:"seed,omitempty"` // 0 seeds from the clock

	// Behaviour overrides
	ForwardObstacle     *float64 `json:"forward_obstacle,omitempty"`
	ForwardSpeed        *float64 `json:"forward_speed,omitempty"`
	OpenAreaClearance   *float64 `json:"open_area_clearance,omitempty"`
	TurnRate            *float64 `json:"turn_rate,omitempty"`
	FollowStandoff      *float64 `json:"follow_standoff,omitempty"`
	FollowSpeed         *float64 `json:"follow_speed,omitempty"`
	SpiralObstacle      *float64 `json:"spiral_obstacle,omitempty"`
	SpiralWallProximity *float64 `json:"spiral_wall_proximity,omitempty"`
	SpiralSpeed         *float64 `json:"spiral_speed,omitempty"`

	// Sensor
	SensorMode   *string `json:"sensor_mode,omitempty"`
	SensorAddr   *string `json:"sensor_addr,omitempty"`
	SensorRcvBuf *int    `json:"sensor_rcv_buf,omitempty"`
	PCAPFile     *string `json:"pcap_file,omitempty"`
	PCAPUDPPort  *int    `json:"pcap_udp_port,omitempty"`
	PCAPLoop     *bool   `json:"pcap_loop,omitempty"`

	// Actuator
	ActuatorMode   *string `json:"actuator_mode,omitempty"`
	SerialPort     *string `json:"serial_port,omitempty"`
	SerialBaudRate *int    `json:"serial_baud_rate,omitempty"`
	SerialDataBits *int    `json:"serial_data_bits,omitempty"`
	SerialStopBits *int    `json:"serial_stop_bits,omitempty"`
	SerialParity   *string `json:"serial_parity,omitempty"`

	// Services
	TelemetryDB            *string `json:"telemetry_db,omitempty"` // empty disables
	HTTPListen             *string `json:"http_listen,omitempty"`
	GRPCListen             *string `json:"grpc_listen,omitempty"` // empty disables
	Discovery              *bool   `json:"discovery,omitempty"`
	HealthFailureThreshold *int    `json:"health_failure_threshold,omitempty"`
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields nil.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// DefaultTuningConfig returns a config with the process defaults filled in
// explicitly. It mirrors config/tuning.defaults.json.
func DefaultTuningConfig() *TuningConfig {
	return &TuningConfig{
		Period:                 ptrString("100ms"),
		MaxRange:               ptrFloat64(12000),
		MinReturnsPerBin:       ptrInt(1),
		SensorMode:             ptrString(SensorUDP),
		SensorAddr:             ptrString(":2368"),
		ActuatorMode:           ptrString(ActuatorNone),
		HTTPListen:             ptrString(":8080"),
		Discovery:              ptrBool(false),
		HealthFailureThreshold: ptrInt(10),
	}
}

// LoadTuningConfig loads a TuningConfig from a JSON file. The file must have
// a .json extension and be at most 1 MB. Omitted fields keep their defaults.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configured values are usable.
func (c *TuningConfig) Validate() error {
	if c.Period != nil && *c.Period != "" {
		d, err := time.ParseDuration(*c.Period)
		if err != nil {
			return fmt.Errorf("invalid period '%s': %w", *c.Period, err)
		}
		if d <= 0 {
			return fmt.Errorf("period must be positive, got %s", d)
		}
	}
	if c.MaxRange != nil && *c.MaxRange < 0 {
		return fmt.Errorf("max_range must be non-negative, got %f", *c.MaxRange)
	}
	if c.MinReturnsPerBin != nil && *c.MinReturnsPerBin < 0 {
		return fmt.Errorf("min_returns_per_bin must be non-negative, got %d", *c.MinReturnsPerBin)
	}
	for name, v := range map[string]*float64{
		"forward_obstacle":      c.ForwardObstacle,
		"open_area_clearance":   c.OpenAreaClearance,
		"follow_standoff":       c.FollowStandoff,
		"spiral_obstacle":       c.SpiralObstacle,
		"spiral_wall_proximity": c.SpiralWallProximity,
	} {
		if v != nil && *v <= 0 {
			return fmt.Errorf("%s must be positive, got %f", name, *v)
		}
	}
	switch c.GetSensorMode() {
	case SensorUDP, SensorSim:
	case SensorPCAP:
		if c.GetPCAPFile() == "" {
			return fmt.Errorf("sensor_mode %q requires pcap_file", SensorPCAP)
		}
	default:
		return fmt.Errorf("unknown sensor_mode %q", c.GetSensorMode())
	}
	switch c.GetActuatorMode() {
	case ActuatorNone, ActuatorSim:
	case ActuatorSerial:
		if c.GetSerialPort() == "" {
			return fmt.Errorf("actuator_mode %q requires serial_port", ActuatorSerial)
		}
	default:
		return fmt.Errorf("unknown actuator_mode %q", c.GetActuatorMode())
	}
	if c.HealthFailureThreshold != nil && *c.HealthFailureThreshold < 1 {
		return fmt.Errorf("health_failure_threshold must be at least 1, got %d", *c.HealthFailureThreshold)
	}
	return nil
}

// GetPeriod returns the control period, 100ms by default.
func (c *TuningConfig) GetPeriod() time.Duration {
	if c.Period == nil || *c.Period == "" {
		return 100 * time.Millisecond
	}
	d, err := time.ParseDuration(*c.Period)
	if err != nil || d <= 0 {
		return 100 * time.Millisecond
	}
	return d
}

// GetMaxRange returns the acquisition range limit in millimetres.
func (c *TuningConfig) GetMaxRange() float64 {
	if c.MaxRange == nil {
		return 12000
	}
	return *c.MaxRange
}

// GetMinReturnsPerBin returns the acquisition bin threshold.
func (c *TuningConfig) GetMinReturnsPerBin() int {
	if c.MinReturnsPerBin == nil {
		return 1
	}
	return *c.MinReturnsPerBin
}

// GetSeed returns the RNG seed; 0 means seed from the clock.
func (c *TuningConfig) GetSeed() uint64 {
	if c.Seed == nil {
		return 0
	}
	return *c.Seed
}

// BehaviorParams returns behavior.DefaultParams with any configured
// overrides applied.
func (c *TuningConfig) BehaviorParams() behavior.Params {
	p := behavior.DefaultParams()
	override := func(dst *float64, src *float64) {
		if src != nil {
			*dst = *src
		}
	}
	override(&p.ForwardObstacle, c.ForwardObstacle)
	override(&p.ForwardSpeed, c.ForwardSpeed)
	override(&p.OpenAreaClearance, c.OpenAreaClearance)
	override(&p.TurnRate, c.TurnRate)
	override(&p.FollowStandoff, c.FollowStandoff)
	override(&p.FollowSpeed, c.FollowSpeed)
	override(&p.SpiralObstacle, c.SpiralObstacle)
	override(&p.SpiralWallProximity, c.SpiralWallProximity)
	override(&p.SpiralSpeed, c.SpiralSpeed)
	return p
}

// GetSensorMode returns the sensor mode, "udp" by default.
func (c *TuningConfig) GetSensorMode() string {
	if c.SensorMode == nil || *c.SensorMode == "" {
		return SensorUDP
	}
	return strings.ToLower(*c.SensorMode)
}

// GetSensorAddr returns the UDP listen address for scan packets.
func (c *TuningConfig) GetSensorAddr() string {
	if c.SensorAddr == nil || *c.SensorAddr == "" {
		return ":2368"
	}
	return *c.SensorAddr
}

// GetSensorRcvBuf returns the UDP receive buffer size in bytes.
func (c *TuningConfig) GetSensorRcvBuf() int {
	if c.SensorRcvBuf == nil || *c.SensorRcvBuf <= 0 {
		return 1 << 20
	}
	return *c.SensorRcvBuf
}

// GetPCAPFile returns the replay capture path.
func (c *TuningConfig) GetPCAPFile() string {
	if c.PCAPFile == nil {
		return ""
	}
	return *c.PCAPFile
}

// GetPCAPUDPPort returns the UDP port scan packets were captured on.
func (c *TuningConfig) GetPCAPUDPPort() int {
	if c.PCAPUDPPort == nil {
		return 2368
	}
	return *c.PCAPUDPPort
}

// GetPCAPLoop reports whether replay restarts at end of file.
func (c *TuningConfig) GetPCAPLoop() bool {
	if c.PCAPLoop == nil {
		return false
	}
	return *c.PCAPLoop
}

// GetActuatorMode returns the actuator mode, "none" by default.
func (c *TuningConfig) GetActuatorMode() string {
	if c.ActuatorMode == nil || *c.ActuatorMode == "" {
		return ActuatorNone
	}
	return strings.ToLower(*c.ActuatorMode)
}

// GetSerialPort returns the base controller's serial device path.
func (c *TuningConfig) GetSerialPort() string {
	if c.SerialPort == nil {
		return ""
	}
	return *c.SerialPort
}

// GetSerialBaudRate returns the configured baud rate, 0 meaning the port default.
func (c *TuningConfig) GetSerialBaudRate() int {
	if c.SerialBaudRate == nil {
		return 0
	}
	return *c.SerialBaudRate
}

// GetSerialDataBits returns the configured data bits, 0 meaning the port default.
func (c *TuningConfig) GetSerialDataBits() int {
	if c.SerialDataBits == nil {
		return 0
	}
	return *c.SerialDataBits
}

// GetSerialStopBits returns the configured stop bits, 0 meaning the port default.
func (c *TuningConfig) GetSerialStopBits() int {
	if c.SerialStopBits == nil {
		return 0
	}
	return *c.SerialStopBits
}

// GetSerialParity returns the configured parity letter.
func (c *TuningConfig) GetSerialParity() string {
	if c.SerialParity == nil {
		return ""
	}
	return *c.SerialParity
}

// GetTelemetryDB returns the telemetry database path; empty disables it.
func (c *TuningConfig) GetTelemetryDB() string {
	if c.TelemetryDB == nil {
		return ""
	}
	return *c.TelemetryDB
}

// GetHTTPListen returns the debug/API HTTP listen address.
func (c *TuningConfig) GetHTTPListen() string {
	if c.HTTPListen == nil || *c.HTTPListen == "" {
		return ":8080"
	}
	return *c.HTTPListen
}

// GetGRPCListen returns the gRPC health listen address; empty disables it.
func (c *TuningConfig) GetGRPCListen() string {
	if c.GRPCListen == nil {
		return ""
	}
	return *c.GRPCListen
}

// GetDiscovery reports whether the HTTP server is advertised over mDNS.
func (c *TuningConfig) GetDiscovery() bool {
	if c.Discovery == nil {
		return false
	}
	return *c.Discovery
}

// GetHealthFailureThreshold returns how many consecutive failed acquisitions
// mark the controller NOT_SERVING.
func (c *TuningConfig) GetHealthFailureThreshold() int {
	if c.HealthFailureThreshold == nil {
		return 10
	}
	return *c.HealthFailureThreshold
}
