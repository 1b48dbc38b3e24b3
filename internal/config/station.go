package config

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cbf-labs/anacase/internal/counting"
	"github.com/cbf-labs/anacase/internal/serialmux"
)

// DefaultStationID is reported when no network interface can be read.
const DefaultStationID = "0000"

const maxConfigSize = 1 * 1024 * 1024

// BeamConfig is the counting line in image pixels.
type BeamConfig struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// StationConfig is the on-disk configuration of one counting station.
// Pointer fields distinguish "unset" from zero so partial files keep defaults.
type StationConfig struct {
	StationID        *string  `json:"station_id,omitempty"`
	NetworkInterface *string  `json:"network_interface,omitempty"`
	PercentageSample *float64 `json:"percentage_sample,omitempty"`
	LoopSample       *int     `json:"loop_sample,omitempty"`
	SampleSeed       *int64   `json:"sample_seed,omitempty"`

	Beam         *BeamConfig `json:"beam,omitempty"`
	BeamDeadZone *float64    `json:"beam_dead_zone,omitempty"`
	BeamApproach *float64    `json:"beam_approach,omitempty"`

	MinInterval   *string `json:"min_interval,omitempty"`
	ArmTimeout    *string `json:"arm_timeout,omitempty"`
	ReviewTimeout *string `json:"review_timeout,omitempty"`
	GreenHold     *string `json:"green_hold,omitempty"`
	RedHold       *string `json:"red_hold,omitempty"`
	FrameInterval *string `json:"frame_interval,omitempty"`

	Actuator   *string                `json:"actuator,omitempty"`
	SerialPort *string                `json:"serial_port,omitempty"`
	Serial     *serialmux.PortOptions `json:"serial,omitempty"`

	JournalPath *string `json:"journal_path,omitempty"`
	LogLevel    *string `json:"log_level,omitempty"`
}

// Actuator backends.
const (
	ActuatorNone   = "none"
	ActuatorSerial = "serial"
)

var defaultBeam = BeamConfig{X1: 320, Y1: 380, X2: 320, Y2: 50}

// LoadStationConfig loads a station configuration from a JSON file.
// Unset fields fall back to the defaults returned by the Get* methods.
func LoadStationConfig(path string) (*StationConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := strings.ToLower(filepath.Ext(cleanPath)); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.Size() > maxConfigSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &StationConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that every set field holds a usable value.
func (c *StationConfig) Validate() error {
	if c.PercentageSample != nil {
		p := *c.PercentageSample
		if math.IsNaN(p) || p < 0 || p > 100 {
			return fmt.Errorf("percentage_sample must be between 0 and 100, got %v", p)
		}
	}
	if c.LoopSample != nil && *c.LoopSample < 1 {
		return fmt.Errorf("loop_sample must be at least 1, got %d", *c.LoopSample)
	}
	if c.BeamDeadZone != nil && *c.BeamDeadZone < 0 {
		return fmt.Errorf("beam_dead_zone must be non-negative, got %v", *c.BeamDeadZone)
	}
	if c.BeamApproach != nil && *c.BeamApproach < 0 {
		return fmt.Errorf("beam_approach must be non-negative, got %v", *c.BeamApproach)
	}
	if c.Beam != nil && c.Beam.X1 == c.Beam.X2 && c.Beam.Y1 == c.Beam.Y2 {
		return fmt.Errorf("beam endpoints must differ")
	}

	durations := []struct {
		name     string
		value    *string
		positive bool
	}{
		{"min_interval", c.MinInterval, false},
		{"arm_timeout", c.ArmTimeout, true},
		{"review_timeout", c.ReviewTimeout, true},
		{"green_hold", c.GreenHold, false},
		{"red_hold", c.RedHold, false},
		{"frame_interval", c.FrameInterval, true},
	}
	for _, d := range durations {
		if d.value == nil {
			continue
		}
		v, err := time.ParseDuration(*d.value)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", d.name, *d.value, err)
		}
		if v < 0 || (d.positive && v == 0) {
			return fmt.Errorf("%s out of range: %s", d.name, v)
		}
	}

	if c.Actuator != nil {
		switch *c.Actuator {
		case ActuatorNone:
		case ActuatorSerial:
			if c.SerialPort == nil || *c.SerialPort == "" {
				return fmt.Errorf("actuator %q requires serial_port", ActuatorSerial)
			}
		default:
			return fmt.Errorf("unknown actuator %q: expected %q or %q", *c.Actuator, ActuatorNone, ActuatorSerial)
		}
	}
	if c.Serial != nil {
		if _, err := c.Serial.Normalize(); err != nil {
			return fmt.Errorf("invalid serial options: %w", err)
		}
	}
	return nil
}

func (c *StationConfig) GetPercentageSample() float64 {
	if c.PercentageSample == nil {
		return 10
	}
	return *c.PercentageSample
}

func (c *StationConfig) GetLoopSample() int {
	if c.LoopSample == nil {
		return 1000
	}
	return *c.LoopSample
}

// GetSampleSeed returns the configured seed, or zero for a time-based seed.
func (c *StationConfig) GetSampleSeed() int64 {
	if c.SampleSeed == nil {
		return 0
	}
	return *c.SampleSeed
}

func (c *StationConfig) GetBeam() BeamConfig {
	if c.Beam == nil {
		return defaultBeam
	}
	return *c.Beam
}

func (c *StationConfig) GetBeamDeadZone() float64 {
	if c.BeamDeadZone == nil {
		return 20
	}
	return *c.BeamDeadZone
}

// GetBeamApproach returns the entry/exit band depth. Zero means "same as
// the dead zone".
func (c *StationConfig) GetBeamApproach() float64 {
	if c.BeamApproach == nil {
		return 0
	}
	return *c.BeamApproach
}

func (c *StationConfig) GetMinInterval() time.Duration {
	return durationOr(c.MinInterval, 2800*time.Millisecond)
}

func (c *StationConfig) GetArmTimeout() time.Duration {
	return durationOr(c.ArmTimeout, counting.DefaultArmTimeout)
}

func (c *StationConfig) GetReviewTimeout() time.Duration {
	return durationOr(c.ReviewTimeout, 10*time.Second)
}

func (c *StationConfig) GetGreenHold() time.Duration {
	return durationOr(c.GreenHold, 3*time.Second)
}

func (c *StationConfig) GetRedHold() time.Duration {
	return durationOr(c.RedHold, 2*time.Second)
}

func (c *StationConfig) GetFrameInterval() time.Duration {
	return durationOr(c.FrameInterval, 100*time.Millisecond)
}

func (c *StationConfig) GetActuator() string {
	if c.Actuator == nil {
		return ActuatorNone
	}
	return *c.Actuator
}

func (c *StationConfig) GetSerialPort() string {
	if c.SerialPort == nil {
		return ""
	}
	return *c.SerialPort
}

// GetSerialOptions returns the port options with defaults applied.
func (c *StationConfig) GetSerialOptions() serialmux.PortOptions {
	var opts serialmux.PortOptions
	if c.Serial != nil {
		opts = *c.Serial
	}
	if n, err := opts.Normalize(); err == nil {
		return n
	}
	return opts
}

func (c *StationConfig) GetJournalPath() string {
	if c.JournalPath == nil {
		return "anacase.db"
	}
	return *c.JournalPath
}

func (c *StationConfig) GetLogLevel() string {
	if c.LogLevel == nil {
		return "info"
	}
	return *c.LogLevel
}

func (c *StationConfig) GetNetworkInterface() string {
	if c.NetworkInterface == nil {
		return "eth0"
	}
	return *c.NetworkInterface
}

func durationOr(s *string, def time.Duration) time.Duration {
	if s == nil {
		return def
	}
	d, err := time.ParseDuration(*s)
	if err != nil {
		return def
	}
	return d
}

// EngineConfig builds the counting engine parameters from the station config.
// A zero seed draws samples from a time-based source.
func (c *StationConfig) EngineConfig() (counting.Config, error) {
	if err := c.Validate(); err != nil {
		return counting.Config{}, err
	}
	seed := c.GetSampleSeed()
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	b := c.GetBeam()
	return counting.Config{
		Beam: counting.Beam{
			A:        counting.Point{X: b.X1, Y: b.Y1},
			B:        counting.Point{X: b.X2, Y: b.Y2},
			DeadZone: c.GetBeamDeadZone(),
			Approach: c.GetBeamApproach(),
		},
		MinInterval:      c.GetMinInterval(),
		ArmTimeout:       c.GetArmTimeout(),
		LoopSample:       c.GetLoopSample(),
		PercentageSample: c.GetPercentageSample(),
		ReviewTimeout:    c.GetReviewTimeout(),
		GreenHold:        c.GetGreenHold(),
		RedHold:          c.GetRedHold(),
		Rand:             rand.New(rand.NewSource(seed)),
	}, nil
}

// interfaceByName is replaced in tests.
var interfaceByName = net.InterfaceByName

// ResolveStationID returns the configured station id, or the last two bytes
// of the network interface's hardware address as four upper-case hex digits.
func (c *StationConfig) ResolveStationID() string {
	if c.StationID != nil && *c.StationID != "" {
		return *c.StationID
	}
	iface, err := interfaceByName(c.GetNetworkInterface())
	if err != nil {
		return DefaultStationID
	}
	return stationIDFromMAC(iface.HardwareAddr)
}

func stationIDFromMAC(hw net.HardwareAddr) string {
	if len(hw) < 6 {
		return DefaultStationID
	}
	return fmt.Sprintf("%02X%02X", hw[4], hw[5])
}

func ptrString(v string) *string    { return &v }
func ptrFloat64(v float64) *float64 { return &v }
func ptrInt(v int) *int             { return &v }
func ptrInt64(v int64) *int64       { return &v }

// Defaults returns a fully populated configuration with every default set.
func Defaults() *StationConfig {
	beam := defaultBeam
	serial := serialmux.PortOptions{BaudRate: 19200, DataBits: 8, StopBits: 1, Parity: "N"}
	return &StationConfig{
		NetworkInterface: ptrString("eth0"),
		PercentageSample: ptrFloat64(10),
		LoopSample:       ptrInt(1000),
		SampleSeed:       ptrInt64(0),
		Beam:             &beam,
		BeamDeadZone:     ptrFloat64(20),
		MinInterval:      ptrString("2.8s"),
		ArmTimeout:       ptrString("3s"),
		ReviewTimeout:    ptrString("10s"),
		GreenHold:        ptrString("3s"),
		RedHold:          ptrString("2s"),
		FrameInterval:    ptrString("100ms"),
		Actuator:         ptrString(ActuatorNone),
		Serial:           &serial,
		JournalPath:      ptrString("anacase.db"),
		LogLevel:         ptrString("info"),
	}
}
