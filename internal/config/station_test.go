package config

import (
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cbf-labs/anacase/internal/counting"
	"github.com/cbf-labs/anacase/internal/serialmux"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadStationConfig(t *testing.T) {
	cfg, err := LoadStationConfig(filepath.Join("..", "..", "config", "station.example.json"))
	require.NoError(t, err)

	assert.Equal(t, 10.0, cfg.GetPercentageSample())
	assert.Equal(t, 1000, cfg.GetLoopSample())
	assert.Equal(t, 2800*time.Millisecond, cfg.GetMinInterval())
	assert.Equal(t, 3*time.Second, cfg.GetArmTimeout())
	assert.Equal(t, ActuatorSerial, cfg.GetActuator())
	assert.Equal(t, "/dev/ttyUSB0", cfg.GetSerialPort())
	assert.Equal(t, BeamConfig{X1: 320, Y1: 380, X2: 320, Y2: 50}, cfg.GetBeam())
}

func TestLoadStationConfig_Missing(t *testing.T) {
	_, err := LoadStationConfig(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestLoadStationConfig_InvalidJSON(t *testing.T) {
	path := writeConfig(t, "bad.json", `{"loop_sample": `)
	_, err := LoadStationConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse")
}

func TestLoadStationConfig_RejectsNonJSON(t *testing.T) {
	path := writeConfig(t, "station.yaml", `loop_sample: 10`)
	_, err := LoadStationConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), ".json")
}

func TestLoadStationConfig_RejectsLargeFile(t *testing.T) {
	body := `{"log_level": "` + strings.Repeat("x", maxConfigSize) + `"}`
	path := writeConfig(t, "big.json", body)
	_, err := LoadStationConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too large")
}

func TestLoadStationConfig_Partial(t *testing.T) {
	path := writeConfig(t, "partial.json", `{"percentage_sample": 25, "review_timeout": "4s"}`)
	cfg, err := LoadStationConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 25.0, cfg.GetPercentageSample())
	assert.Equal(t, 4*time.Second, cfg.GetReviewTimeout())
	assert.Equal(t, 1000, cfg.GetLoopSample())
	assert.Equal(t, 3*time.Second, cfg.GetGreenHold())
	assert.Equal(t, ActuatorNone, cfg.GetActuator())
}

func TestStationConfig_Validate(t *testing.T) {
	tests := []struct {
		name string
		cfg  StationConfig
	}{
		{"percentage above 100", StationConfig{PercentageSample: ptrFloat64(101)}},
		{"negative percentage", StationConfig{PercentageSample: ptrFloat64(-1)}},
		{"zero loop", StationConfig{LoopSample: ptrInt(0)}},
		{"negative dead zone", StationConfig{BeamDeadZone: ptrFloat64(-1)}},
		{"degenerate beam", StationConfig{Beam: &BeamConfig{X1: 1, Y1: 1, X2: 1, Y2: 1}}},
		{"bad duration", StationConfig{MinInterval: ptrString("soon")}},
		{"zero arm timeout", StationConfig{ArmTimeout: ptrString("0s")}},
		{"zero review timeout", StationConfig{ReviewTimeout: ptrString("0s")}},
		{"negative hold", StationConfig{RedHold: ptrString("-1s")}},
		{"unknown actuator", StationConfig{Actuator: ptrString("gpio")}},
		{"serial without port", StationConfig{Actuator: ptrString(ActuatorSerial)}},
		{"bad parity", StationConfig{Serial: &serialmux.PortOptions{Parity: "X"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.cfg.Validate())
		})
	}

	assert.NoError(t, Defaults().Validate())
	assert.NoError(t, (&StationConfig{}).Validate())
}

func TestStationConfig_GetterDefaults(t *testing.T) {
	cfg := &StationConfig{}
	assert.Equal(t, 10.0, cfg.GetPercentageSample())
	assert.Equal(t, 1000, cfg.GetLoopSample())
	assert.Zero(t, cfg.GetSampleSeed())
	assert.Equal(t, defaultBeam, cfg.GetBeam())
	assert.Equal(t, 20.0, cfg.GetBeamDeadZone())
	assert.Zero(t, cfg.GetBeamApproach())
	assert.Equal(t, 2800*time.Millisecond, cfg.GetMinInterval())
	assert.Equal(t, counting.DefaultArmTimeout, cfg.GetArmTimeout())
	assert.Equal(t, 10*time.Second, cfg.GetReviewTimeout())
	assert.Equal(t, 3*time.Second, cfg.GetGreenHold())
	assert.Equal(t, 2*time.Second, cfg.GetRedHold())
	assert.Equal(t, 100*time.Millisecond, cfg.GetFrameInterval())
	assert.Equal(t, "anacase.db", cfg.GetJournalPath())
	assert.Equal(t, "info", cfg.GetLogLevel())
	assert.Equal(t, 19200, cfg.GetSerialOptions().BaudRate)

	unparsable := &StationConfig{GreenHold: ptrString("later")}
	assert.Equal(t, 3*time.Second, unparsable.GetGreenHold())
}

func TestStationConfig_EngineConfig(t *testing.T) {
	cfg := Defaults()
	cfg.SampleSeed = ptrInt64(7)
	cfg.BeamApproach = ptrFloat64(30)

	ec, err := cfg.EngineConfig()
	require.NoError(t, err)
	assert.Equal(t, counting.Point{X: 320, Y: 380}, ec.Beam.A)
	assert.Equal(t, counting.Point{X: 320, Y: 50}, ec.Beam.B)
	assert.Equal(t, 20.0, ec.Beam.DeadZone)
	assert.Equal(t, 30.0, ec.Beam.Approach)
	assert.Equal(t, 1000, ec.LoopSample)
	require.NotNil(t, ec.Rand)

	e, err := counting.New(ec, nil)
	require.NoError(t, err)
	assert.Equal(t, 100, e.Snapshot(time.Now()).PendingSamples)

	cfg.LoopSample = ptrInt(-3)
	_, err = cfg.EngineConfig()
	assert.Error(t, err)
}

func TestStationConfig_ResolveStationID(t *testing.T) {
	orig := interfaceByName
	t.Cleanup(func() { interfaceByName = orig })

	interfaceByName = func(name string) (*net.Interface, error) {
		assert.Equal(t, "wlan0", name)
		return &net.Interface{HardwareAddr: net.HardwareAddr{0xb8, 0x27, 0xeb, 0x12, 0xab, 0x0c}}, nil
	}
	cfg := &StationConfig{NetworkInterface: ptrString("wlan0")}
	assert.Equal(t, "AB0C", cfg.ResolveStationID())

	interfaceByName = func(string) (*net.Interface, error) { return nil, errors.New("no such interface") }
	assert.Equal(t, DefaultStationID, cfg.ResolveStationID())

	cfg.StationID = ptrString("LINE-3")
	assert.Equal(t, "LINE-3", cfg.ResolveStationID())
}

func TestStationIDFromMAC_Short(t *testing.T) {
	assert.Equal(t, DefaultStationID, stationIDFromMAC(net.HardwareAddr{0x01, 0x02}))
}
