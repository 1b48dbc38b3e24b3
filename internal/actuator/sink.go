// Package actuator drives the station's signal tower: one lamp that shows
// green or red, and a buzzer.
package actuator

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotConnected is returned by sinks whose hardware link is gone.
var ErrNotConnected = errors.New("actuator not connected")

// LampColor is the colour requested from the signal lamp.
type LampColor int

const (
	LampOff LampColor = iota
	LampGreen
	LampRed
)

func (c LampColor) String() string {
	switch c {
	case LampOff:
		return "off"
	case LampGreen:
		return "green"
	case LampRed:
		return "red"
	default:
		return fmt.Sprintf("LampColor(%d)", int(c))
	}
}

// MarshalText lets snapshots carry the colour by name.
func (c LampColor) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText parses "off", "green" or "red".
func (c *LampColor) UnmarshalText(b []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(b))) {
	case "off", "":
		*c = LampOff
	case "green":
		*c = LampGreen
	case "red":
		*c = LampRed
	default:
		return fmt.Errorf("unknown lamp colour %q", string(b))
	}
	return nil
}

// Sink receives actuator commands. Implementations must tolerate the same
// state being sent every cycle, and AllOff must be safe to call repeatedly.
type Sink interface {
	SetLamp(LampColor) error
	SetBuzzer(on bool) error
	AllOff() error
}

// Outputs is the desired state of every actuator for one cycle.
type Outputs struct {
	Lamp   LampColor `json:"lamp"`
	Buzzer bool      `json:"buzzer"`
}

// Apply writes o to sink. Both writes are attempted; the errors are joined.
func Apply(sink Sink, o Outputs) error {
	lampErr := sink.SetLamp(o.Lamp)
	if lampErr != nil {
		lampErr = fmt.Errorf("set lamp %s: %w", o.Lamp, lampErr)
	}
	buzzErr := sink.SetBuzzer(o.Buzzer)
	if buzzErr != nil {
		buzzErr = fmt.Errorf("set buzzer %t: %w", o.Buzzer, buzzErr)
	}
	return errors.Join(lampErr, buzzErr)
}

// NoopSink is the simulation sink used when no signal tower is attached.
type NoopSink struct{}

func (NoopSink) SetLamp(LampColor) error { return nil }
func (NoopSink) SetBuzzer(bool) error    { return nil }
func (NoopSink) AllOff() error           { return nil }
