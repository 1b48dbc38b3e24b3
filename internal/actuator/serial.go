package actuator

import (
	"fmt"
	"sync"

	"github.com/cbf-labs/anacase/internal/monitoring"
)

// Commands understood by the signal tower controller.
const (
	CmdLampRed   = "LAMP RED"
	CmdLampGreen = "LAMP GREEN"
	CmdLampOff   = "LAMP OFF"
	CmdBuzzerOn  = "BUZZER ON"
	CmdBuzzerOff = "BUZZER OFF"
	CmdAllOff    = "ALL OFF"
)

// CommandSender writes one line-oriented command to a device.
type CommandSender interface {
	SendCommand(string) error
}

// SerialSink drives a signal tower controller over a line protocol. Repeated
// requests for the state already on the wire are not re-sent; a failed write
// forgets the cached state so the next cycle retries.
type SerialSink struct {
	mu     sync.Mutex
	sender CommandSender

	lamp      LampColor
	lampKnown bool
	buzz      bool
	buzzKnown bool
}

// NewSerialSink returns a sink that writes through sender.
func NewSerialSink(sender CommandSender) *SerialSink {
	return &SerialSink{sender: sender}
}

func lampCommand(c LampColor) (string, error) {
	switch c {
	case LampOff:
		return CmdLampOff, nil
	case LampGreen:
		return CmdLampGreen, nil
	case LampRed:
		return CmdLampRed, nil
	default:
		return "", fmt.Errorf("unsupported lamp colour %v", c)
	}
}

// SetLamp sends the lamp command if it differs from the last one written.
func (s *SerialSink) SetLamp(c LampColor) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lampKnown && s.lamp == c {
		return nil
	}
	cmd, err := lampCommand(c)
	if err != nil {
		return err
	}
	if err := s.sender.SendCommand(cmd); err != nil {
		s.lampKnown = false
		return err
	}
	monitoring.Debugf("signal tower: %s", cmd)
	s.lamp, s.lampKnown = c, true
	return nil
}

// SetBuzzer sends the buzzer command if it differs from the last one written.
func (s *SerialSink) SetBuzzer(on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.buzzKnown && s.buzz == on {
		return nil
	}
	cmd := CmdBuzzerOff
	if on {
		cmd = CmdBuzzerOn
	}
	if err := s.sender.SendCommand(cmd); err != nil {
		s.buzzKnown = false
		return err
	}
	monitoring.Debugf("signal tower: %s", cmd)
	s.buzz, s.buzzKnown = on, true
	return nil
}

// AllOff always writes, regardless of cached state.
func (s *SerialSink) AllOff() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.sender.SendCommand(CmdAllOff); err != nil {
		s.lampKnown, s.buzzKnown = false, false
		return err
	}
	s.lamp, s.lampKnown = LampOff, true
	s.buzz, s.buzzKnown = false, true
	return nil
}
