package actuator

import "sync"

// RecordingSink keeps every command it receives. Tests use it in place of the
// signal tower, optionally failing calls through the Fail* fields.
type RecordingSink struct {
	mu sync.Mutex

	Lamp    LampColor
	Buzzer  bool
	Calls   []string
	AllOffs int

	FailLamp   error
	FailBuzzer error
	FailAllOff error
}

func (r *RecordingSink) SetLamp(c LampColor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Calls = append(r.Calls, "lamp:"+c.String())
	if r.FailLamp != nil {
		return r.FailLamp
	}
	r.Lamp = c
	return nil
}

func (r *RecordingSink) SetBuzzer(on bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if on {
		r.Calls = append(r.Calls, "buzzer:on")
	} else {
		r.Calls = append(r.Calls, "buzzer:off")
	}
	if r.FailBuzzer != nil {
		return r.FailBuzzer
	}
	r.Buzzer = on
	return nil
}

func (r *RecordingSink) AllOff() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Calls = append(r.Calls, "all:off")
	r.AllOffs++
	if r.FailAllOff != nil {
		return r.FailAllOff
	}
	r.Lamp, r.Buzzer = LampOff, false
	return nil
}

// State returns the last successfully applied outputs.
func (r *RecordingSink) State() Outputs {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Outputs{Lamp: r.Lamp, Buzzer: r.Buzzer}
}
