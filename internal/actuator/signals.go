package actuator

import "time"

// Signals turns engine state into lamp and buzzer outputs.
//
// The lamp pulses green for GreenHold after each count. It turns red when a
// review opens and stays red while the review is active, and for at least
// RedHold after it opened. A green pulse is never started while red is lit.
// The buzzer sounds for as long as the review is active.
type Signals struct {
	GreenHold time.Duration
	RedHold   time.Duration

	greenUntil time.Time
	redUntil   time.Time
	alarmWas   bool
}

// NewSignals returns Signals with the given hold times.
func NewSignals(greenHold, redHold time.Duration) *Signals {
	return &Signals{GreenHold: greenHold, RedHold: redHold}
}

// Update computes the outputs for the cycle at now. counted reports whether a
// crossing was confirmed this cycle; alarm whether a review is active.
func (s *Signals) Update(now time.Time, counted, alarm bool) Outputs {
	if alarm && !s.alarmWas {
		s.redUntil = now.Add(s.RedHold)
	}
	s.alarmWas = alarm

	red := alarm || now.Before(s.redUntil)
	if counted && !red {
		s.greenUntil = now.Add(s.GreenHold)
	}

	out := Outputs{Buzzer: alarm}
	switch {
	case red:
		out.Lamp = LampRed
	case now.Before(s.greenUntil):
		out.Lamp = LampGreen
	default:
		out.Lamp = LampOff
	}
	return out
}

// Clear drops any pending holds.
func (s *Signals) Clear() {
	s.greenUntil = time.Time{}
	s.redUntil = time.Time{}
	s.alarmWas = false
}
