package serialmux

import (
	"context"
	"strings"
	"time"

	"github.com/cbf-labs/anacase/internal/monitoring"
)

// LineKind classifies a line printed by the signal tower controller.
type LineKind string

const (
	LineAck     LineKind = "ack"     // BTN ACK: operator acknowledged the review
	LineReset   LineKind = "reset"   // BTN RESET: counter reset
	LineStats   LineKind = "stats"   // BTN STATS: toggle the stats page
	LineOK      LineKind = "ok"      // OK <command>
	LineError   LineKind = "error"   // ERR <reason>
	LineUnknown LineKind = "unknown" // anything else
)

// ParseLine classifies one controller line. Matching ignores case and
// surrounding whitespace.
func ParseLine(line string) (LineKind, string) {
	head, rest, _ := strings.Cut(strings.TrimSpace(line), " ")
	rest = strings.TrimSpace(rest)
	switch strings.ToUpper(head) {
	case "OK":
		return LineOK, rest
	case "ERR", "ERROR":
		return LineError, rest
	case "BTN":
		switch strings.ToUpper(rest) {
		case "ACK":
			return LineAck, ""
		case "RESET":
			return LineReset, ""
		case "STATS":
			return LineStats, ""
		}
	}
	return LineUnknown, rest
}

// Controller receives operator actions from the panel buttons.
type Controller interface {
	Acknowledge(now time.Time) bool
	Reset(now time.Time)
	ToggleStats() bool
}

// HandleLine applies one controller line to ctl and returns its kind.
func HandleLine(ctl Controller, now time.Time, line string) LineKind {
	kind, detail := ParseLine(line)
	switch kind {
	case LineAck:
		if ctl.Acknowledge(now) {
			monitoring.Logf("✓ review acknowledged from panel")
		} else {
			monitoring.Debugf("panel acknowledge with no open review")
		}
	case LineReset:
		ctl.Reset(now)
		monitoring.Logf("panel reset the counter")
	case LineStats:
		ctl.ToggleStats()
	case LineError:
		monitoring.Logf("❌ Error reported by signal tower: %s", detail)
	case LineOK:
	default:
		monitoring.Debugf("unrecognised serial line: %q", line)
	}
	return kind
}

// ListenButtons forwards controller lines to ctl until ctx is done or the
// mux closes the subscription. now supplies the action timestamp.
func ListenButtons(ctx context.Context, mux SerialMuxInterface, ctl Controller, now func() time.Time) {
	id, lines := mux.Subscribe()
	defer mux.Unsubscribe(id)
	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			HandleLine(ctl, now(), line)
		}
	}
}
