package serialmux

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeController struct {
	acks    int
	resets  int
	toggles int
	open    bool
}

func (f *fakeController) Acknowledge(time.Time) bool {
	f.acks++
	was := f.open
	f.open = false
	return was
}

func (f *fakeController) Reset(time.Time) { f.resets++ }

func (f *fakeController) ToggleStats() bool {
	f.toggles++
	return f.toggles%2 == 1
}

func TestParseLine(t *testing.T) {
	tests := []struct {
		line   string
		kind   LineKind
		detail string
	}{
		{"BTN ACK", LineAck, ""},
		{"  btn ack \r", LineAck, ""},
		{"BTN RESET", LineReset, ""},
		{"BTN STATS", LineStats, ""},
		{"BTN", LineUnknown, ""},
		{"BTN JUMP", LineUnknown, "JUMP"},
		{"OK LAMP RED", LineOK, "LAMP RED"},
		{"ERR unknown command", LineError, "unknown command"},
		{"ERROR overheated", LineError, "overheated"},
		{"", LineUnknown, ""},
		{"hello", LineUnknown, ""},
	}
	for _, tt := range tests {
		kind, detail := ParseLine(tt.line)
		assert.Equal(t, tt.kind, kind, "ParseLine(%q)", tt.line)
		assert.Equal(t, tt.detail, detail, "ParseLine(%q) detail", tt.line)
	}
}

func TestHandleLine(t *testing.T) {
	ctl := &fakeController{open: true}
	now := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

	assert.Equal(t, LineAck, HandleLine(ctl, now, "BTN ACK"))
	assert.Equal(t, LineAck, HandleLine(ctl, now, "BTN ACK"))
	assert.Equal(t, LineReset, HandleLine(ctl, now, "BTN RESET"))
	assert.Equal(t, LineStats, HandleLine(ctl, now, "BTN STATS"))
	assert.Equal(t, LineOK, HandleLine(ctl, now, "OK ALL OFF"))
	assert.Equal(t, LineError, HandleLine(ctl, now, "ERR bad"))

	assert.Equal(t, 2, ctl.acks)
	assert.Equal(t, 1, ctl.resets)
	assert.Equal(t, 1, ctl.toggles)
}

func TestListenButtons(t *testing.T) {
	mux, sim := NewMockSerialMux()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go mux.Monitor(ctx)

	ctl := &lockedController{}
	done := make(chan struct{})
	go func() {
		ListenButtons(ctx, mux, ctl, time.Now)
		close(done)
	}()

	require.Eventually(t, func() bool {
		mux.subscriberMu.Lock()
		defer mux.subscriberMu.Unlock()
		return len(mux.subscribers) == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, sim.Press("ack"))
	require.NoError(t, sim.Press("reset"))
	require.Eventually(t, func() bool { return ctl.counts() == [2]int{1, 1} }, time.Second, 5*time.Millisecond)

	require.NoError(t, mux.Close())
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("listener did not stop when the mux closed")
	}
}
