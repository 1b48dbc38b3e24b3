package serialmux

import (
	"bufio"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type lockedController struct {
	mu sync.Mutex
	fakeController
}

func (l *lockedController) Acknowledge(now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.fakeController.Acknowledge(now)
}

func (l *lockedController) Reset(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fakeController.Reset(now)
}

func (l *lockedController) ToggleStats() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.fakeController.ToggleStats()
}

func (l *lockedController) counts() [2]int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return [2]int{l.acks, l.resets}
}

func TestTowerSimulator_TracksOutputs(t *testing.T) {
	sim := NewTowerSimulator()
	defer sim.Close()
	r := bufio.NewReader(sim)

	_, err := sim.Write([]byte("LAMP RED\n"))
	require.NoError(t, err)
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "OK LAMP RED\n", line)

	_, err = sim.Write([]byte("BUZZER ON\n"))
	require.NoError(t, err)
	_, _ = r.ReadString('\n')
	lamp, buzzer := sim.State()
	assert.Equal(t, "RED", lamp)
	assert.Equal(t, "ON", buzzer)

	_, err = sim.Write([]byte("ALL OFF\n"))
	require.NoError(t, err)
	_, _ = r.ReadString('\n')
	lamp, buzzer = sim.State()
	assert.Equal(t, "OFF", lamp)
	assert.Equal(t, "OFF", buzzer)
}

func TestTowerSimulator_PressAndClose(t *testing.T) {
	sim := NewTowerSimulator()
	r := bufio.NewReader(sim)

	go func() { _ = sim.Press("stats") }()
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "BTN STATS\n", line)

	require.NoError(t, sim.Close())
	_, err = sim.Write([]byte("LAMP OFF\n"))
	assert.ErrorIs(t, err, errPortClosed)
}

func TestTestableSerialPort_ReadBlocksUntilData(t *testing.T) {
	p := NewTestableSerialPort()
	got := make(chan string, 1)
	go func() {
		buf := make([]byte, 16)
		n, _ := p.Read(buf)
		got <- string(buf[:n])
	}()

	p.AddReadData("BTN ACK\n")
	select {
	case s := <-got:
		assert.Equal(t, "BTN ACK\n", s)
	case <-time.After(time.Second):
		t.Fatal("read did not return")
	}

	require.NoError(t, p.Close())
	_, err := p.Write([]byte("x"))
	assert.ErrorIs(t, err, errPortClosed)
}
