package serialmux

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
)

var errPortClosed = errors.New("serial port closed")

// TowerSimulator is an in-memory signal tower controller for -dev runs. It
// answers every command with "OK <command>", remembers the last lamp and
// buzzer commands, and emits BTN lines when Press is called.
type TowerSimulator struct {
	r *io.PipeReader
	w *io.PipeWriter

	mu     sync.Mutex
	lamp   string
	buzzer string
	closed bool
}

// NewTowerSimulator returns a simulator with all outputs off.
func NewTowerSimulator() *TowerSimulator {
	r, w := io.Pipe()
	return &TowerSimulator{r: r, w: w, lamp: "OFF", buzzer: "OFF"}
}

// NewMockSerialMux returns a SerialMux backed by a TowerSimulator.
func NewMockSerialMux() (*SerialMux[*TowerSimulator], *TowerSimulator) {
	sim := NewTowerSimulator()
	return NewSerialMux(sim), sim
}

func (t *TowerSimulator) Read(p []byte) (int, error) { return t.r.Read(p) }

func (t *TowerSimulator) Write(p []byte) (int, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return 0, errPortClosed
	}
	for _, cmd := range strings.Split(strings.TrimSpace(string(p)), "\n") {
		t.apply(strings.ToUpper(strings.TrimSpace(cmd)))
	}
	t.mu.Unlock()

	// Replies are written asynchronously so a writer never waits on Monitor.
	go func(cmds string) {
		for _, cmd := range strings.Split(cmds, "\n") {
			if cmd = strings.TrimSpace(cmd); cmd != "" {
				_, _ = fmt.Fprintf(t.w, "OK %s\n", cmd)
			}
		}
	}(string(p))
	return len(p), nil
}

func (t *TowerSimulator) apply(cmd string) {
	switch {
	case strings.HasPrefix(cmd, "LAMP "):
		t.lamp = strings.TrimPrefix(cmd, "LAMP ")
	case strings.HasPrefix(cmd, "BUZZER "):
		t.buzzer = strings.TrimPrefix(cmd, "BUZZER ")
	case cmd == "ALL OFF":
		t.lamp, t.buzzer = "OFF", "OFF"
	}
}

// Press emits a button line, e.g. Press("ACK") prints "BTN ACK".
func (t *TowerSimulator) Press(button string) error {
	_, err := fmt.Fprintf(t.w, "BTN %s\n", strings.ToUpper(button))
	return err
}

// State returns the last lamp and buzzer commands applied.
func (t *TowerSimulator) State() (lamp, buzzer string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lamp, t.buzzer
}

func (t *TowerSimulator) Close() error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	_ = t.w.Close()
	return t.r.Close()
}

// TestableSerialPort is a SerialPorter with scripted reads, captured writes
// and injectable errors. Reads block until data is added or the port closes.
type TestableSerialPort struct {
	mu   sync.Mutex
	cond *sync.Cond

	readBuf  bytes.Buffer
	writeBuf bytes.Buffer

	// WriteError is returned by the next Write when set.
	WriteError error
	// ShortWrite makes Write report one byte fewer than it was given.
	ShortWrite bool
	// CloseError is returned by Close when set.
	CloseError error

	closed bool
}

func NewTestableSerialPort() *TestableSerialPort {
	p := &TestableSerialPort{}
	p.cond = sync.NewCond(&p.mu)
	return p
}

func (p *TestableSerialPort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for !p.closed && p.readBuf.Len() == 0 {
		p.cond.Wait()
	}
	if p.readBuf.Len() == 0 {
		return 0, io.EOF
	}
	return p.readBuf.Read(b)
}

func (p *TestableSerialPort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, errPortClosed
	}
	if err := p.WriteError; err != nil {
		p.WriteError = nil
		return 0, err
	}
	n, _ := p.writeBuf.Write(b)
	if p.ShortWrite && n > 0 {
		n--
	}
	return n, nil
}

func (p *TestableSerialPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.cond.Broadcast()
	return p.CloseError
}

// AddReadData queues data for subsequent reads.
func (p *TestableSerialPort) AddReadData(data string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.readBuf.WriteString(data)
	p.cond.Broadcast()
}

// Written returns everything written so far.
func (p *TestableSerialPort) Written() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.writeBuf.String()
}

// Closed reports whether Close was called.
func (p *TestableSerialPort) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}
