package serialmux

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"
)

func TestPortOptions_NormalizeDefaults(t *testing.T) {
	got, err := PortOptions{}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, PortOptions{BaudRate: DefaultBaudRate, DataBits: 8, StopBits: 1, Parity: "N"}, got)
}

func TestPortOptions_NormalizeParity(t *testing.T) {
	for in, want := range map[string]string{"n": "N", "none": "N", " even ": "E", "E": "E", "Odd": "O"} {
		got, err := PortOptions{Parity: in}.Normalize()
		require.NoError(t, err, in)
		assert.Equal(t, want, got.Parity, in)
	}
}

func TestPortOptions_NormalizeRejects(t *testing.T) {
	for _, o := range []PortOptions{
		{DataBits: 4},
		{DataBits: 9},
		{StopBits: 3},
		{Parity: "mark"},
	} {
		_, err := o.Normalize()
		assert.Error(t, err, "%+v", o)
	}
}

func TestPortOptions_Equal(t *testing.T) {
	assert.True(t, PortOptions{}.Equal(PortOptions{BaudRate: DefaultBaudRate, Parity: "none"}))
	assert.False(t, PortOptions{BaudRate: 9600}.Equal(PortOptions{}))
	assert.False(t, PortOptions{Parity: "X"}.Equal(PortOptions{Parity: "X"}))
}

func TestPortOptions_SerialMode(t *testing.T) {
	mode, err := PortOptions{BaudRate: 9600, StopBits: 2, Parity: "E"}.SerialMode()
	require.NoError(t, err)
	assert.Equal(t, &serial.Mode{BaudRate: 9600, DataBits: 8, Parity: serial.EvenParity, StopBits: serial.TwoStopBits}, mode)

	_, err = PortOptions{Parity: "Q"}.SerialMode()
	assert.Error(t, err)
}

func TestNewRealSerialMux(t *testing.T) {
	orig := openPort
	t.Cleanup(func() { openPort = orig })

	var gotPath string
	var gotMode *serial.Mode
	openPort = func(path string, mode *serial.Mode) (serial.Port, error) {
		gotPath, gotMode = path, mode
		return nil, errors.New("no such device")
	}
	_, err := NewRealSerialMux("/dev/ttyUSB9", PortOptions{})
	require.Error(t, err)
	assert.Equal(t, "/dev/ttyUSB9", gotPath)
	assert.Equal(t, DefaultBaudRate, gotMode.BaudRate)

	_, err = NewRealSerialMux("/dev/ttyUSB9", PortOptions{DataBits: 12})
	assert.Error(t, err)
}
