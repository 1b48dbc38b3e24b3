package serialmux

import "io"

// SerialPorter is the part of a serial port SerialMux needs. Tests and the
// development simulator provide in-memory implementations.
type SerialPorter interface {
	io.ReadWriter
	io.Closer
}
