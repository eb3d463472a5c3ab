package led

import (
	"errors"
	"io"
)

// ErrClosed is returned by writes to a closed driver.
var ErrClosed = errors.New("led: driver closed")

// Driver is the byte sink the transmitter owns: TPM2 frames and device
// commands are written to it, then flushed out to the controller.
type Driver interface {
	io.Writer
	// Flush pushes buffered bytes out to the device.
	Flush() error
	// Close releases resources.
	Close() error
}
