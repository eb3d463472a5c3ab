package led

import (
	"bufio"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/tarm/serial"
)

const (
	DefaultBaud        = 230400
	DefaultReadTimeout = 100 * time.Millisecond

	maxReply = 64 << 10
)

// Serial drives a WLED controller over a serial port. Writes are buffered
// until Flush so a frame leaves in as few syscalls as possible.
type Serial struct {
	mu   sync.Mutex
	port io.ReadWriteCloser
	w    *bufio.Writer
}

// OpenSerial opens name (e.g. /dev/ttyUSB0 or COM3) at 8N1. timeout bounds
// each read and is what ends a Query reply.
func OpenSerial(name string, baud int, timeout time.Duration) (*Serial, error) {
	if baud <= 0 {
		baud = DefaultBaud
	}
	if timeout <= 0 {
		timeout = DefaultReadTimeout
	}
	p, err := serial.OpenPort(&serial.Config{
		Name:        name,
		Baud:        baud,
		ReadTimeout: timeout,
		StopBits:    serial.Stop1,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w", name, err)
	}
	return NewSerial(p), nil
}

// NewSerial wraps an already open port.
func NewSerial(port io.ReadWriteCloser) *Serial {
	return &Serial{port: port, w: bufio.NewWriterSize(port, 4096)}
}

func (s *Serial) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.port == nil {
		return 0, ErrClosed
	}
	return s.w.Write(p)
}

func (s *Serial) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.port == nil {
		return ErrClosed
	}
	if err := s.w.Flush(); err != nil {
		return fmt.Errorf("serial flush: %w", err)
	}
	return nil
}

// Query sends req and reads until the port times out or reports end of stream.
func (s *Serial) Query(req []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.port == nil {
		return nil, ErrClosed
	}
	if _, err := s.w.Write(req); err != nil {
		return nil, fmt.Errorf("serial query: %w", err)
	}
	if err := s.w.Flush(); err != nil {
		return nil, fmt.Errorf("serial query: %w", err)
	}

	var out []byte
	buf := make([]byte, 256)
	for len(out) < maxReply {
		n, err := s.port.Read(buf)
		out = append(out, buf[:n]...)
		if err == io.EOF || (err == nil && n == 0) {
			// a read timeout surfaces as EOF on posix and as an empty read on windows
			break
		}
		if err != nil {
			return out, fmt.Errorf("serial read: %w", err)
		}
	}
	return out, nil
}

func (s *Serial) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.port == nil {
		return nil
	}
	err := s.port.Close()
	s.port = nil
	return err
}
