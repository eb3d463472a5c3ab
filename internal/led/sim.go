package led

import (
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

// Sim is a driver with no hardware behind it. It answers the LED count query
// like a controller with Count LEDs and keeps the last flushed bytes.
type Sim struct {
	Count int

	mu      sync.Mutex
	pending []byte
	last    []byte
	flushes int
	closed  bool
}

func NewSim(count int) *Sim { return &Sim{Count: count} }

func (s *Sim) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	s.pending = append(s.pending, p...)
	return len(p), nil
}

func (s *Sim) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.flushes++
	s.last = s.pending
	s.pending = nil
	log.Debug().Int("bytes", len(s.last)).Int("flush", s.flushes).Msg("sim flush")
	return nil
}

// Query answers the LED count query with a JSON array of Count black LEDs.
func (s *Sim) Query(req []byte) ([]byte, error) {
	if s.Count <= 0 {
		return nil, nil
	}
	items := make([]string, s.Count)
	for i := range items {
		items[i] = `"000000"`
	}
	return []byte("[" + strings.Join(items, ",") + "]"), nil
}

// Last returns a copy of the bytes of the most recent flush.
func (s *Sim) Last() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.last...)
}

// Flushes counts completed flushes.
func (s *Sim) Flushes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushes
}

func (s *Sim) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
