// Package bridge holds the colour state shared between the external broadcast
// callback and the animation scheduler.
package bridge

import (
	"fmt"
	"strings"
	"sync"

	"github.com/coreman2200/chromawled/internal/layout"
	"github.com/coreman2200/chromawled/internal/render"
)

// State is the animation mode.
type State int

const (
	Wave State = iota
	Chroma
)

func (s State) String() string {
	switch s {
	case Wave:
		return "wave"
	case Chroma:
		return "chroma"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// ParseState accepts "wave" or "chroma", case-insensitively.
func ParseState(s string) (State, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "wave":
		return Wave, nil
	case "chroma":
		return Chroma, nil
	}
	return Wave, fmt.Errorf("unknown colour state %q", s)
}

// Snapshot is one broadcast of the four zone colours. It is a plain value:
// copying it copies the colours.
type Snapshot struct {
	Zones [layout.ZoneCount]render.RGB
	Live  bool
}

// Bridge is the only state the broadcast callback may touch. Writers replace
// the snapshot wholesale under the lock, so a reader always sees either the
// old or the new snapshot, never a mix.
type Bridge struct {
	mu       sync.RWMutex
	state    State
	snapshot Snapshot
	has      bool
}

// New returns a bridge in the Wave state with no snapshot.
func New() *Bridge {
	return &Bridge{state: Wave}
}

// PublishStatus records the broadcaster going live or not. Going live drops
// any stored snapshot and arms Chroma while waiting for colours; going away
// falls back to Wave only when no snapshot is stored.
func (b *Bridge) PublishStatus(live bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if live {
		b.has = false
		b.snapshot = Snapshot{}
		b.state = Chroma
		return
	}
	if !b.has {
		b.state = Wave
	}
}

// PublishColors stores a copy of s and keeps the state at Chroma.
func (b *Bridge) PublishColors(s Snapshot) {
	s.Live = true
	b.mu.Lock()
	b.snapshot = s
	b.has = true
	b.state = Chroma
	b.mu.Unlock()
}

// Read returns the derived state and, when present, a copy of the latest snapshot.
func (b *Bridge) Read() (State, Snapshot, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state, b.snapshot, b.has
}
