package app

import (
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/coreman2200/chromawled/internal/bridge"
	"github.com/coreman2200/chromawled/internal/mailbox"
	"github.com/coreman2200/chromawled/internal/render"
	"github.com/coreman2200/chromawled/internal/tpm2"
)

// StateSource is the read side of the colour bridge.
type StateSource interface {
	Read() (bridge.State, bridge.Snapshot, bool)
}

const noOverride = -1

// Animator is the fixed-rate producer: each tick it picks the wave or the
// zone colours, encodes a frame and queues it for the transmitter. It does no
// I/O and cannot fail.
type Animator struct {
	src       StateSource
	overrides *mailbox.Mailbox[OverrideMessage]
	out       *mailbox.Mailbox[RenderMessage]
	wave      *render.Wave
	leds      int
	period    time.Duration
	sleep     func(time.Duration)

	override  atomic.Int32
	effective atomic.Int32
}

func NewAnimator(src StateSource, overrides *mailbox.Mailbox[OverrideMessage], out *mailbox.Mailbox[RenderMessage], wave *render.Wave, period time.Duration) *Animator {
	a := &Animator{
		src:       src,
		overrides: overrides,
		out:       out,
		wave:      wave,
		leds:      wave.Len(),
		period:    period,
		sleep:     time.Sleep,
	}
	a.override.Store(noOverride)
	return a
}

// Override returns the manual override, if one is set.
func (a *Animator) Override() (bridge.State, bool) {
	v := a.override.Load()
	if v == noOverride {
		return bridge.Wave, false
	}
	return bridge.State(v), true
}

// Effective is the state used by the most recent tick.
func (a *Animator) Effective() bridge.State {
	return bridge.State(a.effective.Load())
}

// Step runs one tick. It returns false once a Shutdown has been drained.
func (a *Animator) Step() bool {
	for _, m := range a.overrides.Drain() {
		switch m := m.(type) {
		case Shutdown:
			return false
		case SetState:
			a.override.Store(int32(m.State))
			log.Info().Str("state", m.State.String()).Msg("override set")
		case ClearOverride:
			a.override.Store(noOverride)
			log.Info().Msg("override cleared")
		}
	}

	state, snap, ok := a.src.Read()
	if s, set := a.Override(); set {
		state = s
	}
	a.effective.Store(int32(state))

	var buf render.Buffer
	switch state {
	case bridge.Chroma:
		if !ok {
			return true
		}
		buf = render.MapZones(snap.Zones, a.leds)
	default:
		buf = a.wave.Next()
	}
	a.out.Send(NewFrame{Frame: tpm2.EncodeData(buf)})
	return true
}

// Run ticks until Shutdown, then forwards Shutdown to the transmitter.
func (a *Animator) Run() {
	log.Info().Int("leds", a.leds).Dur("period", a.period).Msg("animation scheduler started")
	defer func() {
		a.out.Send(Shutdown{})
		log.Info().Msg("animation scheduler stopped")
	}()
	for {
		start := time.Now()
		if !a.Step() {
			return
		}
		sleepRemainder(a.sleep, start, a.period)
	}
}
