package app

import (
	"bytes"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/coreman2200/chromawled/internal/mailbox"
	"github.com/coreman2200/chromawled/internal/tpm2"
)

// Transport is the byte sink the transmitter owns.
type Transport interface {
	io.Writer
	Flush() error
}

// Transmitter is the fixed-rate consumer. Each tick it drains the render
// mailbox, keeps only the newest frame, runs device commands straight away,
// and writes the frame only when it differs from the last one sent or the
// keepalive interval has run out.
type Transmitter struct {
	tr        Transport
	in        *mailbox.Mailbox[RenderMessage]
	period    time.Duration
	keepalive int
	sleep     func(time.Duration)
	onFlush   func(frame []byte)

	last    []byte
	elapsed int
	flushes atomic.Uint64
}

// NewTransmitter starts from a ping frame so an idle link still sees keepalives.
// keepalive is the number of ticks without a flush after which one is forced.
func NewTransmitter(tr Transport, in *mailbox.Mailbox[RenderMessage], period time.Duration, keepalive int) *Transmitter {
	return &Transmitter{
		tr:        tr,
		in:        in,
		period:    period,
		keepalive: keepalive,
		sleep:     time.Sleep,
		last:      tpm2.EncodePing(),
	}
}

// Elapsed is the number of ticks since the last flush.
func (t *Transmitter) Elapsed() int { return t.elapsed }

// Last is the most recently transmitted frame.
func (t *Transmitter) Last() []byte { return t.last }

// Flushes counts frames written to the transport.
func (t *Transmitter) Flushes() uint64 { return t.flushes.Load() }

// Step runs one tick. done is true when a Shutdown was drained or the
// transport failed; err carries the failure.
func (t *Transmitter) Step() (done bool, err error) {
	t.elapsed++

	candidate := t.last
	for _, m := range t.in.Drain() {
		switch m := m.(type) {
		case NewFrame:
			candidate = m.Frame
		case DeviceCommand:
			log.Info().Str("command", m.Command.String()).Msg("device command")
			if err := t.send(m.Command.Bytes()); err != nil {
				return true, fmt.Errorf("device command %s: %w", m.Command, err)
			}
		case Shutdown:
			return true, nil
		}
	}

	forced := t.elapsed > t.keepalive
	if !forced && bytes.Equal(candidate, t.last) {
		return false, nil
	}
	if forced {
		log.Debug().Int("ticks", t.elapsed).Msg("keepalive flush")
	}
	if err := t.send(candidate); err != nil {
		return true, fmt.Errorf("frame: %w", err)
	}
	t.last = candidate
	t.elapsed = 0
	t.flushes.Add(1)
	if t.onFlush != nil {
		t.onFlush(candidate)
	}
	return false, nil
}

func (t *Transmitter) send(b []byte) error {
	if _, err := t.tr.Write(b); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	if err := t.tr.Flush(); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	return nil
}

// Run ticks until Shutdown (nil) or the first transport error, which is returned as is.
func (t *Transmitter) Run() error {
	log.Info().Dur("period", t.period).Int("keepalive_ticks", t.keepalive).Msg("transmit scheduler started")
	for {
		start := time.Now()
		done, err := t.Step()
		if err != nil {
			log.Error().Err(err).Msg("transmit scheduler aborted")
			return err
		}
		if done {
			log.Info().Uint64("flushes", t.Flushes()).Msg("transmit scheduler stopped")
			return nil
		}
		sleepRemainder(t.sleep, start, t.period)
	}
}
