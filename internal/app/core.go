package app

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"periph.io/x/conn/v3/physic"

	"github.com/coreman2200/chromawled/internal/bridge"
	"github.com/coreman2200/chromawled/internal/chroma"
	"github.com/coreman2200/chromawled/internal/mailbox"
	"github.com/coreman2200/chromawled/internal/render"
	"github.com/coreman2200/chromawled/internal/tpm2"
	"github.com/coreman2200/chromawled/internal/wled"
)

var (
	ErrNoLEDs      = errors.New("no LEDs reported by the controller")
	ErrTooManyLEDs = fmt.Errorf("more than %d LEDs do not fit a frame", tpm2.MaxPixels)
)

const (
	DefaultAnimationRate  = 240 * physic.Hertz
	DefaultTransmitRate   = 90 * physic.Hertz
	DefaultKeepaliveTicks = 100
)

// Options configures the pipeline. LEDs is fixed for the life of the Core.
type Options struct {
	LEDs           int
	AnimationRate  physic.Frequency
	TransmitRate   physic.Frequency
	KeepaliveTicks int

	WaveStartHue float64
	WaveStep     float64
	WaveModel    render.ColorModel

	// InitialOverride pins the mode from the first tick when set.
	InitialOverride *bridge.State
	// OnFlush sees every frame the transmitter writes. It runs on the
	// transmitter goroutine and must not block.
	OnFlush func(frame []byte)
}

func DefaultOptions() Options {
	return Options{
		AnimationRate:  DefaultAnimationRate,
		TransmitRate:   DefaultTransmitRate,
		KeepaliveTicks: DefaultKeepaliveTicks,
		WaveStartHue:   render.DefaultStartHue,
		WaveStep:       render.DefaultHueStep,
		WaveModel:      render.HSL,
	}
}

// Core wires the colour bridge, the two schedulers and their mailboxes.
type Core struct {
	Bridge *bridge.Bridge
	Events *chroma.Handler

	overrides *mailbox.Mailbox[OverrideMessage]
	frames    *mailbox.Mailbox[RenderMessage]
	anim      *Animator
	tx        *Transmitter
	leds      int
	started   time.Time
}

// InitCore validates the LED count and builds the pipeline around tr. Nothing
// runs until Run.
func InitCore(tr Transport, o Options) (*Core, error) {
	if o.LEDs <= 0 {
		return nil, ErrNoLEDs
	}
	if o.LEDs > tpm2.MaxPixels {
		return nil, ErrTooManyLEDs
	}
	d := DefaultOptions()
	if o.AnimationRate <= 0 {
		o.AnimationRate = d.AnimationRate
	}
	if o.TransmitRate <= 0 {
		o.TransmitRate = d.TransmitRate
	}
	if o.KeepaliveTicks <= 0 {
		o.KeepaliveTicks = d.KeepaliveTicks
	}
	if o.WaveStep == 0 {
		o.WaveStep = d.WaveStep
	}

	b := bridge.New()
	c := &Core{
		Bridge:    b,
		Events:    chroma.NewHandler(b),
		overrides: mailbox.New[OverrideMessage](),
		frames:    mailbox.New[RenderMessage](),
		leds:      o.LEDs,
		started:   time.Now(),
	}
	wave := render.NewWave(o.LEDs, o.WaveStartHue, o.WaveStep, o.WaveModel)
	c.anim = NewAnimator(b, c.overrides, c.frames, wave, o.AnimationRate.Period())
	c.tx = NewTransmitter(tr, c.frames, o.TransmitRate.Period(), o.KeepaliveTicks)
	c.tx.onFlush = o.OnFlush

	if o.InitialOverride != nil {
		c.SetState(*o.InitialOverride)
	}
	return c, nil
}

// Run blocks until both schedulers have stopped. A transport failure stops
// the animator too and is returned.
func (c *Core) Run() error {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.anim.Run()
	}()

	err := c.tx.Run()
	if err != nil {
		c.overrides.Send(Shutdown{})
	}
	wg.Wait()

	c.overrides.Close()
	c.frames.Close()
	if err != nil {
		return fmt.Errorf("transmit: %w", err)
	}
	return nil
}

func (c *Core) LEDs() int { return c.leds }

// SetState pins the animation mode.
func (c *Core) SetState(s bridge.State) { c.overrides.Send(SetState{State: s}) }

// ClearOverride returns control of the mode to the broadcaster.
func (c *Core) ClearOverride() { c.overrides.Send(ClearOverride{}) }

// Device queues a device control command for the transmitter.
func (c *Core) Device(cmd wled.Command) { c.frames.Send(DeviceCommand{Command: cmd}) }

// Shutdown asks the animator to stop; it passes the request on to the transmitter.
func (c *Core) Shutdown() {
	log.Info().Msg("shutdown requested")
	c.overrides.Send(Shutdown{})
}

// Status is a point-in-time view for health reporting.
type Status struct {
	LEDs     int           `json:"leds"`
	State    string        `json:"state"`
	Override string        `json:"override,omitempty"`
	Live     bool          `json:"live"`
	Flushes  uint64        `json:"flushes"`
	Uptime   time.Duration `json:"uptime_ns"`
}

func (c *Core) Status() Status {
	_, _, live := c.Bridge.Read()
	st := Status{
		LEDs:    c.leds,
		State:   c.anim.Effective().String(),
		Live:    live,
		Flushes: c.tx.Flushes(),
		Uptime:  time.Since(c.started),
	}
	if s, ok := c.anim.Override(); ok {
		st.Override = s.String()
	}
	return st
}
