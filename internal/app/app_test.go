package app

import (
	"bytes"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"periph.io/x/conn/v3/physic"

	"github.com/coreman2200/chromawled/internal/bridge"
	"github.com/coreman2200/chromawled/internal/mailbox"
	"github.com/coreman2200/chromawled/internal/render"
	"github.com/coreman2200/chromawled/internal/tpm2"
	"github.com/coreman2200/chromawled/internal/wled"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeTransport records every write and flush.
type fakeTransport struct {
	mu      sync.Mutex
	writes  [][]byte
	flushes int
	err     error
}

func (f *fakeTransport) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	f.writes = append(f.writes, append([]byte(nil), p...))
	return len(p), nil
}

func (f *fakeTransport) Flush() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushes++
	return nil
}

func (f *fakeTransport) Writes() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.writes...)
}

func frameOf(v uint8, n int) []byte {
	buf := make(render.Buffer, n)
	render.Fill(buf, render.RGB{R: v, G: v, B: v})
	return tpm2.EncodeData(buf)
}

func newTestTransmitter(keepalive int) (*Transmitter, *fakeTransport, *mailbox.Mailbox[RenderMessage]) {
	tr := &fakeTransport{}
	in := mailbox.New[RenderMessage]()
	return NewTransmitter(tr, in, time.Millisecond, keepalive), tr, in
}

func TestTransmitterStartsWithPing(t *testing.T) {
	tx, _, _ := newTestTransmitter(100)
	assert.Equal(t, tpm2.EncodePing(), tx.Last())
	assert.Equal(t, 0, tx.Elapsed())
}

func TestTransmitterDiffSuppression(t *testing.T) {
	tx, tr, in := newTestTransmitter(100)

	in.Send(NewFrame{Frame: frameOf(10, 3)})
	done, err := tx.Step()
	require.NoError(t, err)
	require.False(t, done)
	require.Len(t, tr.Writes(), 1)

	// same bytes in a fresh slice
	in.Send(NewFrame{Frame: frameOf(10, 3)})
	_, err = tx.Step()
	require.NoError(t, err)
	_, err = tx.Step()
	require.NoError(t, err)

	assert.Len(t, tr.Writes(), 1, "unchanged frame below the keepalive threshold must not be written")
	assert.Equal(t, 2, tx.Elapsed())
}

func TestTransmitterForcedFlush(t *testing.T) {
	for _, threshold := range []int{1, 5, 100} {
		tx, tr, _ := newTestTransmitter(threshold)
		for i := 0; i < threshold; i++ {
			_, err := tx.Step()
			require.NoError(t, err)
		}
		require.Empty(t, tr.Writes(), "threshold=%d", threshold)

		_, err := tx.Step()
		require.NoError(t, err)
		writes := tr.Writes()
		require.Len(t, writes, 1, "threshold=%d", threshold)
		assert.Equal(t, tpm2.EncodePing(), writes[0], "idle link keeps pinging")
		assert.Equal(t, 0, tx.Elapsed())
		assert.Equal(t, uint64(1), tx.Flushes())
	}
}

func TestTransmitterKeepsOnlyNewestFrame(t *testing.T) {
	tx, tr, in := newTestTransmitter(100)
	a, b, c := frameOf(1, 2), frameOf(2, 2), frameOf(3, 2)
	in.Send(NewFrame{Frame: a})
	in.Send(NewFrame{Frame: b})
	in.Send(NewFrame{Frame: c})

	_, err := tx.Step()
	require.NoError(t, err)
	assert.Equal(t, [][]byte{c}, tr.Writes())
	assert.Equal(t, c, tx.Last())
}

func TestTransmitterShutdownPrecedence(t *testing.T) {
	tx, tr, in := newTestTransmitter(100)
	in.Send(NewFrame{Frame: frameOf(1, 2)})
	in.Send(Shutdown{})
	in.Send(NewFrame{Frame: frameOf(2, 2)})

	done, err := tx.Step()
	require.NoError(t, err)
	assert.True(t, done)
	assert.Empty(t, tr.Writes())
}

func TestTransmitterRunsDeviceCommandsInOrder(t *testing.T) {
	tx, tr, in := newTestTransmitter(100)
	frame := frameOf(9, 1)
	in.Send(DeviceCommand{Command: wled.PowerToggle()})
	in.Send(NewFrame{Frame: frame})
	in.Send(DeviceCommand{Command: wled.SetBrightness(128)})

	_, err := tx.Step()
	require.NoError(t, err)
	assert.Equal(t, [][]byte{
		[]byte(`{"on":"t"}`),
		[]byte(`{"bri":128}`),
		frame,
	}, tr.Writes())
	assert.Equal(t, 3, tr.flushes)
}

func TestTransmitterTransportFailure(t *testing.T) {
	tx, tr, in := newTestTransmitter(100)
	tr.err = errors.New("port gone")
	in.Send(NewFrame{Frame: frameOf(1, 1)})

	done, err := tx.Step()
	assert.True(t, done)
	assert.ErrorIs(t, err, tr.err)

	in.Send(NewFrame{Frame: frameOf(2, 1)})
	assert.ErrorIs(t, tx.Run(), tr.err)
}

func TestTransmitterOnFlush(t *testing.T) {
	tx, _, in := newTestTransmitter(100)
	var seen [][]byte
	tx.onFlush = func(f []byte) { seen = append(seen, f) }
	in.Send(NewFrame{Frame: frameOf(4, 1)})
	_, err := tx.Step()
	require.NoError(t, err)
	assert.Equal(t, [][]byte{frameOf(4, 1)}, seen)
}

type animHarness struct {
	bridge    *bridge.Bridge
	overrides *mailbox.Mailbox[OverrideMessage]
	out       *mailbox.Mailbox[RenderMessage]
	anim      *Animator
}

func newAnimHarness(n int) *animHarness {
	h := &animHarness{
		bridge:    bridge.New(),
		overrides: mailbox.New[OverrideMessage](),
		out:       mailbox.New[RenderMessage](),
	}
	wave := render.NewWave(n, render.DefaultStartHue, render.DefaultHueStep, render.HSL)
	h.anim = NewAnimator(h.bridge, h.overrides, h.out, wave, time.Millisecond)
	return h
}

func (h *animHarness) frames(t *testing.T) [][]byte {
	var out [][]byte
	for _, m := range h.out.Drain() {
		f, ok := m.(NewFrame)
		require.True(t, ok, "unexpected message %T", m)
		out = append(out, f.Frame)
	}
	return out
}

func TestAnimatorWaveFrames(t *testing.T) {
	h := newAnimHarness(10)
	for i := 0; i < 3; i++ {
		require.True(t, h.anim.Step())
	}
	frames := h.frames(t)
	require.Len(t, frames, 3)
	for _, f := range frames {
		assert.Len(t, f, 5+3*10)
		assert.Equal(t, byte(0xDA), f[1])
	}
	assert.NotEqual(t, frames[0], frames[2])
	assert.Equal(t, bridge.Wave, h.anim.Effective())
}

func TestAnimatorChromaWaitsForSnapshot(t *testing.T) {
	h := newAnimHarness(8)
	h.bridge.PublishStatus(true)
	require.True(t, h.anim.Step())
	assert.Empty(t, h.frames(t), "no frame until colours arrive")

	zones := [4]render.RGB{{R: 255, G: 0, B: 0}, {R: 0, G: 255, B: 0}, {R: 0, G: 0, B: 255}, {R: 1, G: 2, B: 3}}
	h.bridge.PublishColors(bridge.Snapshot{Zones: zones})
	require.True(t, h.anim.Step())
	frames := h.frames(t)
	require.Len(t, frames, 1)
	assert.Equal(t, tpm2.EncodeData(render.MapZones(zones, 8)), frames[0])
	assert.Equal(t, bridge.Chroma, h.anim.Effective())
}

func TestAnimatorOverrideWins(t *testing.T) {
	h := newAnimHarness(4)
	h.bridge.PublishColors(bridge.Snapshot{Zones: [4]render.RGB{{R: 9, G: 9, B: 9}, {R: 9, G: 9, B: 9}, {R: 9, G: 9, B: 9}, {R: 9, G: 9, B: 9}}})

	// last one in a drain wins
	h.overrides.Send(SetState{State: bridge.Chroma})
	h.overrides.Send(SetState{State: bridge.Wave})
	require.True(t, h.anim.Step())
	s, ok := h.anim.Override()
	require.True(t, ok)
	assert.Equal(t, bridge.Wave, s)
	assert.Equal(t, bridge.Wave, h.anim.Effective())

	// the broadcaster changing state does not undo the override
	h.bridge.PublishStatus(true)
	require.True(t, h.anim.Step())
	assert.Equal(t, bridge.Wave, h.anim.Effective())
	assert.Len(t, h.frames(t), 2)

	h.overrides.Send(ClearOverride{})
	require.True(t, h.anim.Step())
	_, ok = h.anim.Override()
	assert.False(t, ok)
	assert.Equal(t, bridge.Chroma, h.anim.Effective())
}

func TestAnimatorShutdownDiscardsRest(t *testing.T) {
	h := newAnimHarness(4)
	h.overrides.Send(Shutdown{})
	h.overrides.Send(SetState{State: bridge.Chroma})
	assert.False(t, h.anim.Step())
	_, ok := h.anim.Override()
	assert.False(t, ok)
	assert.Empty(t, h.frames(t))
	assert.Zero(t, h.overrides.Len())
}

func TestAnimatorRunForwardsShutdown(t *testing.T) {
	h := newAnimHarness(4)
	h.overrides.Send(Shutdown{})
	h.anim.Run()
	msgs := h.out.Drain()
	require.Len(t, msgs, 1)
	assert.Equal(t, Shutdown{}, msgs[0])
}

func TestInitCoreRejectsBadCounts(t *testing.T) {
	o := DefaultOptions()
	_, err := InitCore(&fakeTransport{}, o)
	assert.ErrorIs(t, err, ErrNoLEDs)

	o.LEDs = tpm2.MaxPixels + 1
	_, err = InitCore(&fakeTransport{}, o)
	assert.ErrorIs(t, err, ErrTooManyLEDs)
}

func fastOptions(n int) Options {
	o := DefaultOptions()
	o.LEDs = n
	o.AnimationRate = 2 * physic.KiloHertz
	o.TransmitRate = 1 * physic.KiloHertz
	return o
}

func TestCoreRunAndShutdown(t *testing.T) {
	tr := &fakeTransport{}
	var mu sync.Mutex
	var flushed [][]byte
	o := fastOptions(6)
	o.OnFlush = func(f []byte) {
		mu.Lock()
		flushed = append(flushed, f)
		mu.Unlock()
	}
	core, err := InitCore(tr, o)
	require.NoError(t, err)

	errc := make(chan error, 1)
	go func() { errc <- core.Run() }()

	require.Eventually(t, func() bool { return core.Status().Flushes >= 3 }, 2*time.Second, time.Millisecond)
	core.Device(wled.PowerOff())
	require.Eventually(t, func() bool {
		for _, w := range tr.Writes() {
			if bytes.Equal(w, []byte(`{"on":false}`)) {
				return true
			}
		}
		return false
	}, 2*time.Second, time.Millisecond)

	st := core.Status()
	assert.Equal(t, 6, st.LEDs)
	assert.Equal(t, "wave", st.State)

	core.Shutdown()
	select {
	case err := <-errc:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("core did not stop")
	}

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, flushed)
	for _, f := range flushed {
		assert.Len(t, f, 5+3*6)
	}
}

func TestCoreInitialOverride(t *testing.T) {
	o := fastOptions(4)
	s := bridge.Chroma
	o.InitialOverride = &s
	core, err := InitCore(&fakeTransport{}, o)
	require.NoError(t, err)

	errc := make(chan error, 1)
	go func() { errc <- core.Run() }()
	require.Eventually(t, func() bool { return core.Status().Override == "chroma" }, 2*time.Second, time.Millisecond)

	core.Events.Status(1)
	core.Events.Effect([]uint32{0, 0xFF, 0xFF, 0xFF, 0xFF})
	require.Eventually(t, func() bool { return core.Status().Live }, 2*time.Second, time.Millisecond)

	core.Shutdown()
	require.NoError(t, <-errc)
}

func TestCoreTransportFailureStopsEverything(t *testing.T) {
	tr := &fakeTransport{err: errors.New("device unplugged")}
	core, err := InitCore(tr, fastOptions(3))
	require.NoError(t, err)

	errc := make(chan error, 1)
	go func() { errc <- core.Run() }()
	select {
	case err := <-errc:
		assert.ErrorIs(t, err, tr.err)
	case <-time.After(2 * time.Second):
		t.Fatal("core did not stop on transport failure")
	}
}
