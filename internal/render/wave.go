package render

import (
	"math"

	colorful "github.com/lucasb-eyer/go-colorful"
)

// ColorModel selects the hue space the wave rotates through.
type ColorModel string

const (
	HSL   ColorModel = "hsl"
	HSLuv ColorModel = "hsluv"
)

const (
	DefaultStartHue = 127.7
	DefaultHueStep  = 1.0
)

// Wave is a hue-rotation animation. Each tick the hue advances by a fixed step
// and the resulting colour enters the front of a ring the size of the strip,
// pushing the oldest colour off the far end.
type Wave struct {
	hue   float64
	step  float64
	model ColorModel
	ring  Buffer
}

// NewWave returns a wave for n LEDs. The ring starts black.
func NewWave(n int, startHue, step float64, model ColorModel) *Wave {
	if n < 0 {
		n = 0
	}
	if model == "" {
		model = HSL
	}
	return &Wave{
		hue:   wrapHue(startHue),
		step:  step,
		model: model,
		ring:  make(Buffer, n),
	}
}

// Hue is the hue (degrees, [0,360)) of the most recent colour.
func (w *Wave) Hue() float64 { return w.hue }

// Len is the ring length; it never changes after construction.
func (w *Wave) Len() int { return len(w.ring) }

// Next advances the wave by one tick and returns a copy of the ring, front first.
func (w *Wave) Next() Buffer {
	w.hue = wrapHue(w.hue + w.step)
	c := w.color()

	// drop the oldest entry, then insert at the front
	if n := len(w.ring); n > 0 {
		copy(w.ring[1:], w.ring[:n-1])
		w.ring[0] = c
	}
	return w.ring.Clone()
}

func (w *Wave) color() RGB {
	var c colorful.Color
	switch w.model {
	case HSLuv:
		c = colorful.HSLuv(w.hue, 1.0, 0.5)
	default:
		c = colorful.Hsl(w.hue, 1.0, 0.5)
	}
	r, g, b := c.Clamped().RGB255()
	return RGB{r, g, b}
}

func wrapHue(h float64) float64 {
	h = math.Mod(h, 360)
	if h < 0 {
		h += 360
	}
	return h
}
