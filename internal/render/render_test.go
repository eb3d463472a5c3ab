package render

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/coreman2200/chromawled/internal/layout"
)

func TestBufferBytesRoundTrip(t *testing.T) {
	b := Buffer{{1, 2, 3}, {4, 5, 6}}
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6}, b.Bytes())
	assert.Equal(t, b, FromBytes(b.Bytes()))
	assert.Equal(t, Buffer{{7, 8, 9}}, FromBytes([]byte{7, 8, 9, 10}))
}

func TestWaveHueArithmetic(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		start := rapid.Float64Range(0, 359.999).Draw(t, "start")
		step := rapid.Float64Range(0.01, 10).Draw(t, "step")
		k := rapid.IntRange(0, 2000).Draw(t, "ticks")

		w := NewWave(8, start, step, HSL)
		for i := 0; i < k; i++ {
			w.Next()
		}
		want := math.Mod(start+float64(k)*step, 360)
		got := w.Hue()
		// compare on the circle so 359.9999 and 0.0001 count as close
		diff := math.Abs(got - want)
		diff = math.Min(diff, 360-diff)
		if diff > 1e-6 {
			t.Fatalf("hue after %d ticks of %v from %v: got %v want %v", k, step, start, got, want)
		}
	})
}

func TestWaveRingLengthInvariant(t *testing.T) {
	for _, n := range []int{0, 1, 2, 30, 144} {
		w := NewWave(n, DefaultStartHue, DefaultHueStep, HSL)
		for i := 0; i < 3*n+500; i++ {
			buf := w.Next()
			require.Len(t, buf, n)
		}
		assert.Equal(t, n, w.Len())
	}
}

func TestWaveShiftsFrontToBack(t *testing.T) {
	w := NewWave(4, 0, 90, HSL)
	first := w.Next()
	second := w.Next()

	assert.Equal(t, first[0], second[1], "previous front colour must move one place back")
	assert.Equal(t, RGB{}, second[3], "ring starts black")

	// hue 90 and 180 at full saturation, half lightness
	assert.Equal(t, RGB{128, 255, 0}, first[0])
	assert.Equal(t, RGB{0, 255, 255}, second[0])
}

func TestWaveReturnsCopy(t *testing.T) {
	w := NewWave(3, 0, 1, HSL)
	buf := w.Next()
	buf[0] = RGB{1, 1, 1}
	next := w.Next()
	assert.NotEqual(t, RGB{1, 1, 1}, next[1])
}

func TestWaveHSLuvStaysInGamut(t *testing.T) {
	w := NewWave(1, 0, 7.3, HSLuv)
	for i := 0; i < 100; i++ {
		require.Len(t, w.Next(), 1)
	}
}

func TestMapZones(t *testing.T) {
	zones := [layout.ZoneCount]RGB{{255, 0, 0}, {0, 255, 0}, {0, 0, 255}, {9, 9, 9}}
	buf := MapZones(zones, 7)
	assert.Equal(t, Buffer{
		{255, 0, 0},
		{0, 255, 0},
		{0, 0, 255},
		{9, 9, 9}, {9, 9, 9}, {9, 9, 9}, {9, 9, 9},
	}, buf)
	assert.Empty(t, MapZones(zones, 0))
}

func TestMapZonesLength(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 5000).Draw(t, "n")
		zones := [layout.ZoneCount]RGB{{1, 0, 0}, {2, 0, 0}, {3, 0, 0}, {4, 0, 0}}
		buf := MapZones(zones, n)
		if len(buf) != n {
			t.Fatalf("len=%d want %d", len(buf), n)
		}
		if buf[n-1] != zones[3] {
			t.Fatalf("last LED must belong to zone 4, got %v", buf[n-1])
		}
	})
}
