package layout

// ZoneCount is the number of colour zones carried by a broadcast snapshot.
const ZoneCount = 4

// Span is a contiguous run of LEDs [Start, Start+Len).
type Span struct {
	Start int
	Len   int
}

// End returns the index one past the last LED of the span.
func (s Span) End() int { return s.Start + s.Len }

// Strip is a single addressable strip wired in index order.
type Strip struct {
	Count int
}

// Zones splits the strip into ZoneCount contiguous spans. The first three
// spans get Count/4 LEDs each (integer division) and the last one takes the
// remainder, Count - 3*(Count/4), so the spans always cover the strip exactly
// with no LED left over or duplicated.
func (l Strip) Zones() [ZoneCount]Span {
	var out [ZoneCount]Span
	if l.Count <= 0 {
		return out
	}
	low := l.Count / ZoneCount
	start := 0
	for i := 0; i < ZoneCount-1; i++ {
		out[i] = Span{Start: start, Len: low}
		start += low
	}
	out[ZoneCount-1] = Span{Start: start, Len: l.Count - start}
	return out
}
