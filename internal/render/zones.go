package render

import "github.com/coreman2200/chromawled/internal/layout"

// MapZones paints a strip of n LEDs with one uniform colour per zone, using
// the zone partition of layout.Strip.
func MapZones(zones [layout.ZoneCount]RGB, n int) Buffer {
	if n <= 0 {
		return Buffer{}
	}
	out := make(Buffer, n)
	for i, s := range (layout.Strip{Count: n}).Zones() {
		Fill(out[s.Start:s.End()], zones[i])
	}
	return out
}
