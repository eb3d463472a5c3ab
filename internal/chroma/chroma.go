// Package chroma decodes broadcast events from the ambient-lighting SDK and
// feeds them into the colour bridge. It runs on the SDK's own thread and so
// touches nothing but the Publisher it was given.
package chroma

import (
	"unsafe"

	"github.com/coreman2200/chromawled/internal/bridge"
	"github.com/coreman2200/chromawled/internal/layout"
	"github.com/coreman2200/chromawled/internal/render"
)

// EventKind is the event type passed to the SDK callback.
type EventKind int32

const (
	EventEffect EventKind = 1
	EventStatus EventKind = 2
)

// Status codes carried by EventStatus.
const (
	StatusLive    int32 = 1
	StatusNotLive int32 = 2
)

// PayloadWords is the number of 32-bit words in an effect payload; word 0 is reserved.
const PayloadWords = 1 + layout.ZoneCount

// Publisher receives decoded events. *bridge.Bridge implements it.
type Publisher interface {
	PublishStatus(live bool)
	PublishColors(s bridge.Snapshot)
}

// Handler turns raw SDK events into Publisher calls.
type Handler struct {
	pub Publisher
}

func NewHandler(p Publisher) *Handler {
	return &Handler{pub: p}
}

// HandleEvent is the entry point for the foreign callback. For EventStatus
// the payload pointer itself is the status code; for EventEffect it points at
// PayloadWords packed colours that are only valid during this call.
func (h *Handler) HandleEvent(kind EventKind, payload unsafe.Pointer) {
	switch kind {
	case EventStatus:
		h.Status(int32(uintptr(payload)))
	case EventEffect:
		if payload == nil {
			return
		}
		h.Effect(unsafe.Slice((*uint32)(payload), PayloadWords))
	}
}

// Status publishes the broadcaster's liveness. Only StatusLive (1) is live:
// the SDK reports StatusNotLive as 2, so a nonzero test would read it as live.
func (h *Handler) Status(code int32) {
	h.pub.PublishStatus(code == StatusLive)
}

// Effect decodes a colour broadcast. words may alias foreign memory; the
// colours are copied out before Effect returns. Short payloads are dropped.
func (h *Handler) Effect(words []uint32) {
	s, ok := DecodeSnapshot(words)
	if !ok {
		return
	}
	h.pub.PublishColors(s)
}

// DecodeSnapshot reads zones 1-4 from words[1:5].
func DecodeSnapshot(words []uint32) (bridge.Snapshot, bool) {
	if len(words) < PayloadWords {
		return bridge.Snapshot{}, false
	}
	var s bridge.Snapshot
	for i := 0; i < layout.ZoneCount; i++ {
		s.Zones[i] = UnpackColor(words[i+1])
	}
	s.Live = true
	return s, true
}

// UnpackColor reads a colour packed as 0x00BBGGRR, i.e. bytes R,G,B in
// little-endian order.
func UnpackColor(v uint32) render.RGB {
	return render.RGB{
		R: uint8(v),
		G: uint8(v >> 8),
		B: uint8(v >> 16),
	}
}
