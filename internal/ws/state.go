package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/lucasb-eyer/go-colorful"
	"github.com/rs/zerolog/log"

	"github.com/coreman2200/chromawled/internal/app"
	"github.com/coreman2200/chromawled/internal/bridge"
	"github.com/coreman2200/chromawled/internal/chroma"
	diag "github.com/coreman2200/chromawled/internal/diagnostics"
	"github.com/coreman2200/chromawled/internal/layout"
	"github.com/coreman2200/chromawled/internal/render"
	"github.com/coreman2200/chromawled/internal/tpm2"
	"github.com/coreman2200/chromawled/internal/wled"
)

// Controller is the part of the core the control surface drives.
type Controller interface {
	SetState(bridge.State)
	ClearOverride()
	Device(wled.Command)
	Shutdown()
	Status() app.Status
}

// ControlMessage is one JSON message on /control. Unset fields are ignored.
type ControlMessage struct {
	State      *string  `json:"state,omitempty"`      // "wave" | "chroma" | "auto"
	Power      *string  `json:"power,omitempty"`      // "on" | "off" | "toggle"
	Brightness *float64 `json:"brightness,omitempty"` // 0..1, 0.25 steps match the tray presets
	Bri        *int     `json:"bri,omitempty"`        // raw 0..255, wins over Brightness
	Colors     []string `json:"colors,omitempty"`     // four hex colours, zone 1-4
	Live       *bool    `json:"live,omitempty"`
	Quit       bool     `json:"quit,omitempty"`
}

type State struct {
	mu  sync.RWMutex
	ctl Controller
	pub chroma.Publisher

	Driver string

	frameID     uint64
	clients     map[*websocket.Conn]bool
	diagClients map[*websocket.Conn]bool
	diagMu      sync.Mutex
	preview     chan []byte
}

func NewState(ctl Controller, pub chroma.Publisher) *State {
	return &State{
		ctl:         ctl,
		pub:         pub,
		clients:     map[*websocket.Conn]bool{},
		diagClients: map[*websocket.Conn]bool{},
		preview:     make(chan []byte, 1),
	}
}

// Preview offers a transmitted frame to /ws clients. It never blocks: while a
// broadcast is in flight newer frames replace the queued one.
func (s *State) Preview(frame []byte) {
	for {
		select {
		case s.preview <- frame:
			return
		default:
		}
		select {
		case <-s.preview:
		default:
		}
	}
}

// Run broadcasts previewed frames until ctx is done.
func (s *State) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case f := <-s.preview:
			kind, pixels, _, err := tpm2.Decode(f)
			if err != nil {
				log.Debug().Err(err).Msg("preview decode")
				continue
			}
			if kind != tpm2.Data {
				continue
			}
			s.broadcastFrame(pixels)
		}
	}
}

func (s *State) HandleFramesWS(w http.ResponseWriter, r *http.Request) {
	up := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.sendTopology(conn)
	s.mu.Lock()
	s.clients[conn] = true
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			delete(s.clients, conn)
			s.mu.Unlock()
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (s *State) HandleDiagWS(w http.ResponseWriter, r *http.Request) {
	up := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.diagMu.Lock()
	s.diagClients[conn] = true
	s.diagMu.Unlock()
	go func() {
		defer func() {
			s.diagMu.Lock()
			delete(s.diagClients, conn)
			s.diagMu.Unlock()
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (s *State) HandleControlWS(w http.ResponseWriter, r *http.Request) {
	up := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg ControlMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.PushDiag(invalid(err))
			continue
		}
		if err := s.applyControl(msg); err != nil {
			s.PushDiag(invalid(err))
		}
		b, _ := json.Marshal(s.ctl.Status())
		if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
			return
		}
	}
}

func (s *State) HandleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	frameID := s.frameID
	s.mu.RUnlock()
	st := s.ctl.Status()
	resp := map[string]any{
		"frame_id": frameID,
		"uptime_s": st.Uptime.Seconds(),
		"leds":     st.LEDs,
		"state":    st.State,
		"override": st.Override,
		"live":     st.Live,
		"flushes":  st.Flushes,
		"driver":   s.Driver,
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *State) applyControl(msg ControlMessage) error {
	if msg.Quit {
		s.PushDiag(diag.New(diag.Info, diag.CodeShutdown, "Quit requested"))
		s.ctl.Shutdown()
		return nil
	}
	if msg.State != nil {
		if *msg.State == "auto" {
			s.ctl.ClearOverride()
			s.PushDiag(diag.New(diag.Info, diag.CodeStateAuto, "Mode follows the broadcaster"))
		} else {
			st, err := bridge.ParseState(*msg.State)
			if err != nil {
				return err
			}
			s.ctl.SetState(st)
			d := diag.New(diag.Info, diag.CodeStateOverride, "Mode pinned")
			d.Detail = st.String()
			s.PushDiag(d)
		}
	}
	if msg.Power != nil {
		var cmd wled.Command
		switch *msg.Power {
		case "on":
			cmd = wled.PowerOn()
		case "off":
			cmd = wled.PowerOff()
		case "toggle":
			cmd = wled.PowerToggle()
		default:
			return fmt.Errorf("unknown power action %q", *msg.Power)
		}
		s.device(cmd)
	}
	switch {
	case msg.Bri != nil:
		s.device(wled.SetBrightness(uint8(clamp(float64(*msg.Bri), 0, 255))))
	case msg.Brightness != nil:
		s.device(wled.SetBrightness(level(*msg.Brightness)))
	}
	if msg.Live != nil {
		s.pub.PublishStatus(*msg.Live)
		d := diag.New(diag.Info, diag.CodeBroadcast, "Broadcaster status pushed")
		d.Evidence = map[string]any{"live": *msg.Live}
		s.PushDiag(d)
	}
	if msg.Colors != nil {
		snap, err := parseColors(msg.Colors)
		if err != nil {
			return err
		}
		s.pub.PublishColors(snap)
		d := diag.New(diag.Info, diag.CodeBroadcast, "Zone colours pushed")
		d.Evidence = map[string]any{"colors": msg.Colors}
		s.PushDiag(d)
	}
	return nil
}

// level maps a 0..1 fraction onto the device's 0..255 scale in 1/256 steps,
// so 25/50/75/100 % give 64/128/192/255.
func level(f float64) uint8 {
	return uint8(math.Min(255, math.Round(clamp(f, 0, 1)*256)))
}

func (s *State) device(cmd wled.Command) {
	s.ctl.Device(cmd)
	d := diag.New(diag.Info, diag.CodeDeviceCommand, "Device command queued")
	d.Detail = cmd.String()
	s.PushDiag(d)
}

func (s *State) sendTopology(conn *websocket.Conn) {
	st := s.ctl.Status()
	top := map[string]any{
		"leds":   st.LEDs,
		"zones":  layout.Strip{Count: st.LEDs}.Zones(),
		"driver": s.Driver,
	}
	b, _ := json.Marshal(top)
	_ = conn.WriteMessage(websocket.TextMessage, b)
}

func (s *State) broadcastFrame(pixels render.Buffer) {
	s.mu.Lock()
	s.frameID++
	s.mu.Unlock()

	s.mu.RLock()
	defer s.mu.RUnlock()
	type frame struct {
		T       int64  `json:"t"`
		FrameID uint64 `json:"frame_id"`
		RGB     []byte `json:"rgb"`
	}
	b, _ := json.Marshal(frame{T: time.Now().UnixNano(), FrameID: s.frameID, RGB: pixels.Bytes()})
	for c := range s.clients {
		c.SetWriteDeadline(time.Now().Add(200 * time.Millisecond))
		if err := c.WriteMessage(websocket.TextMessage, b); err != nil {
			log.Debug().Err(err).Msg("write frame")
		}
	}
}

// PushDiag sends d to every /diag client.
func (s *State) PushDiag(d diag.Diagnostic) {
	b, _ := json.Marshal(d)
	s.diagMu.Lock()
	defer s.diagMu.Unlock()
	for c := range s.diagClients {
		c.SetWriteDeadline(time.Now().Add(200 * time.Millisecond))
		_ = c.WriteMessage(websocket.TextMessage, b)
	}
}

func invalid(err error) diag.Diagnostic {
	d := diag.New(diag.Warn, diag.CodeControlInvalid, "Control message ignored")
	d.Detail = err.Error()
	return d
}

func parseColors(hex []string) (bridge.Snapshot, error) {
	var snap bridge.Snapshot
	if len(hex) != layout.ZoneCount {
		return snap, fmt.Errorf("want %d colours, got %d", layout.ZoneCount, len(hex))
	}
	for i, h := range hex {
		c, err := colorful.Hex(h)
		if err != nil {
			return snap, fmt.Errorf("zone %d: %w", i+1, err)
		}
		r, g, b := c.RGB255()
		snap.Zones[i] = render.RGB{R: r, G: g, B: b}
	}
	snap.Live = true
	return snap, nil
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
