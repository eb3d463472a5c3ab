package app

import (
	"github.com/coreman2200/chromawled/internal/bridge"
	"github.com/coreman2200/chromawled/internal/wled"
)

// RenderMessage travels from the animation side to the transmitter:
// NewFrame, DeviceCommand or Shutdown.
type RenderMessage interface{ isRenderMessage() }

// OverrideMessage travels from the control surface to the animator:
// SetState, ClearOverride or Shutdown.
type OverrideMessage interface{ isOverrideMessage() }

// NewFrame carries an encoded TPM2 data frame.
type NewFrame struct{ Frame []byte }

// DeviceCommand is executed against the transport as soon as it is drained.
type DeviceCommand struct{ Command wled.Command }

// SetState pins the animation mode regardless of the broadcaster.
type SetState struct{ State bridge.State }

// ClearOverride hands the mode back to the broadcaster.
type ClearOverride struct{}

// Shutdown stops whichever loop drains it. It is both a render and an override message.
type Shutdown struct{}

func (NewFrame) isRenderMessage()      {}
func (DeviceCommand) isRenderMessage() {}
func (Shutdown) isRenderMessage()      {}

func (SetState) isOverrideMessage()      {}
func (ClearOverride) isOverrideMessage() {}
func (Shutdown) isOverrideMessage()      {}
