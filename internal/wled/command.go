// Package wled speaks the WLED serial control dialect: JSON state commands
// sent as raw bytes beside the TPM2 frame stream, and the LED-count query.
package wled

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Op is a device control operation.
type Op int

const (
	On Op = iota
	Off
	Toggle
	Brightness
)

func (o Op) String() string {
	switch o {
	case On:
		return "on"
	case Off:
		return "off"
	case Toggle:
		return "toggle"
	case Brightness:
		return "brightness"
	default:
		return "op(" + strconv.Itoa(int(o)) + ")"
	}
}

// Command is one device control command. Level is only used by Brightness.
type Command struct {
	Op    Op
	Level uint8
}

func PowerOn() Command              { return Command{Op: On} }
func PowerOff() Command             { return Command{Op: Off} }
func PowerToggle() Command          { return Command{Op: Toggle} }
func SetBrightness(b uint8) Command { return Command{Op: Brightness, Level: b} }

func (c Command) String() string {
	if c.Op == Brightness {
		return fmt.Sprintf("brightness(%d)", c.Level)
	}
	return c.Op.String()
}

// Bytes is the exact text sent on the wire.
func (c Command) Bytes() []byte {
	switch c.Op {
	case On:
		return []byte(`{"on":true}`)
	case Off:
		return []byte(`{"on":false}`)
	case Toggle:
		return []byte(`{"on":"t"}`)
	case Brightness:
		return []byte(`{"bri":` + strconv.Itoa(int(c.Level)) + `}`)
	}
	return nil
}

type wireState struct {
	On  json.RawMessage `json:"on"`
	Bri *int            `json:"bri"`
}

// ParseCommand reads a command produced by Bytes. Anything else reports false.
func ParseCommand(b []byte) (Command, bool) {
	var w wireState
	if err := json.Unmarshal(bytes.TrimSpace(b), &w); err != nil {
		return Command{}, false
	}
	switch {
	case w.Bri != nil:
		if *w.Bri < 0 || *w.Bri > 255 {
			return Command{}, false
		}
		return SetBrightness(uint8(*w.Bri)), true
	case string(w.On) == "true":
		return PowerOn(), true
	case string(w.On) == "false":
		return PowerOff(), true
	case string(w.On) == `"t"`:
		return PowerToggle(), true
	}
	return Command{}, false
}
