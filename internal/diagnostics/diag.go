package diagnostics

import "time"

type Severity string

const (
	Info Severity = "info"
	Warn Severity = "warning"
	Err  Severity = "error"
)

// Codes pushed to /diag clients.
const (
	CodeStateOverride  = "STATE.OVERRIDE"
	CodeStateAuto      = "STATE.AUTO"
	CodeDeviceCommand  = "DEVICE.COMMAND"
	CodeBroadcast      = "CHROMA.BROADCAST"
	CodeControlInvalid = "CONTROL.INVALID"
	CodeTransportFail  = "TRANSPORT.FAILURE"
	CodeShutdown       = "CORE.SHUTDOWN"
)

type Diagnostic struct {
	Time           time.Time      `json:"time"`
	Severity       Severity       `json:"severity"`
	Code           string         `json:"code"`
	Summary        string         `json:"summary"`
	Detail         string         `json:"detail,omitempty"`
	LikelyCauses   []string       `json:"likely_causes,omitempty"`
	SuggestedFixes []string       `json:"suggested_fixes,omitempty"`
	Evidence       map[string]any `json:"evidence,omitempty"`
}

func New(sev Severity, code, summary string) Diagnostic {
	return Diagnostic{Time: time.Now(), Severity: sev, Code: code, Summary: summary}
}

// TransportFailure describes a dead link to the LED controller.
func TransportFailure(err error) Diagnostic {
	d := New(Err, CodeTransportFail, "Transport to the LED controller failed")
	d.Detail = err.Error()
	d.LikelyCauses = []string{"controller unplugged or reset", "serial port claimed by another process"}
	d.SuggestedFixes = []string{"check the USB cable and port name", "restart chromawled once the device is back"}
	return d
}
