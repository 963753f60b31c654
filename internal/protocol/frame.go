package protocol

import "encoding/json"

// Version is the protocol version string advertised in the welcome frame.
const Version = "1.0.0"

// Request is a parsed, validated inbound client frame.
type Request struct {
	ID      float64
	Type    string
	Raw     json.RawMessage
	IsPong  bool
	PongAt  float64
}

// Params unmarshals the request's raw body into v.
func (r *Request) Params(v any) error {
	if len(r.Raw) == 0 {
		return nil
	}
	return json.Unmarshal(r.Raw, v)
}

// WelcomeFrame is the first frame sent after a successful upgrade.
type WelcomeFrame struct {
	Type         string `json:"type"`
	Version      string `json:"version"`
	ServerTime   int64  `json:"serverTime"`
	RequiresAuth bool   `json:"requiresAuth"`
}

// ResultFrame is the terminal success response to a Request.
type ResultFrame struct {
	ID   float64 `json:"id"`
	Type string  `json:"type"`
	Data any     `json:"data"`
}

// ErrorFrame is the terminal error response to a Request, or a codec-level
// failure with ID 0.
type ErrorFrame struct {
	ID      float64 `json:"id"`
	Type    string  `json:"type"`
	Code    Code    `json:"code"`
	Message string  `json:"message"`
	Details any     `json:"details,omitempty"`
}

// PushFrame is an unsolicited server-to-client notification.
type PushFrame struct {
	Type           string  `json:"type"`
	Channel        string  `json:"channel"`
	SubscriptionID string  `json:"subscriptionId"`
	Data           any     `json:"data"`
}

// PingFrame is a server heartbeat probe.
type PingFrame struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

// SystemFrame carries out-of-band server events, e.g. shutdown notice.
type SystemFrame struct {
	Type         string `json:"type"`
	Event        string `json:"event"`
	GracePeriodMs int64 `json:"gracePeriodMs,omitempty"`
}

func NewWelcome(serverTimeMs int64, requiresAuth bool) *WelcomeFrame {
	return &WelcomeFrame{Type: "welcome", Version: Version, ServerTime: serverTimeMs, RequiresAuth: requiresAuth}
}

func NewResult(id float64, data any) *ResultFrame {
	return &ResultFrame{ID: id, Type: "result", Data: data}
}

func NewErrorFrame(id float64, e *Error) *ErrorFrame {
	return &ErrorFrame{ID: id, Type: "error", Code: e.Code, Message: e.Message, Details: e.Details}
}

func NewPush(channel, subscriptionID string, data any) *PushFrame {
	return &PushFrame{Type: "push", Channel: channel, SubscriptionID: subscriptionID, Data: data}
}

func NewPing(timestampMs int64) *PingFrame {
	return &PingFrame{Type: "ping", Timestamp: timestampMs}
}

func NewShutdownSystem(gracePeriodMs int64) *SystemFrame {
	return &SystemFrame{Type: "system", Event: "shutdown", GracePeriodMs: gracePeriodMs}
}
