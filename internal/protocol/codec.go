package protocol

import (
	"encoding/json"
	"math"
)

// Decode parses and validates one inbound frame, failing fast on the
// first bad step. Three outcomes are possible:
//
//   - (req, nil): a valid request (or a well-formed pong) ready to dispatch.
//   - (nil, err): a parse/validation failure; err.Details carries nothing
//     extra and the caller must emit an ErrorFrame with id 0 unless err
//     is nil (see below).
//   - (nil, nil): a malformed "pong" frame, dropped silently; the
//     heartbeat relies on timing, not error frames.
func Decode(raw []byte) (*Request, *Error) {
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, NewError(CodeParseError, "malformed JSON")
	}

	obj, ok := generic.(map[string]any)
	if !ok {
		return nil, NewError(CodeParseError, "frame must be a JSON object")
	}

	rawType, ok := obj["type"]
	if !ok {
		return nil, NewError(CodeInvalidRequest, "type is required")
	}
	typ, ok := rawType.(string)
	if !ok || typ == "" {
		return nil, NewError(CodeInvalidRequest, "type must be a non-empty string")
	}

	if typ == "pong" {
		ts, ok := numericField(obj["timestamp"])
		if !ok {
			return nil, nil
		}
		body, _ := json.Marshal(obj)
		return &Request{Type: typ, IsPong: true, PongAt: ts, Raw: body}, nil
	}

	id, ok := numericField(obj["id"])
	if !ok {
		return nil, NewError(CodeInvalidRequest, "id must be a finite number")
	}

	body, _ := json.Marshal(obj)
	return &Request{ID: id, Type: typ, Raw: body}, nil
}

func numericField(v any) (float64, bool) {
	f, ok := v.(float64)
	if !ok {
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// Encode marshals any outbound frame value to its wire JSON form.
func Encode(frame any) ([]byte, error) {
	return json.Marshal(frame)
}
