// Package ws is the gateway's WebSocket wire protocol and client hub: a
// thin bridge between a persistent browser/CLI connection, the kernel's
// Router/Dispatch operations, and the event bus's live stream.
package ws

import "encoding/json"

// FrameType distinguishes a client request from a server response or an
// unsolicited event broadcast.
type FrameType string

const (
	FrameTypeRequest  FrameType = "req"
	FrameTypeResponse FrameType = "res"
	FrameTypeEvent    FrameType = "event"
)

// Method names a client-initiated request.
type Method string

const (
	MethodRoute    Method = "route"
	MethodDispatch Method = "dispatch"
	MethodSkillList Method = "skill_list"
)

// Frame is the protocol envelope for every message on the socket.
type Frame struct {
	Type    FrameType       `json:"type"`
	ID      string          `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	OK      *bool           `json:"ok,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
	Event   string          `json:"event,omitempty"`
}

// MarshalFrame serializes a Frame to JSON bytes.
func MarshalFrame(f Frame) ([]byte, error) {
	return json.Marshal(f)
}

// UnmarshalFrame deserializes JSON bytes into a Frame.
func UnmarshalFrame(data []byte) (Frame, error) {
	var f Frame
	err := json.Unmarshal(data, &f)
	return f, err
}

// NewEventFrame wraps an arbitrary payload as an event broadcast.
func NewEventFrame(event string, payload any) (Frame, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Type: FrameTypeEvent, Event: event, Payload: data}, nil
}

// NewResponseFrame wraps a request's outcome.
func NewResponseFrame(id string, ok bool, payload any, errMsg string) (Frame, error) {
	f := Frame{Type: FrameTypeResponse, ID: id, OK: &ok, Error: errMsg}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return Frame{}, err
		}
		f.Payload = data
	}
	return f, nil
}
