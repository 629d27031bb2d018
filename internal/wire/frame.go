// Package wire defines the pi agent's newline-delimited JSON protocol: the
// request/response envelopes, the event taxonomy, the conversation message
// model, and the stream decoder.
//
// One frame is one newline-terminated JSON object. A frame whose type is
// "response" answers a request by id; every other frame is an event.
package wire

import (
	"encoding/json"
	"fmt"
)

// TypeResponse is the frame type reserved for request responses. Any other
// type marks an event frame.
const TypeResponse = "response"

// Response is the envelope the agent sends back for a correlated request.
type Response struct {
	// Type is always "response".
	Type string `json:"type"`
	// ID echoes the request id (e.g. "req_12").
	ID string `json:"id"`
	// Command echoes the request's command type.
	Command string `json:"command,omitempty"`
	// Success indicates whether the command succeeded.
	Success bool `json:"success"`
	// Data carries the command result when Success is true.
	Data json.RawMessage `json:"data,omitempty"`
	// Error carries the failure message when Success is false.
	Error string `json:"error,omitempty"`
}

// frameHeader is the minimal shape needed to classify an incoming frame.
type frameHeader struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// EncodeCommand serializes a command into a single wire frame: the payload's
// fields flattened into one object with "type" and "id" injected, terminated
// by a newline. A nil payload encodes a bare command.
//
// id may be empty for fire-and-forget frames (e.g. extension_ui_response,
// which correlates through its own payload id).
func EncodeCommand(cmdType string, id string, payload any) ([]byte, error) {
	if cmdType == "" {
		return nil, fmt.Errorf("command type is empty")
	}

	obj := map[string]json.RawMessage{}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", cmdType, err)
		}
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, fmt.Errorf("%s payload must encode to a JSON object: %w", cmdType, err)
		}
	}

	typeRaw, _ := json.Marshal(cmdType)
	obj["type"] = typeRaw
	if id != "" {
		idRaw, _ := json.Marshal(id)
		obj["id"] = idRaw
	}

	frame, err := json.Marshal(obj)
	if err != nil {
		return nil, err
	}
	return append(frame, '\n'), nil
}

// ParseResponse decodes a raw frame as a Response. ok is false when the frame
// is not a response.
func ParseResponse(raw json.RawMessage) (*Response, bool, error) {
	var hdr frameHeader
	if err := json.Unmarshal(raw, &hdr); err != nil {
		return nil, false, err
	}
	if hdr.Type != TypeResponse {
		return nil, false, nil
	}
	var resp Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, true, err
	}
	return &resp, true, nil
}
