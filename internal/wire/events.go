package wire

import (
	"encoding/json"
	"fmt"
)

// Event frame types.
const (
	EventAgentStart         = "agent_start"
	EventAgentEnd           = "agent_end"
	EventMessageStart       = "message_start"
	EventMessageUpdate      = "message_update"
	EventMessageEnd         = "message_end"
	EventToolExecutionStart = "tool_execution_start"
	EventToolExecUpdate     = "tool_execution_update"
	EventToolExecutionEnd   = "tool_execution_end"
	EventUIRequest          = "extension_ui_request"
	EventUIResponse         = "extension_ui_response"
)

// Nested assistant message event types carried by message_update frames.
const (
	AssistantStart         = "start"
	AssistantTextDelta     = "text_delta"
	AssistantThinkingDelta = "thinking_delta"
	AssistantTextEnd       = "text_end"
	AssistantThinkingEnd   = "thinking_end"
	AssistantDone          = "done"
	AssistantError         = "error"
)

// Event is a decoded non-response frame.
type Event interface {
	// EventType returns the frame's type field.
	EventType() string
}

// AgentStartEvent marks the beginning of an agent turn.
type AgentStartEvent struct{}

// EventType implements Event.
func (AgentStartEvent) EventType() string { return EventAgentStart }

// AgentEndEvent marks the end of an agent turn. Messages is the authoritative
// conversation log at the turn boundary.
type AgentEndEvent struct {
	Messages []Message `json:"messages"`
}

// EventType implements Event.
func (AgentEndEvent) EventType() string { return EventAgentEnd }

// MessageStartEvent announces a new streaming message.
type MessageStartEvent struct {
	Message *Message `json:"message,omitempty"`
}

// EventType implements Event.
func (MessageStartEvent) EventType() string { return EventMessageStart }

// AssistantMessageEvent is the nested delta payload inside a message_update
// frame, discriminated by Type.
type AssistantMessageEvent struct {
	// Type is the delta kind (text_delta, thinking_delta, text_end,
	// thinking_end, start, done, error, toolcall_*).
	Type string `json:"type"`
	// Text is the fragment for text_delta, or the full authoritative text for
	// text_end.
	Text string `json:"text,omitempty"`
	// Thinking is the fragment for thinking_delta, or the full authoritative
	// thinking for thinking_end.
	Thinking string `json:"thinking,omitempty"`
	// Message is the final assistant message for done.
	Message *Message `json:"message,omitempty"`
	// Error is the failure description for error.
	Error string `json:"error,omitempty"`
}

// MessageUpdateEvent carries one incremental assistant message event.
type MessageUpdateEvent struct {
	AssistantEvent AssistantMessageEvent `json:"assistantMessageEvent"`
}

// EventType implements Event.
func (MessageUpdateEvent) EventType() string { return EventMessageUpdate }

// MessageEndEvent closes a streaming message.
type MessageEndEvent struct {
	Message *Message `json:"message,omitempty"`
}

// EventType implements Event.
func (MessageEndEvent) EventType() string { return EventMessageEnd }

// ToolExecutionStartEvent announces the start of a tool execution.
type ToolExecutionStartEvent struct {
	ToolCallID string          `json:"toolCallId"`
	ToolName   string          `json:"toolName"`
	Args       json.RawMessage `json:"args,omitempty"`
}

// EventType implements Event.
func (ToolExecutionStartEvent) EventType() string { return EventToolExecutionStart }

// ToolExecutionUpdateEvent carries incremental tool output.
type ToolExecutionUpdateEvent struct {
	ToolCallID    string          `json:"toolCallId"`
	PartialResult json.RawMessage `json:"partialResult,omitempty"`
}

// EventType implements Event.
func (ToolExecutionUpdateEvent) EventType() string { return EventToolExecUpdate }

// ToolExecutionEndEvent finalizes a tool execution.
type ToolExecutionEndEvent struct {
	ToolCallID string          `json:"toolCallId"`
	Result     json.RawMessage `json:"result,omitempty"`
	IsError    bool            `json:"isError"`
}

// EventType implements Event.
func (ToolExecutionEndEvent) EventType() string { return EventToolExecutionEnd }

// UIRequestEvent is an agent-initiated UI request. The client answers with an
// extension_ui_response frame echoing ID; there is no correlated future.
type UIRequestEvent struct {
	// ID is the agent's request id, echoed in the response frame.
	ID string `json:"id"`
	// Kind names the requested interaction (e.g. "select", "confirm").
	Kind string `json:"kind,omitempty"`
	// Payload is the request body, left opaque at this layer.
	Payload json.RawMessage `json:"payload,omitempty"`
}

// EventType implements Event.
func (UIRequestEvent) EventType() string { return EventUIRequest }

// GenericEvent wraps frames this layer has no typed decoding for (tool_call
// and tool_result echoes, future event types). The raw frame is preserved.
type GenericEvent struct {
	Type string
	Raw  json.RawMessage
}

// EventType implements Event.
func (e GenericEvent) EventType() string { return e.Type }

// ParseEvent decodes a non-response frame into its typed event.
//
// Unknown event types decode to GenericEvent; only frames without a type
// field (or with type "response") are an error.
func ParseEvent(raw json.RawMessage) (Event, error) {
	var hdr frameHeader
	if err := json.Unmarshal(raw, &hdr); err != nil {
		return nil, err
	}
	if hdr.Type == "" {
		return nil, fmt.Errorf("frame has no type field")
	}
	if hdr.Type == TypeResponse {
		return nil, fmt.Errorf("response frame is not an event")
	}

	decode := func(v any) (Event, error) {
		if err := json.Unmarshal(raw, v); err != nil {
			return nil, fmt.Errorf("decode %s event: %w", hdr.Type, err)
		}
		return v.(Event), nil
	}

	switch hdr.Type {
	case EventAgentStart:
		return &AgentStartEvent{}, nil
	case EventAgentEnd:
		return decode(&AgentEndEvent{})
	case EventMessageStart:
		return decode(&MessageStartEvent{})
	case EventMessageUpdate:
		return decode(&MessageUpdateEvent{})
	case EventMessageEnd:
		return decode(&MessageEndEvent{})
	case EventToolExecutionStart:
		return decode(&ToolExecutionStartEvent{})
	case EventToolExecUpdate:
		return decode(&ToolExecutionUpdateEvent{})
	case EventToolExecutionEnd:
		return decode(&ToolExecutionEndEvent{})
	case EventUIRequest:
		return decode(&UIRequestEvent{})
	default:
		return GenericEvent{Type: hdr.Type, Raw: raw}, nil
	}
}
