package wire

import (
	"encoding/json"
	"strings"
)

// Message roles.
const (
	RoleUser       = "user"
	RoleAssistant  = "assistant"
	RoleToolResult = "toolResult"
)

// Content block types.
const (
	BlockText     = "text"
	BlockThinking = "thinking"
	BlockToolCall = "toolCall"
	BlockImage    = "image"
)

// Message is one entry in the conversation log.
//
// User messages carry a single text block. Assistant and toolResult messages
// carry an ordered sequence of typed content blocks.
type Message struct {
	// Role identifies the sender ("user", "assistant", "toolResult").
	Role string `json:"role"`
	// Content is the ordered sequence of content blocks.
	Content []ContentBlock `json:"content"`
	// LocalID is the client-supplied idempotency key for optimistic local
	// echo; empty for agent-authored messages.
	LocalID string `json:"localId,omitempty"`
	// CreatedAt is a wall-clock timestamp in milliseconds since epoch.
	CreatedAt int64 `json:"createdAt,omitempty"`
}

// ContentBlock is one typed unit of message content, discriminated by Type.
type ContentBlock struct {
	// Type identifies the block kind ("text", "thinking", "toolCall", "image").
	Type string `json:"type"`
	// Text is the block body when Type=="text".
	Text string `json:"text,omitempty"`
	// Thinking is the block body when Type=="thinking".
	Thinking string `json:"thinking,omitempty"`
	// ID is the tool call id when Type=="toolCall".
	ID string `json:"id,omitempty"`
	// Name is the tool name when Type=="toolCall".
	Name string `json:"name,omitempty"`
	// Input is the tool call arguments when Type=="toolCall".
	Input json.RawMessage `json:"input,omitempty"`
	// MimeType describes the payload when Type=="image".
	MimeType string `json:"mimeType,omitempty"`
	// Data is the base64 payload when Type=="image".
	Data string `json:"data,omitempty"`
}

// NewUserTextMessage builds a user message holding a single text block.
func NewUserTextMessage(text string, localID string, createdAt int64) Message {
	return Message{
		Role:      RoleUser,
		Content:   []ContentBlock{{Type: BlockText, Text: text}},
		LocalID:   localID,
		CreatedAt: createdAt,
	}
}

// Text concatenates the message's text blocks.
func (m Message) Text() string {
	var b strings.Builder
	for _, block := range m.Content {
		if block.Type == BlockText {
			b.WriteString(block.Text)
		}
	}
	return b.String()
}

// Thinking concatenates the message's thinking blocks.
func (m Message) Thinking() string {
	var b strings.Builder
	for _, block := range m.Content {
		if block.Type == BlockThinking {
			b.WriteString(block.Thinking)
		}
	}
	return b.String()
}
