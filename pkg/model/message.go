package model

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

type ToolCallID string

// NewToolCallID generates an id for a tool call the model left unnamed
func NewToolCallID() ToolCallID {
	return ToolCallID("call_" + uuid.New().String())
}

// ToolCall is a tool invocation requested by the assistant
type ToolCall struct {
	ID   ToolCallID
	Name string
	Args map[string]any

	// Signature is the opaque thought signature returned with the call. It must be sent
	// back with the call in later requests.
	Signature []byte
}

// Message is one entry of a session's append-only log
type Message struct {
	Role       Role
	Content    string
	ToolCalls  []ToolCall
	ToolCallID ToolCallID

	// Name is the tool name when Role is RoleTool
	Name string

	// Passages is the artifact attached to a tool result
	Passages []*Passage

	CreatedAt time.Time
}

func NewUserMessage(content string) *Message {
	return &Message{Role: RoleUser, Content: content, CreatedAt: time.Now()}
}

func NewAssistantMessage(content string, calls ...ToolCall) *Message {
	return &Message{Role: RoleAssistant, Content: content, ToolCalls: calls, CreatedAt: time.Now()}
}

func NewToolMessage(call ToolCall, content string, passages []*Passage) *Message {
	return &Message{
		Role:       RoleTool,
		Content:    content,
		ToolCallID: call.ID,
		Name:       call.Name,
		Passages:   passages,
		CreatedAt:  time.Now(),
	}
}

// HasToolCalls reports whether the message is an assistant tool request
func (m *Message) HasToolCalls() bool {
	return m.Role == RoleAssistant && len(m.ToolCalls) > 0
}
