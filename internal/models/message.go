package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Role identifies the author side of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Part types for message content.
const (
	PartText       = "text"
	PartReasoning  = "reasoning"
	PartToolCall   = "tool-call"
	PartToolResult = "tool-result"
)

// Part is one typed segment of a message body. Text and Reasoning parts carry
// Text; tool parts carry the call/result payloads.
type Part struct {
	Type       string          `json:"type"`
	Text       string          `json:"text,omitempty"`
	ToolName   string          `json:"tool_name,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
	Args       json.RawMessage `json:"args,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
}

// Attachment is a file reference carried alongside a message.
type Attachment struct {
	URL         string `json:"url"`
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
}

// Message is one turn half within a chat. Messages are append-only: once
// persisted they are never edited. Within a chat, created_at order is the
// canonical replay order.
type Message struct {
	ID          string       `json:"id"` // ULID
	ChatID      uuid.UUID    `json:"chat_id"`
	Role        Role         `json:"role"`
	Parts       []Part       `json:"parts"`
	Attachments []Attachment `json:"attachments,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}

// PlainText concatenates the message's text parts, used for title derivation
// and prompt assembly.
func (m *Message) PlainText() string {
	var out string
	for _, p := range m.Parts {
		if p.Type == PartText {
			if out != "" {
				out += "\n"
			}
			out += p.Text
		}
	}
	return out
}
