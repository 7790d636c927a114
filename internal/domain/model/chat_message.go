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
)

// ChatMessage is one entry of the append-only conversation history.
// It is never mutated after creation.
type ChatMessage struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Failed    bool      `json:"failed,omitempty"`  // terminal failure surfaced to the user
	Partial   bool      `json:"partial,omitempty"` // content was cut short by an interrupted stream
	JobID     string    `json:"job_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func NewChatMessage(role Role, content string) *ChatMessage {
	return &ChatMessage{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// NewFailureMessage builds the displayable assistant message for a terminal error.
func NewFailureMessage(content string) *ChatMessage {
	m := NewChatMessage(RoleAssistant, content)
	m.Failed = true
	return m
}

// WithJob returns a copy tagged with the gateway job that produced it.
func (m ChatMessage) WithJob(jobID string) *ChatMessage {
	m.JobID = jobID
	return &m
}
