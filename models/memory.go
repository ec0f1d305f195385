package models

import "time"

const (
	MemoryPreference     = "preference"
	MemoryRecommendation = "recommendation"
	MemoryInsight        = "insight"
)

// AgentMemory is one long-term memory row. Rows are never updated in place.
type AgentMemory struct {
	ID         string         `json:"id"`
	UserID     string         `json:"user_id"`
	Type       string         `json:"type"`
	Content    string         `json:"content"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Importance int            `json:"importance"`
	CreatedAt  time.Time      `json:"created_at"`
}

// ConversationTurn is one short-term memory message.
type ConversationTurn struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	ToolName  string    `json:"tool_name,omitempty"`
}
