package session_models

import (
	"errors"
	"time"
)

// ErrNotFound reports a session id with no stored history.
var ErrNotFound = errors.New("session not found")

// Turn is one message in a conversation. State carries the router
// outcome for assistant turns and is empty for user turns.
type Turn struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"` // user or assistant
	Content   string    `json:"content"`
	State     string    `json:"state,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Summary describes a stored session without its content.
type Summary struct {
	ID        string    `json:"id"`
	Turns     int       `json:"turns"`
	UpdatedAt time.Time `json:"updated_at"`
}
