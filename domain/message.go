// Package domain contains core concepts of the conversation engine.
// This file defines Message entities and related rules.
// Messages are immutable once appended and totally ordered within a session.
package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Reserved sender identifiers. Everything else is a participant id.
const (
	UserSenderID   = "user"
	SystemSenderID = "system"
)

// RedactedState replaces a hidden internal-state block for viewers
// outside the author's alliance.
const RedactedState = "[redacted]"

// Message represents one immutable conversation entry.
//
// Recipient is empty for a broadcast. A non-empty Recipient holds either a
// participant id or an alliance tag and restricts visibility to the author,
// the recipient (or alliance members), and the human user.
//
// Inner carries the author's hidden internal-state block. It is never shown
// to viewers outside the author's alliance; the visibility filter replaces
// it with RedactedState.
type Message struct {
	ID        uuid.UUID  `json:"id"`
	SessionID string     `json:"session_id"`
	SenderID  string     `json:"sender_id"`
	Recipient string     `json:"recipient,omitempty"`
	Content   string     `json:"content"`
	Inner     string     `json:"inner,omitempty"`
	Media     []MediaRef `json:"media,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	IsError   bool       `json:"is_error,omitempty"`
}

// Empty reports whether the message carries neither visible text nor media.
// Empty messages ("ghost messages") are never persisted.
func (m Message) Empty() bool {
	return strings.TrimSpace(m.Content) == "" && len(m.Media) == 0
}

// Broadcast reports whether the message is visible to the whole table.
func (m Message) Broadcast() bool {
	return m.Recipient == ""
}

// FromHuman reports whether the human user authored the message.
func (m Message) FromHuman() bool {
	return m.SenderID == UserSenderID
}
