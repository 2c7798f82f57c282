package tavus

import (
	"encoding/json"
	"fmt"
	"strings"
)

// SessionCreateError is returned when the service rejects conversation creation.
type SessionCreateError struct {
	StatusCode int
	Body       string
	Message    string
}

func (e *SessionCreateError) Error() string {
	return fmt.Sprintf("Conversation creation failed: %d - %s", e.StatusCode, e.Message)
}

// SessionEndError is returned when ending a conversation fails. Callers log it and move on.
type SessionEndError struct {
	ConversationID string
	StatusCode     int
	Body           string
	Err            error
}

func (e *SessionEndError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("end conversation %s: %v", e.ConversationID, e.Err)
	}
	return fmt.Sprintf("end conversation %s: status=%d body=%s", e.ConversationID, e.StatusCode, e.Body)
}

func (e *SessionEndError) Unwrap() error { return e.Err }

// SpeakError is returned when an echo could not be delivered.
type SpeakError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *SpeakError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("echo failed: %v", e.Err)
	}
	return fmt.Sprintf("echo failed: status=%d body=%s", e.StatusCode, e.Body)
}

func (e *SpeakError) Unwrap() error { return e.Err }

// errorMessage prefers the JSON "message" field and falls back to the raw body.
func errorMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Message != "" {
		return payload.Message
	}
	return strings.TrimSpace(string(body))
}
