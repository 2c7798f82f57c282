package conversation

import "time"

// Session is a live conversational room issued by the avatar service.
type Session struct {
	ID        string    `json:"id"`
	RoomURL   string    `json:"roomUrl"`
	CreatedAt time.Time `json:"createdAt"`
}

// SpeakRequest asks the avatar to say Text inside the session.
type SpeakRequest struct {
	SessionID string `json:"sessionId"`
	Text      string `json:"text"`
}

// LogEntry is one timestamped line of the page log.
type LogEntry struct {
	At      time.Time `json:"at"`
	Message string    `json:"message"`
}

// Line renders the entry as "[2006-01-02T15:04:05Z] message".
func (e LogEntry) Line() string {
	return "[" + e.At.UTC().Format("2006-01-02T15:04:05") + "Z] " + e.Message
}
