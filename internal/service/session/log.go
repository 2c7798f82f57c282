package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/tavus-echo/backend/internal/model/conversation"
)

const subscriberBuffer = 32

// Log is the append-only, page-scoped event log.
type Log struct {
	mu      sync.Mutex
	pageID  string
	entries []conversation.LogEntry
	subs    map[int]chan conversation.LogEntry
	nextSub int
	now     func() time.Time
}

// NewLog creates an empty log for the page.
func NewLog(pageID string) *Log {
	return &Log{
		pageID:  pageID,
		entries: make([]conversation.LogEntry, 0, 16),
		subs:    make(map[int]chan conversation.LogEntry),
		now:     time.Now,
	}
}

// Append records one line and fans it out to subscribers.
func (l *Log) Append(message string) conversation.LogEntry {
	l.mu.Lock()
	entry := conversation.LogEntry{At: l.now().UTC(), Message: message}
	l.entries = append(l.entries, entry)
	for _, ch := range l.subs {
		// slow readers miss live lines but can reload the full log
		select {
		case ch <- entry:
		default:
		}
	}
	l.mu.Unlock()

	log.Debug().Str("component", "pagelog").Str("page_id", l.pageID).Msg(message)
	return entry
}

// Appendf formats and records one line.
func (l *Log) Appendf(format string, args ...any) conversation.LogEntry {
	return l.Append(fmt.Sprintf(format, args...))
}

// Entries returns a copy of all recorded entries.
func (l *Log) Entries() []conversation.LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	copied := make([]conversation.LogEntry, len(l.entries))
	copy(copied, l.entries)
	return copied
}

// Lines renders every entry in order.
func (l *Log) Lines() []string {
	entries := l.Entries()
	lines := make([]string, len(entries))
	for i, entry := range entries {
		lines[i] = entry.Line()
	}
	return lines
}

// Subscribe streams entries appended after the call. The returned func unsubscribes.
func (l *Log) Subscribe() (<-chan conversation.LogEntry, func()) {
	l.mu.Lock()
	defer l.mu.Unlock()

	id := l.nextSub
	l.nextSub++
	ch := make(chan conversation.LogEntry, subscriberBuffer)
	l.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.subs, id)
			l.mu.Unlock()
			close(ch)
		})
	}
}
