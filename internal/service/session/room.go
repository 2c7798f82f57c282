package session

import (
	"errors"
	"sync"

	"github.com/zhouzirui/tavus-echo/backend/internal/model/conversation"
)

var errNoRoomConnection = errors.New("room connection not attached")

// AppMessageSender pushes an app message to the page, which relays it into the room.
type AppMessageSender interface {
	SendAppMessage(msg conversation.EchoMessage) error
}

// Room tracks the page's embedded room: whether it has joined and the queued echo.
type Room struct {
	mu      sync.Mutex
	sender  AppMessageSender
	joined  bool
	pending *conversation.EchoMessage
}

// Attach binds the page connection and returns the sender it replaced, if any.
func (r *Room) Attach(sender AppMessageSender) AppMessageSender {
	r.mu.Lock()
	defer r.mu.Unlock()
	previous := r.sender
	r.sender = sender
	r.joined = false
	return previous
}

// Detach unbinds sender if it is still the attached one. A queued echo survives.
func (r *Room) Detach(sender AppMessageSender) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sender != sender {
		return
	}
	r.sender = nil
	r.joined = false
}

// Deliver sends msg right away when joined, otherwise queues it for the next join.
// Only one echo is queued; a later request replaces the earlier one.
func (r *Room) Deliver(msg conversation.EchoMessage) (queued bool, err error) {
	r.mu.Lock()
	if !r.joined {
		r.pending = &msg
		r.mu.Unlock()
		return true, nil
	}
	sender := r.sender
	r.mu.Unlock()

	if sender == nil {
		return false, errNoRoomConnection
	}
	return false, sender.SendAppMessage(msg)
}

// Joined marks the room joined and flushes the queued echo exactly once.
// The pending slot is cleared before sending, so repeated or re-entrant joins find nothing.
func (r *Room) Joined() (flushed bool, err error) {
	r.mu.Lock()
	r.joined = true
	msg := r.pending
	r.pending = nil
	sender := r.sender
	r.mu.Unlock()

	if msg == nil {
		return false, nil
	}
	if sender == nil {
		return true, errNoRoomConnection
	}
	return true, sender.SendAppMessage(*msg)
}

// Left marks the room as no longer joined.
func (r *Room) Left() {
	r.mu.Lock()
	r.joined = false
	r.mu.Unlock()
}

// Reset forgets join state and any queued echo; used when the session changes.
func (r *Room) Reset() {
	r.mu.Lock()
	r.joined = false
	r.pending = nil
	r.mu.Unlock()
}

// Attached reports whether a page connection is bound.
func (r *Room) Attached() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sender != nil
}

// Status reports join and queue state.
func (r *Room) Status() (joined, pending bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.joined, r.pending != nil
}
