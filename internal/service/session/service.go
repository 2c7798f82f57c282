package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/tavus-echo/backend/internal/model/conversation"
	"github.com/zhouzirui/tavus-echo/backend/internal/service/tavus"
)

// SessionClient opens and closes remote conversations.
type SessionClient interface {
	CreateSession(ctx context.Context) (conversation.Session, error)
	EndSession(ctx context.Context, conversationID string) error
}

// Room event types relayed by the page.
const (
	EventLoaded           = "loaded"
	EventJoined           = "joined-meeting"
	EventLeft             = "left-meeting"
	EventParticipant      = "participant-joined"
	EventError            = "error"
	EventLoadFailed       = "load-failed"
	EventTracksDisabled   = "local-tracks-disabled"
	EventAppMessageSent   = "app-message-sent"
	EventAppMessageFailed = "app-message-error"
)

// RoomEvent is a callback from the embedded room widget.
type RoomEvent struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
}

// Service drives the page state machine: open, reset, end and speak.
type Service struct {
	client      SessionClient
	transport   Transport
	defaultText string
}

// NewService wires the session client and the deployment's echo transport.
func NewService(client SessionClient, transport Transport, defaultText string) *Service {
	return &Service{
		client:      client,
		transport:   transport,
		defaultText: defaultText,
	}
}

// TransportName reports which echo transport is active.
func (s *Service) TransportName() string {
	return s.transport.Name()
}

// DefaultText is the line spoken when no override is given.
func (s *Service) DefaultText() string {
	return s.defaultText
}

// Open creates a conversation on the first render of a page. Later renders never retry.
func (s *Service) Open(ctx context.Context, page *Page) error {
	page.action.Lock()
	defer page.action.Unlock()

	if !page.markOpened() || page.Slot() != SlotEmpty {
		return nil
	}
	if err := s.create(ctx, page); err != nil {
		return err
	}
	page.Log.Append("Conversation ready.")
	return nil
}

// Reset ends the current conversation, if any, and starts a new one.
func (s *Service) Reset(ctx context.Context, page *Page) error {
	page.action.Lock()
	defer page.action.Unlock()

	page.markOpened()
	s.end(ctx, page)
	if err := s.create(ctx, page); err != nil {
		return err
	}
	page.setFlash(FlashSuccess, "New session ready.")
	return nil
}

// End closes the current conversation. It reports whether there was one to end.
func (s *Service) End(ctx context.Context, page *Page) bool {
	page.action.Lock()
	defer page.action.Unlock()

	page.markOpened()
	if !s.end(ctx, page) {
		return false
	}
	page.setFlash(FlashWarning, "Session ended.")
	return true
}

// Speak asks the avatar to say override, or the default line when override is blank.
func (s *Service) Speak(ctx context.Context, page *Page, override string) error {
	return s.speak(ctx, page, override, false)
}

// SpeakBeforeReload is Speak for a request after which the page reloads. The room the page
// has joined is about to be torn down, so a data-channel echo waits for the next join.
func (s *Service) SpeakBeforeReload(ctx context.Context, page *Page, override string) error {
	return s.speak(ctx, page, override, true)
}

func (s *Service) speak(ctx context.Context, page *Page, override string, reloading bool) error {
	page.action.Lock()
	defer page.action.Unlock()

	page.setOverride(override)
	if reloading {
		page.Room.Left()
	}

	current, ok := page.Current()
	if !ok {
		page.Log.Append("Echo rejected: no active conversation.")
		page.setFlash(FlashError, ErrNoActiveSession.Error())
		return ErrNoActiveSession
	}

	text := s.defaultText
	if strings.TrimSpace(override) != "" {
		text = override
	}

	req := conversation.SpeakRequest{SessionID: current.ID, Text: text}
	page.Log.Appendf("Echo requested via %s (%d chars).", s.transport.Name(), len([]rune(text)))

	if err := s.transport.Speak(ctx, page, req); err != nil {
		page.Log.Appendf("Echo failed: %v", err)
		page.setFlash(FlashError, err.Error())
		log.Warn().Err(err).Str("page_id", page.ID).Str("conversation_id", current.ID).Msg("echo failed")
		return err
	}
	return nil
}

// HandleRoomEvent applies a widget callback to the page.
func (s *Service) HandleRoomEvent(page *Page, ev RoomEvent) error {
	switch ev.Type {
	case EventLoaded:
		page.Log.Append("daily loaded")
	case EventJoined:
		page.Log.Append("joined meeting")
		flushed, err := page.Room.Joined()
		if err != nil {
			speakErr := &tavus.SpeakError{Err: err}
			page.Log.Appendf("sendAppMessage error: %v", err)
			page.setFlash(FlashError, speakErr.Error())
			return speakErr
		}
		if flushed {
			page.Log.Append("Queued echo sent on join")
		}
	case EventLeft:
		page.Room.Left()
		page.Log.Append("left meeting")
	case EventParticipant:
		page.Log.Appendf("participant joined: %s", orUnknown(ev.Message))
	case EventTracksDisabled:
		page.Log.Append("local tracks disabled")
	case EventError:
		page.Log.Appendf("daily error: %s", orUnknown(ev.Message))
	case EventLoadFailed:
		loadErr := &TransportLoadError{Detail: orUnknown(ev.Message)}
		page.Log.Append(loadErr.Error())
		page.setEmbedError(loadErr.Error())
		return loadErr
	case EventAppMessageSent:
		page.Log.Append("sendAppMessage: echo sent")
	case EventAppMessageFailed:
		speakErr := &tavus.SpeakError{Err: errors.New(orUnknown(ev.Message))}
		page.Log.Appendf("sendAppMessage error: %s", orUnknown(ev.Message))
		page.setFlash(FlashError, speakErr.Error())
		return speakErr
	default:
		return fmt.Errorf("unsupported room event: %q", ev.Type)
	}
	return nil
}

// Sweep ends and forgets pages that have been idle for longer than idle.
func (s *Service) Sweep(ctx context.Context, store *Store, idle time.Duration) int {
	expired := store.Evict(idle)
	for _, page := range expired {
		s.End(ctx, page)
		page.Room.Reset()
		log.Info().Str("page_id", page.ID).Msg("idle page evicted")
	}
	return len(expired)
}

// RunSweeper calls Sweep every interval until ctx is done.
func (s *Service) RunSweeper(ctx context.Context, store *Store, idle, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx, store, idle)
		}
	}
}

// create fills the slot with a new conversation. The slot returns to empty on failure.
func (s *Service) create(ctx context.Context, page *Page) error {
	page.setSlot(SlotCreating)

	sess, err := s.client.CreateSession(ctx)
	if err != nil {
		page.clear()
		page.Log.Append(err.Error())
		page.setFlash(FlashError, err.Error())
		log.Warn().Err(err).Str("page_id", page.ID).Msg("conversation creation failed")
		return err
	}

	page.Room.Reset()
	page.store(sess)
	page.Log.Appendf("Conversation created ✓ id=%s", sess.ID)
	return nil
}

// end closes the current conversation. End failures are logged and swallowed;
// the slot is cleared either way.
func (s *Service) end(ctx context.Context, page *Page) bool {
	current, ok := page.Current()
	if !ok {
		return false
	}

	page.setSlot(SlotEnding)
	if err := s.client.EndSession(ctx, current.ID); err != nil {
		page.Log.Appendf("End conversation error: %v", err)
		log.Warn().Err(err).Str("page_id", page.ID).Str("conversation_id", current.ID).Msg("end conversation failed")
	} else {
		page.Log.Append("Conversation ended ✓")
	}

	page.Room.Reset()
	page.clear()
	return true
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "unknown"
	}
	return s
}
