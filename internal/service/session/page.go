package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/tavus-echo/backend/internal/model/conversation"
)

// Slot is the lifecycle state of a page's conversation slot.
type Slot int

const (
	SlotEmpty Slot = iota
	SlotCreating
	SlotLive
	SlotEnding
)

func (s Slot) String() string {
	switch s {
	case SlotEmpty:
		return "empty"
	case SlotCreating:
		return "creating"
	case SlotLive:
		return "live"
	case SlotEnding:
		return "ending"
	default:
		return "unknown"
	}
}

// Flash kinds shown above the page.
const (
	FlashError   = "error"
	FlashSuccess = "success"
	FlashWarning = "warning"
)

// Flash is a one-time notice for the next render.
type Flash struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Page holds everything scoped to one browser page: the session slot, its log and room.
type Page struct {
	ID        string
	CreatedAt time.Time
	Log       *Log
	Room      *Room

	// action serialises open/reset/end/speak so each runs read-then-act.
	action sync.Mutex

	mu         sync.Mutex
	opened     bool
	slot       Slot
	session    *conversation.Session
	nonce      int
	flash      *Flash
	embedError string
	override   string
	lastSeen   time.Time
}

func newPage(id string, now time.Time) *Page {
	return &Page{
		ID:        id,
		CreatedAt: now.UTC(),
		Log:       NewLog(id),
		Room:      &Room{},
		lastSeen:  now,
	}
}

// View is a point-in-time copy of the page state for rendering.
type View struct {
	PageID     string                `json:"pageId"`
	Slot       string                `json:"slot"`
	Session    *conversation.Session `json:"session,omitempty"`
	Nonce      int                   `json:"nonce"`
	Flash      *Flash                `json:"flash,omitempty"`
	EmbedError string                `json:"embedError,omitempty"`
	Override   string                `json:"override,omitempty"`
	Joined     bool                  `json:"joined"`
	Pending    bool                  `json:"pending"`
	Log        []string              `json:"log"`
}

// Snapshot copies the current state. consumeFlash clears the flash once it has been read.
func (p *Page) Snapshot(consumeFlash bool) View {
	p.mu.Lock()
	view := View{
		PageID:     p.ID,
		Slot:       p.slot.String(),
		Nonce:      p.nonce,
		EmbedError: p.embedError,
		Override:   p.override,
	}
	if p.session != nil {
		sess := *p.session
		view.Session = &sess
	}
	if p.flash != nil {
		flash := *p.flash
		view.Flash = &flash
		if consumeFlash {
			p.flash = nil
		}
	}
	p.mu.Unlock()

	view.Joined, view.Pending = p.Room.Status()
	view.Log = p.Log.Lines()
	return view
}

// Current returns the live session, if any.
func (p *Page) Current() (conversation.Session, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.slot != SlotLive || p.session == nil {
		return conversation.Session{}, false
	}
	return *p.session, true
}

// Slot returns the slot state.
func (p *Page) Slot() Slot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.slot
}

func (p *Page) setSlot(slot Slot) {
	p.mu.Lock()
	p.slot = slot
	p.mu.Unlock()
}

func (p *Page) store(sess conversation.Session) {
	p.mu.Lock()
	p.session = &sess
	p.slot = SlotLive
	p.nonce++
	p.embedError = ""
	p.mu.Unlock()
}

func (p *Page) clear() {
	p.mu.Lock()
	p.session = nil
	p.slot = SlotEmpty
	p.mu.Unlock()
}

func (p *Page) setFlash(kind, message string) {
	p.mu.Lock()
	p.flash = &Flash{Kind: kind, Message: message}
	p.mu.Unlock()
}

func (p *Page) setEmbedError(message string) {
	p.mu.Lock()
	p.embedError = message
	p.mu.Unlock()
}

func (p *Page) setOverride(text string) {
	p.mu.Lock()
	p.override = text
	p.mu.Unlock()
}

func (p *Page) touch(now time.Time) {
	p.mu.Lock()
	p.lastSeen = now
	p.mu.Unlock()
}

// idleSince reports whether the page has seen no request since cutoff and has no room socket.
func (p *Page) idleSince(cutoff time.Time) bool {
	p.mu.Lock()
	idle := p.lastSeen.Before(cutoff)
	p.mu.Unlock()
	return idle && !p.Room.Attached()
}

// markOpened reports whether this is the first open of the page.
func (p *Page) markOpened() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.opened {
		return false
	}
	p.opened = true
	return true
}

// Store keeps pages in memory, keyed by id.
type Store struct {
	mu    sync.RWMutex
	pages map[string]*Page
	now   func() time.Time
}

// NewStore returns an empty page store.
func NewStore() *Store {
	return &Store{
		pages: make(map[string]*Page),
		now:   time.Now,
	}
}

// Create provisions a page with a fresh id.
func (s *Store) Create() *Page {
	page := newPage(uuid.NewString(), s.now())
	s.mu.Lock()
	s.pages[page.ID] = page
	s.mu.Unlock()
	return page
}

// Get looks up a page by id and marks it as recently seen.
func (s *Store) Get(id string) (*Page, bool) {
	s.mu.RLock()
	page, ok := s.pages[id]
	s.mu.RUnlock()
	if ok {
		page.touch(s.now())
	}
	return page, ok
}

// GetOrCreate returns the page for id, creating a new one when id is unknown.
func (s *Store) GetOrCreate(id string) (*Page, bool) {
	if id != "" {
		if page, ok := s.Get(id); ok {
			return page, false
		}
	}
	return s.Create(), true
}

// Evict removes and returns pages idle for longer than idle.
func (s *Store) Evict(idle time.Duration) []*Page {
	cutoff := s.now().Add(-idle)

	s.mu.Lock()
	defer s.mu.Unlock()

	var expired []*Page
	for id, page := range s.pages {
		if page.idleSince(cutoff) {
			expired = append(expired, page)
			delete(s.pages, id)
		}
	}
	return expired
}

// Len reports the number of tracked pages.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pages)
}
