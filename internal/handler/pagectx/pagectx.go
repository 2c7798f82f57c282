package pagectx

import (
	"net/http"
	"strings"

	"github.com/zhouzirui/tavus-echo/backend/internal/service/session"
)

const (
	// CookieName carries the page id for browser requests.
	CookieName = "echo_page"
	// HeaderName carries the page id for API clients.
	HeaderName = "X-Page-ID"
)

// ID extracts the page id from the header or the cookie.
func ID(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(HeaderName)); id != "" {
		return id
	}
	if cookie, err := r.Cookie(CookieName); err == nil {
		return strings.TrimSpace(cookie.Value)
	}
	return ""
}

// Lookup finds an existing page for the request.
func Lookup(r *http.Request, store *session.Store) (*session.Page, bool) {
	id := ID(r)
	if id == "" {
		return nil, false
	}
	return store.Get(id)
}

// Ensure returns the request's page, creating one and setting the cookie when needed.
func Ensure(w http.ResponseWriter, r *http.Request, store *session.Store) *session.Page {
	page, _ := Resolve(w, r, store)
	return page
}

// Resolve is Ensure that also reports whether the page was created by this request.
// A created page has not yet seen its cookie come back from the browser.
func Resolve(w http.ResponseWriter, r *http.Request, store *session.Store) (*session.Page, bool) {
	page, created := store.GetOrCreate(ID(r))
	if created {
		http.SetCookie(w, &http.Cookie{
			Name:     CookieName,
			Value:    page.ID,
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}
	return page, created
}
