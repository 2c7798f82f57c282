package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/tavus-echo/backend/internal/handler/echo"
	"github.com/zhouzirui/tavus-echo/backend/internal/handler/page"
	"github.com/zhouzirui/tavus-echo/backend/internal/handler/room"
	"github.com/zhouzirui/tavus-echo/backend/internal/handler/script"
	"github.com/zhouzirui/tavus-echo/backend/internal/handler/stream"
	scriptService "github.com/zhouzirui/tavus-echo/backend/internal/service/script"
	"github.com/zhouzirui/tavus-echo/backend/internal/service/session"
)

// Options carries what the router needs besides the core services.
type Options struct {
	DailyJS string
}

// NewRouter wires HTTP routes to core services. scriptSvc may be nil.
func NewRouter(sessions *session.Service, store *session.Store, scriptSvc *scriptService.Service, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	page.New(sessions, store, opts.DailyJS, scriptSvc != nil).RegisterRoutes(r)
	room.NewWebSocketHandler(sessions, store).RegisterRoutes(r)

	r.Route("/api", func(api chi.Router) {
		echo.New(sessions, store).RegisterRoutes(api)
		stream.New(store).RegisterRoutes(api)
		script.New(scriptSvc).RegisterRoutes(api)
	})

	return r
}
