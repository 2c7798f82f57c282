package page

import (
	"embed"
	"html/template"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/tavus-echo/backend/internal/handler/pagectx"
	"github.com/zhouzirui/tavus-echo/backend/internal/service/session"
)

//go:embed templates/page.html
var templateFS embed.FS

var pageTemplate = template.Must(template.ParseFS(templateFS, "templates/page.html"))

// Handler 渲染单页界面并处理表单动作
type Handler struct {
	sessions      *session.Service
	store         *session.Store
	dailyJS       string
	scriptEnabled bool
}

// New 创建页面处理器
func New(sessions *session.Service, store *session.Store, dailyJS string, scriptEnabled bool) *Handler {
	return &Handler{
		sessions:      sessions,
		store:         store,
		dailyJS:       dailyJS,
		scriptEnabled: scriptEnabled,
	}
}

// RegisterRoutes 注册页面相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.handleIndex)
	r.Route("/actions", func(actions chi.Router) {
		actions.Post("/speak", h.handleSpeak)
		actions.Post("/reset", h.handleReset)
		actions.Post("/end", h.handleEnd)
	})
}

type pageData struct {
	View           session.View
	Bootstrap      bool
	CookiesBlocked bool
	Transport      string
	DefaultText    string
	DailyJS        string
	ScriptEnabled  bool
}

// handleIndex 首次渲染时创建会话，之后只展示当前状态
// 没有 cookie 的请求只下发 cookie 并跳转一次，cookie 回传后才创建会话
func (h *Handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	page, created := pagectx.Resolve(w, r, h.store)

	data := pageData{
		Transport:     h.sessions.TransportName(),
		DefaultText:   h.sessions.DefaultText(),
		DailyJS:       h.dailyJS,
		ScriptEnabled: h.scriptEnabled,
	}
	switch {
	case created && r.URL.Query().Get("boot") == "":
		data.Bootstrap = true
	case created:
		data.CookiesBlocked = true
	default:
		// creation errors are already recorded on the page as a flash
		_ = h.sessions.Open(r.Context(), page)
	}
	data.View = page.Snapshot(true)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := pageTemplate.Execute(w, data); err != nil {
		log.Error().Err(err).Str("page_id", page.ID).Msg("render page failed")
	}
}

// handleSpeak 触发一次播报
func (h *Handler) handleSpeak(w http.ResponseWriter, r *http.Request) {
	page, created := pagectx.Resolve(w, r, h.store)
	if created {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	// the form reloads the page, so a data channel echo waits for the next join
	_ = h.sessions.SpeakBeforeReload(r.Context(), page, r.PostFormValue("text"))
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// handleReset 结束当前会话并新建会话
func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	page, created := pagectx.Resolve(w, r, h.store)
	if created {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	_ = h.sessions.Reset(r.Context(), page)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// handleEnd 结束当前会话
func (h *Handler) handleEnd(w http.ResponseWriter, r *http.Request) {
	page, created := pagectx.Resolve(w, r, h.store)
	if created {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	h.sessions.End(r.Context(), page)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
