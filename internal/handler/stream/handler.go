package stream

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/tavus-echo/backend/internal/handler/pagectx"
	"github.com/zhouzirui/tavus-echo/backend/internal/service/session"
	"github.com/zhouzirui/tavus-echo/backend/pkg/utils"
)

const defaultHeartbeat = 15 * time.Second

// Handler 通过Server-Sent Events推送页面日志
type Handler struct {
	store     *session.Store
	heartbeat time.Duration
}

// New 创建日志流处理器
func New(store *session.Store) *Handler {
	return &Handler{
		store:     store,
		heartbeat: defaultHeartbeat,
	}
}

// LogEvent 日志流中的单条消息
type LogEvent struct {
	Line string `json:"line"`
}

// RegisterRoutes 注册日志流路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/log/stream", h.handleLogStream)
}

// handleLogStream 订阅页面日志并持续推送新行
func (h *Handler) handleLogStream(w http.ResponseWriter, r *http.Request) {
	page, ok := pagectx.Lookup(r, h.store)
	if !ok {
		utils.RespondError(w, http.StatusNotFound, "page not found")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	entries, cancel := page.Log.Subscribe()
	defer cancel()

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)

	ctx := r.Context()
	log.Debug().Str("page_id", page.ID).Msg("log stream opened")

	if err := utils.SendSSEEvent(w, flusher, "ready", map[string]string{"pageId": page.ID}); err != nil {
		return
	}

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("page_id", page.ID).Msg("log stream closed")
			return
		case entry, ok := <-entries:
			if !ok {
				return
			}
			if err := utils.SendSSEEvent(w, flusher, "log", LogEvent{Line: entry.Line()}); err != nil {
				log.Debug().Err(err).Str("page_id", page.ID).Msg("log stream write failed")
				return
			}
		case t := <-ticker.C:
			if err := utils.SendSSEEvent(w, flusher, "heartbeat", map[string]string{"time": t.UTC().Format(time.RFC3339)}); err != nil {
				return
			}
		}
	}
}
