package echo

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/tavus-echo/backend/internal/handler/pagectx"
	"github.com/zhouzirui/tavus-echo/backend/internal/service/session"
	"github.com/zhouzirui/tavus-echo/backend/internal/service/tavus"
	"github.com/zhouzirui/tavus-echo/backend/pkg/utils"
)

// Handler 播报服务的HTTP处理器
type Handler struct {
	sessions *session.Service
	store    *session.Store
}

// New 创建播报处理器
func New(sessions *session.Service, store *session.Store) *Handler {
	return &Handler{
		sessions: sessions,
		store:    store,
	}
}

// RegisterRoutes 注册会话与播报相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.handleHealth)
	r.Get("/state", h.handleState)
	r.Post("/session", h.handleCreateSession)
	r.Delete("/session", h.handleEndSession)
	r.Post("/speak", h.handleSpeak)
	r.Get("/log", h.handleLog)
}

type errorResponse struct {
	Error      string `json:"error"`
	StatusCode int    `json:"statusCode,omitempty"`
}

// handleHealth 健康检查
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"transport": h.sessions.TransportName(),
		"pages":     h.store.Len(),
	})
}

// handleState 返回页面当前状态
func (h *Handler) handleState(w http.ResponseWriter, r *http.Request) {
	page, ok := pagectx.Lookup(r, h.store)
	if !ok {
		utils.RespondError(w, http.StatusNotFound, "page not found")
		return
	}
	utils.RespondJSON(w, http.StatusOK, page.Snapshot(false))
}

// handleCreateSession 结束旧会话并创建新会话
func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	page := pagectx.Ensure(w, r, h.store)

	if err := h.sessions.Reset(r.Context(), page); err != nil {
		respondServiceError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusCreated, page.Snapshot(true))
}

// handleEndSession 结束当前会话
func (h *Handler) handleEndSession(w http.ResponseWriter, r *http.Request) {
	page, ok := pagectx.Lookup(r, h.store)
	if !ok {
		utils.RespondError(w, http.StatusNotFound, "page not found")
		return
	}

	ended := h.sessions.End(r.Context(), page)
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"ended": ended,
		"state": page.Snapshot(true),
	})
}

// handleSpeak 播报指定文本，未指定时播报默认台词
func (h *Handler) handleSpeak(w http.ResponseWriter, r *http.Request) {
	page, ok := pagectx.Lookup(r, h.store)
	if !ok {
		utils.RespondError(w, http.StatusNotFound, "page not found")
		return
	}

	var payload struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil && !errors.Is(err, io.EOF) {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.sessions.Speak(r.Context(), page, payload.Text); err != nil {
		respondServiceError(w, err)
		return
	}

	state := page.Snapshot(true)
	status := "sent"
	if state.Pending {
		status = "queued"
	}
	utils.RespondJSON(w, http.StatusAccepted, map[string]any{
		"status":    status,
		"transport": h.sessions.TransportName(),
		"state":     state,
	})
}

// handleLog 返回页面日志
func (h *Handler) handleLog(w http.ResponseWriter, r *http.Request) {
	page, ok := pagectx.Lookup(r, h.store)
	if !ok {
		utils.RespondError(w, http.StatusNotFound, "page not found")
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{"lines": page.Log.Lines()})
}

// respondServiceError 将服务层错误映射为HTTP状态码
func respondServiceError(w http.ResponseWriter, err error) {
	var createErr *tavus.SessionCreateError
	var speakErr *tavus.SpeakError

	switch {
	case errors.Is(err, session.ErrNoActiveSession):
		utils.RespondJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.As(err, &createErr):
		utils.RespondJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error(), StatusCode: createErr.StatusCode})
	case errors.As(err, &speakErr):
		utils.RespondJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error(), StatusCode: speakErr.StatusCode})
	default:
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
	}
}
