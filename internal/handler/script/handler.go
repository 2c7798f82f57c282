package script

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	scriptService "github.com/zhouzirui/tavus-echo/backend/internal/service/script"
	"github.com/zhouzirui/tavus-echo/backend/pkg/utils"
)

// Handler 台词建议的HTTP处理器
type Handler struct {
	scriptSvc *scriptService.Service
}

// New 创建台词建议处理器，scriptSvc 为 nil 时接口返回 503
func New(scriptSvc *scriptService.Service) *Handler {
	return &Handler{scriptSvc: scriptSvc}
}

// RegisterRoutes 注册台词建议路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/script/suggest", h.handleSuggest)
}

// handleSuggest 根据主题生成一句台词
func (h *Handler) handleSuggest(w http.ResponseWriter, r *http.Request) {
	if h.scriptSvc == nil {
		utils.RespondError(w, http.StatusServiceUnavailable, "line suggestions are not configured")
		return
	}

	var payload struct {
		Topic string `json:"topic"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil && !errors.Is(err, io.EOF) {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	line, err := h.scriptSvc.Suggest(r.Context(), payload.Topic)
	if err != nil {
		log.Warn().Err(err).Msg("line suggestion failed")
		utils.RespondError(w, http.StatusBadGateway, err.Error())
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]string{"text": line})
}
