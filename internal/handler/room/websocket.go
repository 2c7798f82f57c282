package room

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/tavus-echo/backend/internal/model/conversation"
	"github.com/zhouzirui/tavus-echo/backend/internal/service/session"
)

const (
	readTimeout  = 60 * time.Second
	writeTimeout = 10 * time.Second
	pingInterval = 54 * time.Second
)

// WebSocketHandler 页面内嵌房间与服务端之间的桥接
type WebSocketHandler struct {
	sessions *session.Service
	store    *session.Store
	upgrader websocket.Upgrader
}

// NewWebSocketHandler 创建房间桥接处理器
func NewWebSocketHandler(sessions *session.Service, store *session.Store) *WebSocketHandler {
	return &WebSocketHandler{
		sessions: sessions,
		store:    store,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes 注册WebSocket路由
func (h *WebSocketHandler) RegisterRoutes(r chi.Router) {
	r.Get("/ws/{pageID}", h.handleWebSocket)
}

type inboundMessage struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

type outgoingMessage struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// roomConn 单个页面连接，实现 session.AppMessageSender
type roomConn struct {
	conn    *websocket.Conn
	pageID  string
	writeMu sync.Mutex
}

func (c *roomConn) write(msg outgoingMessage) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(msg)
}

// SendAppMessage 将播报消息推给页面，由页面转发进房间
func (c *roomConn) SendAppMessage(msg conversation.EchoMessage) error {
	return c.write(outgoingMessage{
		Type:      "app-message",
		Data:      msg,
		Timestamp: time.Now().Unix(),
	})
}

func (c *roomConn) sendInfo(data map[string]any) {
	if err := c.write(outgoingMessage{Type: "result", Data: data, Timestamp: time.Now().Unix()}); err != nil {
		log.Debug().Err(err).Str("page_id", c.pageID).Msg("write info failed")
	}
}

func (c *roomConn) sendError(message string) {
	if err := c.write(outgoingMessage{
		Type:      "error",
		Data:      map[string]string{"message": message},
		Timestamp: time.Now().Unix(),
	}); err != nil {
		log.Debug().Err(err).Str("page_id", c.pageID).Msg("write error failed")
	}
}

func (c *roomConn) closeReplaced() {
	deadline := time.Now().Add(writeTimeout)
	_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "replaced"), deadline)
	_ = c.conn.Close()
}

// handleWebSocket 处理页面房间连接
func (h *WebSocketHandler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	pageID := chi.URLParam(r, "pageID")
	if pageID == "" {
		http.Error(w, "pageID is required", http.StatusBadRequest)
		return
	}

	page, ok := h.store.Get(pageID)
	if !ok {
		http.Error(w, "page not found", http.StatusNotFound)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("page_id", pageID).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	rc := &roomConn{conn: conn, pageID: pageID}
	if previous, ok := page.Room.Attach(rc).(*roomConn); ok && previous != nil {
		previous.closeReplaced()
	}
	defer page.Room.Detach(rc)

	log.Info().Str("page_id", pageID).Msg("room connection attached")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	go h.pingLoop(ctx, conn)

	joined, pending := page.Room.Status()
	rc.sendInfo(map[string]any{
		"type":      "connected",
		"transport": h.sessions.TransportName(),
		"joined":    joined,
		"pending":   pending,
	})

	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Warn().Err(err).Str("page_id", pageID).Msg("websocket read error")
			}
			log.Info().Str("page_id", pageID).Msg("room connection detached")
			return
		}

		conn.SetReadDeadline(time.Now().Add(readTimeout))
		h.handleMessage(rc, page, &msg)
	}
}

func (h *WebSocketHandler) handleMessage(rc *roomConn, page *session.Page, msg *inboundMessage) {
	switch msg.Type {
	case "event":
		var ev session.RoomEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			rc.sendError("invalid event payload")
			return
		}
		if err := h.sessions.HandleRoomEvent(page, ev); err != nil {
			log.Debug().Err(err).Str("page_id", page.ID).Str("event", ev.Type).Msg("room event reported an error")
			rc.sendError(err.Error())
		}
	case "ping":
		rc.sendInfo(map[string]any{"type": "pong"})
	default:
		rc.sendError("unsupported message type: " + msg.Type)
	}
}

// pingLoop 定期发送ping消息
func (h *WebSocketHandler) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		}
	}
}
