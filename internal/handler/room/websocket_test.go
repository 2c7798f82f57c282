package room

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/tavus-echo/backend/internal/model/conversation"
	"github.com/zhouzirui/tavus-echo/backend/internal/service/session"
)

type stubClient struct{}

func (stubClient) CreateSession(context.Context) (conversation.Session, error) {
	return conversation.Session{ID: "abc", RoomURL: "https://room/abc"}, nil
}

func (stubClient) EndSession(context.Context, string) error { return nil }

type frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type fixture struct {
	svc   *session.Service
	store *session.Store
	page  *session.Page
	srv   *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := session.NewStore()
	svc := session.NewService(stubClient{}, session.NewDataChannelTransport(), "default line")
	page := store.Create()
	require.NoError(t, svc.Open(context.Background(), page))

	r := chi.NewRouter()
	NewWebSocketHandler(svc, store).RegisterRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	return &fixture{svc: svc, store: store, page: page, srv: srv}
}

func (f *fixture) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/ws/" + f.page.ID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	connected := readFrame(t, conn, "result")
	require.Contains(t, string(connected.Data), `"connected"`)
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn, want string) frame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var f frame
		require.NoError(t, conn.ReadJSON(&f))
		if f.Type == want {
			return f
		}
	}
}

func sendEvent(t *testing.T, conn *websocket.Conn, eventType string) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(map[string]any{
		"type": "event",
		"data": session.RoomEvent{Type: eventType},
	}))
}

func decodeEcho(t *testing.T, f frame) conversation.EchoMessage {
	t.Helper()
	var msg conversation.EchoMessage
	require.NoError(t, json.Unmarshal(f.Data, &msg))
	return msg
}

func TestQueuedEchoFlushesOnceOnJoin(t *testing.T) {
	f := newFixture(t)
	conn := f.dial(t)

	require.NoError(t, f.svc.Speak(context.Background(), f.page, "queued line"))
	_, pending := f.page.Room.Status()
	require.True(t, pending)

	sendEvent(t, conn, session.EventJoined)
	first := decodeEcho(t, readFrame(t, conn, "app-message"))
	require.Equal(t, "queued line", first.Properties.Text)
	require.Equal(t, conversation.ModalityText, first.Properties.Modality)
	require.Equal(t, "abc", first.ConversationID)
	require.Equal(t, conversation.EventTypeEcho, first.EventType)

	sendEvent(t, conn, session.EventJoined)
	require.NoError(t, f.svc.Speak(context.Background(), f.page, "second line"))

	next := decodeEcho(t, readFrame(t, conn, "app-message"))
	require.Equal(t, "second line", next.Properties.Text)
}

func TestEchoBeforeReloadWaitsForNewSocket(t *testing.T) {
	f := newFixture(t)
	old := f.dial(t)
	sendEvent(t, old, session.EventJoined)
	require.Eventually(t, func() bool {
		joined, _ := f.page.Room.Status()
		return joined
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, f.svc.SpeakBeforeReload(context.Background(), f.page, "after reload"))
	_, pending := f.page.Room.Status()
	require.True(t, pending)
	old.Close()

	fresh := f.dial(t)
	sendEvent(t, fresh, session.EventJoined)
	msg := decodeEcho(t, readFrame(t, fresh, "app-message"))
	require.Equal(t, "after reload", msg.Properties.Text)
}

func TestUnsupportedEventReturnsError(t *testing.T) {
	f := newFixture(t)
	conn := f.dial(t)

	sendEvent(t, conn, "mystery")
	errFrame := readFrame(t, conn, "error")
	require.Contains(t, string(errFrame.Data), "unsupported room event")
}

func TestLoadFailureRecordsEmbedError(t *testing.T) {
	f := newFixture(t)
	conn := f.dial(t)

	require.NoError(t, conn.WriteJSON(map[string]any{
		"type": "event",
		"data": session.RoomEvent{Type: session.EventLoadFailed, Message: "network"},
	}))
	errFrame := readFrame(t, conn, "error")
	require.Contains(t, string(errFrame.Data), "Daily JS load failed: network")
	require.Equal(t, "Daily JS load failed: network", f.page.Snapshot(false).EmbedError)
}

func TestNewConnectionReplacesPrevious(t *testing.T) {
	f := newFixture(t)
	first := f.dial(t)
	f.dial(t)

	first.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		if _, _, err := first.ReadMessage(); err != nil {
			break
		}
	}
}

func TestUnknownPageRejected(t *testing.T) {
	f := newFixture(t)
	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/ws/missing"

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}
