package stream

import (
	"bufio"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/tavus-echo/backend/internal/handler/pagectx"
	"github.com/zhouzirui/tavus-echo/backend/internal/service/session"
)

type sseEvent struct {
	name string
	data string
}

func readEvent(t *testing.T, reader *bufio.Reader) sseEvent {
	t.Helper()
	var ev sseEvent
	for {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case line == "":
			if ev.name != "" || ev.data != "" {
				return ev
			}
		case strings.HasPrefix(line, "event: "):
			ev.name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			ev.data = strings.TrimPrefix(line, "data: ")
		}
	}
}

func newServer(store *session.Store) *httptest.Server {
	r := chi.NewRouter()
	New(store).RegisterRoutes(r)
	return httptest.NewServer(r)
}

func TestLogStreamPushesNewLines(t *testing.T) {
	store := session.NewStore()
	page := store.Create()
	page.Log.Append("before subscribe")

	srv := newServer(store)
	defer srv.Close()

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/log/stream", nil)
	require.NoError(t, err)
	req.Header.Set(pagectx.HeaderName, page.ID)

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	ready := readEvent(t, reader)
	require.Equal(t, "ready", ready.name)

	page.Log.Append("Echo broadcast ✓")

	ev := readEvent(t, reader)
	require.Equal(t, "log", ev.name)

	var payload LogEvent
	require.NoError(t, json.Unmarshal([]byte(ev.data), &payload))
	require.True(t, strings.HasSuffix(payload.Line, "Z] Echo broadcast ✓"), payload.Line)
}

func TestLogStreamUnknownPage(t *testing.T) {
	srv := newServer(session.NewStore())
	defer srv.Close()

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/log/stream", nil)
	require.NoError(t, err)
	req.Header.Set(pagectx.HeaderName, "missing")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}
