package tavus

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/tavus-echo/backend/internal/model/conversation"
	"github.com/zhouzirui/tavus-echo/backend/internal/model/persona"
)

type recordedRequest struct {
	method string
	path   string
	apiKey string
	body   []byte
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *[]recordedRequest) {
	t.Helper()
	var requests []recordedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		requests = append(requests, recordedRequest{
			method: r.Method,
			path:   r.URL.Path,
			apiKey: r.Header.Get("x-api-key"),
			body:   body,
		})
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	client := NewClient(Options{
		APIKey:  "secret",
		BaseURL: srv.URL,
		Profile: persona.Profile{PersonaID: "p-1", ReplicaID: "r-1", NamePrefix: "Echo"},
		Timeout: time.Second,
	})
	client.now = func() time.Time { return time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC) }
	return client, &requests
}

func TestCreateSessionSuccess(t *testing.T) {
	client, requests := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"conversation_id":"abc","conversation_url":"https://room/abc","status":"active"}`))
	})

	session, err := client.CreateSession(context.Background())
	require.NoError(t, err)
	require.Equal(t, "abc", session.ID)
	require.Equal(t, "https://room/abc", session.RoomURL)

	require.Len(t, *requests, 1)
	got := (*requests)[0]
	require.Equal(t, http.MethodPost, got.method)
	require.Equal(t, "/v2/conversations", got.path)
	require.Equal(t, "secret", got.apiKey)
	require.JSONEq(t, `{"persona_id":"p-1","replica_id":"r-1","conversation_name":"Echo-2026-10-18T09:30:00"}`, string(got.body))
}

func TestCreateSessionRejected(t *testing.T) {
	cases := []struct {
		name        string
		body        string
		wantMessage string
	}{
		{name: "json body", body: `{"message":"maximum concurrent conversations reached"}`, wantMessage: "maximum concurrent conversations reached"},
		{name: "raw body", body: "upstream exploded", wantMessage: "upstream exploded"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(tc.body))
			})

			_, err := client.CreateSession(context.Background())
			var createErr *SessionCreateError
			require.True(t, errors.As(err, &createErr))
			require.Equal(t, http.StatusBadRequest, createErr.StatusCode)
			require.Equal(t, tc.wantMessage, createErr.Message)
			require.Contains(t, err.Error(), "400")
		})
	}
}

func TestCreateSessionMissingFields(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"conversation_id":"abc"}`))
	})

	_, err := client.CreateSession(context.Background())
	require.EqualError(t, err, "create conversation: response missing conversation_id or conversation_url")
}

func TestCreateSessionReadsLargeSuccessBody(t *testing.T) {
	padding := strings.Repeat("x", 128<<10)
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"padding":"` + padding + `","conversation_id":"abc","conversation_url":"https://room/abc"}`))
	})

	session, err := client.CreateSession(context.Background())
	require.NoError(t, err)
	require.Equal(t, "abc", session.ID)
}

func TestErrorBodyIsCapped(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(strings.Repeat("e", 3*maxErrorBodyLen)))
	})

	_, err := client.CreateSession(context.Background())
	var createErr *SessionCreateError
	require.True(t, errors.As(err, &createErr))
	require.Len(t, createErr.Body, maxErrorBodyLen)
}

func TestEndSession(t *testing.T) {
	client, requests := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	require.NoError(t, client.EndSession(context.Background(), "abc"))
	require.Equal(t, "/v2/conversations/abc/end", (*requests)[0].path)
	require.Empty(t, (*requests)[0].body)
	require.Equal(t, "secret", (*requests)[0].apiKey)
}

func TestEndSessionFailure(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"conversation not found"}`))
	})

	err := client.EndSession(context.Background(), "abc")
	var endErr *SessionEndError
	require.True(t, errors.As(err, &endErr))
	require.Equal(t, http.StatusNotFound, endErr.StatusCode)
	require.Equal(t, "conversation not found", endErr.Body)
}

func TestBroadcastPayload(t *testing.T) {
	client, requests := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	err := client.Broadcast(context.Background(), conversation.SpeakRequest{SessionID: "abc", Text: "hello"})
	require.NoError(t, err)

	got := (*requests)[0]
	require.Equal(t, "/v2/interactions/broadcast", got.path)

	var body map[string]any
	require.NoError(t, json.Unmarshal(got.body, &body))
	require.Equal(t, "conversation", body["message_type"])
	require.Equal(t, "conversation.echo", body["event_type"])
	require.Equal(t, "abc", body["conversation_id"])
	require.Equal(t, map[string]any{"text": "hello"}, body["properties"])
}

func TestBroadcastFailureNotRetried(t *testing.T) {
	client, requests := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("bad gateway"))
	})

	err := client.Broadcast(context.Background(), conversation.SpeakRequest{SessionID: "abc", Text: "hello"})
	var speakErr *SpeakError
	require.True(t, errors.As(err, &speakErr))
	require.Equal(t, http.StatusBadGateway, speakErr.StatusCode)
	require.True(t, strings.Contains(err.Error(), "502"))
	require.Len(t, *requests, 1)
}

func TestBroadcastOverrideURL(t *testing.T) {
	var hit string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hit = r.URL.Path
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	client := NewClient(Options{APIKey: "k", BaseURL: "http://unused.invalid", BroadcastURL: srv.URL + "/custom/echo"})
	require.NoError(t, client.Broadcast(context.Background(), conversation.SpeakRequest{SessionID: "abc", Text: "x"}))
	require.Equal(t, "/custom/echo", hit)
}

func TestNetworkErrorsAreTyped(t *testing.T) {
	client := NewClient(Options{APIKey: "k", BaseURL: "http://127.0.0.1:1", Timeout: 200 * time.Millisecond, EndTimeout: 200 * time.Millisecond})

	var speakErr *SpeakError
	err := client.Broadcast(context.Background(), conversation.SpeakRequest{SessionID: "abc", Text: "x"})
	require.True(t, errors.As(err, &speakErr))
	require.NotNil(t, speakErr.Err)

	var endErr *SessionEndError
	require.True(t, errors.As(client.EndSession(context.Background(), "abc"), &endErr))

	client.profile = persona.Profile{PersonaID: "p-1", ReplicaID: "r-1"}
	_, err = client.CreateSession(context.Background())
	require.Error(t, err)
	var createErr *SessionCreateError
	require.False(t, errors.As(err, &createErr))
}

func TestCreateSessionRequiresProfile(t *testing.T) {
	client := NewClient(Options{APIKey: "k", BaseURL: "http://127.0.0.1:1"})

	_, err := client.CreateSession(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "persona and replica ids are required")
}
