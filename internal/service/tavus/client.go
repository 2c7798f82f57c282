package tavus

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/tavus-echo/backend/internal/model/conversation"
	"github.com/zhouzirui/tavus-echo/backend/internal/model/persona"
)

const (
	apiKeyHeader    = "x-api-key"
	maxErrorBodyLen = 4 << 10
)

// Options configures a Client.
type Options struct {
	APIKey       string
	BaseURL      string
	BroadcastURL string
	Profile      persona.Profile
	Timeout      time.Duration
	EndTimeout   time.Duration
}

// Client talks to the conversational-avatar REST API.
type Client struct {
	HTTPClient    *http.Client
	EndHTTPClient *http.Client

	apiKey       string
	baseURL      string
	broadcastURL string
	profile      persona.Profile
	now          func() time.Time
}

// NewClient builds a client with separate timeouts for create/broadcast and end calls.
func NewClient(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	endTimeout := opts.EndTimeout
	if endTimeout <= 0 {
		endTimeout = 20 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://tavusapi.com"
	}
	broadcastURL := opts.BroadcastURL
	if broadcastURL == "" {
		broadcastURL = baseURL + "/v2/interactions/broadcast"
	}

	return &Client{
		HTTPClient:    &http.Client{Timeout: timeout},
		EndHTTPClient: &http.Client{Timeout: endTimeout},
		apiKey:        opts.APIKey,
		baseURL:       baseURL,
		broadcastURL:  broadcastURL,
		profile:       opts.Profile,
		now:           time.Now,
	}
}

type createConversationRequest struct {
	PersonaID        string `json:"persona_id"`
	ReplicaID        string `json:"replica_id"`
	ConversationName string `json:"conversation_name"`
}

type createConversationResponse struct {
	ConversationID  string `json:"conversation_id"`
	ConversationURL string `json:"conversation_url"`
}

// CreateSession opens a new conversation. Every call yields an independent session.
func (c *Client) CreateSession(ctx context.Context) (conversation.Session, error) {
	if !c.profile.Ready() {
		return conversation.Session{}, errors.New("create conversation: persona and replica ids are required")
	}

	now := c.now().UTC()
	payload := createConversationRequest{
		PersonaID:        c.profile.PersonaID,
		ReplicaID:        c.profile.ReplicaID,
		ConversationName: fmt.Sprintf("%s-%s", c.profile.ConversationPrefix(), now.Format("2006-01-02T15:04:05")),
	}

	status, body, err := c.postJSON(ctx, c.HTTPClient, c.baseURL+"/v2/conversations", payload)
	if err != nil {
		return conversation.Session{}, errors.Wrap(err, "create conversation")
	}
	if status >= http.StatusBadRequest {
		return conversation.Session{}, &SessionCreateError{
			StatusCode: status,
			Body:       string(body),
			Message:    errorMessage(body),
		}
	}

	var created createConversationResponse
	if err := json.Unmarshal(body, &created); err != nil {
		return conversation.Session{}, errors.Wrap(err, "decode create conversation response")
	}
	if created.ConversationID == "" || created.ConversationURL == "" {
		return conversation.Session{}, errors.New("create conversation: response missing conversation_id or conversation_url")
	}

	log.Info().
		Str("component", "tavus").
		Str("conversation_id", created.ConversationID).
		Str("conversation_name", payload.ConversationName).
		Msg("conversation created")

	return conversation.Session{
		ID:        created.ConversationID,
		RoomURL:   created.ConversationURL,
		CreatedAt: now,
	}, nil
}

// EndSession asks the service to close the conversation.
func (c *Client) EndSession(ctx context.Context, conversationID string) error {
	endpoint := c.baseURL + "/v2/conversations/" + url.PathEscape(conversationID) + "/end"

	status, body, err := c.post(ctx, c.EndHTTPClient, endpoint, nil)
	if err != nil {
		return &SessionEndError{ConversationID: conversationID, Err: err}
	}
	if status >= http.StatusBadRequest {
		return &SessionEndError{ConversationID: conversationID, StatusCode: status, Body: errorMessage(body)}
	}

	log.Info().Str("component", "tavus").Str("conversation_id", conversationID).Msg("conversation ended")
	return nil
}

// Broadcast delivers an echo through the REST broadcast endpoint. It is never retried.
func (c *Client) Broadcast(ctx context.Context, req conversation.SpeakRequest) error {
	status, body, err := c.postJSON(ctx, c.HTTPClient, c.broadcastURL, conversation.NewBroadcastEcho(req))
	if err != nil {
		return &SpeakError{Err: err}
	}
	if status < http.StatusOK || status >= http.StatusMultipleChoices {
		return &SpeakError{StatusCode: status, Body: errorMessage(body)}
	}

	log.Debug().Str("component", "tavus").Str("conversation_id", req.SessionID).Int("status", status).Msg("echo broadcast delivered")
	return nil
}

func (c *Client) postJSON(ctx context.Context, client *http.Client, endpoint string, payload any) (int, []byte, error) {
	buf, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, errors.Wrap(err, "marshal request")
	}
	return c.post(ctx, client, endpoint, buf)
}

func (c *Client) post(ctx context.Context, client *http.Client, endpoint string, body []byte) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, reader)
	if err != nil {
		return 0, nil, errors.Wrap(err, "build request")
	}
	req.Header.Set(apiKeyHeader, c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	// only error bodies are capped; they end up in log lines and flashes
	var src io.Reader = resp.Body
	if resp.StatusCode >= http.StatusBadRequest {
		src = io.LimitReader(resp.Body, maxErrorBodyLen)
	}
	respBody, err := io.ReadAll(src)
	if err != nil {
		return resp.StatusCode, nil, errors.Wrap(err, "read response body")
	}
	return resp.StatusCode, respBody, nil
}
