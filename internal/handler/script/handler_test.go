package script

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/tavus-echo/backend/internal/model/persona"
	scriptService "github.com/zhouzirui/tavus-echo/backend/internal/service/script"
)

type cannedModel struct{ reply string }

func (c cannedModel) Generate(context.Context, []*schema.Message, ...model.Option) (*schema.Message, error) {
	return schema.AssistantMessage(c.reply, nil), nil
}

func (c cannedModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, _ := c.Generate(ctx, input, opts...)
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

func route(h *Handler) http.Handler {
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r
}

func TestSuggestDisabled(t *testing.T) {
	rec := httptest.NewRecorder()
	route(New(nil)).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/script/suggest", strings.NewReader(`{"topic":"x"}`)))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSuggestReturnsLine(t *testing.T) {
	svc, err := scriptService.NewWithModel(context.Background(), cannedModel{reply: "'Good morning, everyone.'"}, persona.Profile{})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	route(New(svc)).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/script/suggest", strings.NewReader(`{"topic":"morning"}`)))
	require.Equal(t, http.StatusOK, rec.Code)

	var payload map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.Equal(t, "Good morning, everyone.", payload["text"])
}

func TestSuggestBadBody(t *testing.T) {
	svc, err := scriptService.NewWithModel(context.Background(), cannedModel{reply: "hi"}, persona.Profile{})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	route(New(svc)).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/script/suggest", strings.NewReader(`{`)))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
