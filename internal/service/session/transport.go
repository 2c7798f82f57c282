package session

import (
	"context"

	"github.com/zhouzirui/tavus-echo/backend/internal/model/conversation"
	"github.com/zhouzirui/tavus-echo/backend/internal/service/tavus"
)

// Transport delivers an echo request for a page. One transport is used per deployment.
type Transport interface {
	Name() string
	Speak(ctx context.Context, page *Page, req conversation.SpeakRequest) error
}

// Broadcaster is the REST side of the session client.
type Broadcaster interface {
	Broadcast(ctx context.Context, req conversation.SpeakRequest) error
}

// RESTTransport posts the echo to the broadcast endpoint.
type RESTTransport struct {
	client Broadcaster
}

// NewRESTTransport wraps a broadcaster.
func NewRESTTransport(client Broadcaster) *RESTTransport {
	return &RESTTransport{client: client}
}

func (t *RESTTransport) Name() string { return "rest" }

func (t *RESTTransport) Speak(ctx context.Context, page *Page, req conversation.SpeakRequest) error {
	if err := t.client.Broadcast(ctx, req); err != nil {
		return err
	}
	page.Log.Append("Echo broadcast ✓")
	return nil
}

// DataChannelTransport sends the echo as a room app message, queuing it until the room is joined.
type DataChannelTransport struct{}

// NewDataChannelTransport returns the room data-channel transport.
func NewDataChannelTransport() *DataChannelTransport {
	return &DataChannelTransport{}
}

func (t *DataChannelTransport) Name() string { return "datachannel" }

func (t *DataChannelTransport) Speak(_ context.Context, page *Page, req conversation.SpeakRequest) error {
	queued, err := page.Room.Deliver(conversation.NewAppMessageEcho(req))
	if err != nil {
		return &tavus.SpeakError{Err: err}
	}
	if queued {
		page.Log.Append("Echo queued → will send on join")
		return nil
	}
	page.Log.Append("Echo sent over data channel")
	return nil
}
