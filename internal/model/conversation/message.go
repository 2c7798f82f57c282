package conversation

// Echo event identifiers shared by the broadcast endpoint and the room data channel.
const (
	MessageTypeConversation = "conversation"
	EventTypeEcho           = "conversation.echo"
	ModalityText            = "text"
)

// EchoProperties carries the text to speak.
type EchoProperties struct {
	Modality string `json:"modality,omitempty"`
	Text     string `json:"text"`
}

// EchoMessage is the body posted to the broadcast endpoint and sent as a room app message.
type EchoMessage struct {
	MessageType    string         `json:"message_type"`
	EventType      string         `json:"event_type"`
	ConversationID string         `json:"conversation_id"`
	Properties     EchoProperties `json:"properties"`
}

// NewBroadcastEcho builds the REST broadcast body.
func NewBroadcastEcho(req SpeakRequest) EchoMessage {
	return EchoMessage{
		MessageType:    MessageTypeConversation,
		EventType:      EventTypeEcho,
		ConversationID: req.SessionID,
		Properties:     EchoProperties{Text: req.Text},
	}
}

// NewAppMessageEcho builds the data-channel variant, which also names the modality.
func NewAppMessageEcho(req SpeakRequest) EchoMessage {
	msg := NewBroadcastEcho(req)
	msg.Properties.Modality = ModalityText
	return msg
}
