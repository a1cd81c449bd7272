package gateway

import (
	"context"
	"encoding/json"
	"time"
)

// Frame types.
const (
	TypeSendMessage = "SEND_MESSAGE"
	TypeNewMessage  = "NEW_MESSAGE"
	TypeTypingStart = "TYPING_START"
	TypeTypingStop  = "TYPING_STOP"
	TypePeerTyping  = "PEER_TYPING"
	TypeError       = "ERROR"
)

// Envelope is one WebSocket frame.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// SendMessagePayload is the client request to deliver a private message.
type SendMessagePayload struct {
	TargetUserID    string `json:"targetUserId"`
	Content         string `json:"content"`
	ClientMessageID string `json:"clientMessageId,omitempty"`
}

// Message is a delivered private message.
type Message struct {
	MessageID       string    `json:"messageId"`
	ClientMessageID string    `json:"clientMessageId,omitempty"`
	SenderID        string    `json:"senderId"`
	TargetUserID    string    `json:"targetUserId"`
	Content         string    `json:"content"`
	Timestamp       time.Time `json:"timestamp"`
}

// TypingPayload names the peer a typing indicator is for.
type TypingPayload struct {
	TargetUserID string `json:"targetUserId"`
}

// PeerTyping is delivered to the target of a typing indicator.
type PeerTyping struct {
	UserID string `json:"userId"`
	Typing bool   `json:"typing"`
}

// ErrorPayload describes a rejected frame.
type ErrorPayload struct {
	Message         string `json:"message"`
	ClientMessageID string `json:"clientMessageId,omitempty"`
}

// MessageSink persists messages before delivery. A Save error rejects the
// message.
type MessageSink interface {
	Save(ctx context.Context, msg Message) error
}

// NoOpSink accepts every message.
type NoOpSink struct{}

func (NoOpSink) Save(context.Context, Message) error { return nil }

func encode(frameType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: frameType, Payload: raw})
}
