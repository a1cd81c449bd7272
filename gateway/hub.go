package gateway

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// MaxContentLength bounds a message body in bytes.
const MaxContentLength = 4096

// HubOptions configures a [Hub].
type HubOptions struct {
	Sink   MessageSink
	Logger *slog.Logger
	Now    func() time.Time
	// SinkTimeout bounds each Save call. Defaults to 5s.
	SinkTimeout time.Duration
}

// Hub routes frames between connected users. A user may hold several
// connections.
type Hub struct {
	sink        MessageSink
	logger      *slog.Logger
	now         func() time.Time
	sinkTimeout time.Duration

	mu      sync.RWMutex
	clients map[string]map[*client]struct{}
	closed  bool
}

// NewHub creates an empty hub.
func NewHub(opts HubOptions) *Hub {
	if opts.Sink == nil {
		opts.Sink = NoOpSink{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.SinkTimeout <= 0 {
		opts.SinkTimeout = 5 * time.Second
	}
	return &Hub{
		sink:        opts.Sink,
		logger:      opts.Logger,
		now:         opts.Now,
		sinkTimeout: opts.SinkTimeout,
		clients:     make(map[string]map[*client]struct{}),
	}
}

// Online returns the number of open connections for userID.
func (h *Hub) Online(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// Close disconnects every client. Later connections are refused.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	all := h.clients
	h.clients = make(map[string]map[*client]struct{})
	h.mu.Unlock()

	for _, set := range all {
		for c := range set {
			c.close()
		}
	}
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	set, ok := h.clients[c.userID]
	if !ok {
		set = make(map[*client]struct{})
		h.clients[c.userID] = set
	}
	set[c] = struct{}{}
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if set, ok := h.clients[c.userID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.clients, c.userID)
		}
	}
	h.mu.Unlock()
	c.close()
}

// deliver queues data on every connection of userID, skipping except.
func (h *Hub) deliver(userID string, data []byte, except *client) {
	h.mu.RLock()
	targets := make([]*client, 0, len(h.clients[userID]))
	for c := range h.clients[userID] {
		if c != except {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if !c.enqueue(data) {
			h.logger.Warn("chat client too slow, disconnecting", "user_id", c.userID)
			h.unregister(c)
		}
	}
}

// handle processes one inbound frame from c.
func (h *Hub) handle(c *client, raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		h.reply(c, TypeError, ErrorPayload{Message: "malformed frame"})
		return
	}

	switch env.Type {
	case TypeSendMessage:
		h.handleSend(c, env.Payload)
	case TypeTypingStart, TypeTypingStop:
		h.handleTyping(c, env.Payload, env.Type == TypeTypingStart)
	default:
		h.reply(c, TypeError, ErrorPayload{Message: "unsupported type"})
	}
}

func (h *Hub) handleSend(c *client, payload json.RawMessage) {
	var req SendMessagePayload
	if err := json.Unmarshal(payload, &req); err != nil {
		h.reply(c, TypeError, ErrorPayload{Message: "malformed payload"})
		return
	}
	req.TargetUserID = strings.TrimSpace(req.TargetUserID)
	switch {
	case req.TargetUserID == "":
		h.reply(c, TypeError, ErrorPayload{Message: "targetUserId is required", ClientMessageID: req.ClientMessageID})
		return
	case strings.TrimSpace(req.Content) == "":
		h.reply(c, TypeError, ErrorPayload{Message: "content is required", ClientMessageID: req.ClientMessageID})
		return
	case len(req.Content) > MaxContentLength || !utf8.ValidString(req.Content):
		h.reply(c, TypeError, ErrorPayload{Message: "content rejected", ClientMessageID: req.ClientMessageID})
		return
	}

	msg := Message{
		MessageID:       uuid.NewString(),
		ClientMessageID: req.ClientMessageID,
		SenderID:        c.userID,
		TargetUserID:    req.TargetUserID,
		Content:         req.Content,
		Timestamp:       h.now().UTC(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.sinkTimeout)
	err := h.sink.Save(ctx, msg)
	cancel()
	if err != nil {
		h.logger.Error("chat message save failed", "sender_id", msg.SenderID, "error", err)
		h.reply(c, TypeError, ErrorPayload{Message: "message not saved", ClientMessageID: req.ClientMessageID})
		return
	}

	data, err := encode(TypeNewMessage, msg)
	if err != nil {
		h.logger.Error("chat message encode failed", "error", err)
		return
	}
	h.deliver(msg.SenderID, data, nil)
	if msg.TargetUserID != msg.SenderID {
		h.deliver(msg.TargetUserID, data, nil)
	}
}

func (h *Hub) handleTyping(c *client, payload json.RawMessage, typing bool) {
	var req TypingPayload
	if err := json.Unmarshal(payload, &req); err != nil || strings.TrimSpace(req.TargetUserID) == "" {
		h.reply(c, TypeError, ErrorPayload{Message: "targetUserId is required"})
		return
	}
	data, err := encode(TypePeerTyping, PeerTyping{UserID: c.userID, Typing: typing})
	if err != nil {
		return
	}
	h.deliver(strings.TrimSpace(req.TargetUserID), data, c)
}

func (h *Hub) reply(c *client, frameType string, payload any) {
	data, err := encode(frameType, payload)
	if err != nil {
		return
	}
	if !c.enqueue(data) {
		h.unregister(c)
	}
}
