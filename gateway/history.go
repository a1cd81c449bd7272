package gateway

import (
	"context"
	"sync"
)

// HistoryPageSize is the number of messages per history page.
const HistoryPageSize = 50

// History is a MessageSink that also serves private conversation history.
type History interface {
	MessageSink
	// ListPrivate returns one page of the conversation between userID and
	// friendID, newest first. A negative page reads as page 0.
	ListPrivate(ctx context.Context, userID, friendID string, page int) ([]Message, error)
}

// MemoryHistory keeps the most recent messages of each conversation in
// process.
type MemoryHistory struct {
	limit int

	mu    sync.RWMutex
	convs map[conversationKey][]Message
}

type conversationKey struct{ a, b string }

func keyFor(u1, u2 string) conversationKey {
	if u1 > u2 {
		u1, u2 = u2, u1
	}
	return conversationKey{a: u1, b: u2}
}

// NewMemoryHistory retains up to perConversation messages per pair of users.
// Values <= 0 default to 1000.
func NewMemoryHistory(perConversation int) *MemoryHistory {
	if perConversation <= 0 {
		perConversation = 1000
	}
	return &MemoryHistory{
		limit: perConversation,
		convs: make(map[conversationKey][]Message),
	}
}

// Save appends msg to its conversation, evicting the oldest beyond the limit.
func (h *MemoryHistory) Save(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	k := keyFor(msg.SenderID, msg.TargetUserID)

	h.mu.Lock()
	defer h.mu.Unlock()

	msgs := append(h.convs[k], msg)
	if over := len(msgs) - h.limit; over > 0 {
		msgs = append(msgs[:0:0], msgs[over:]...)
	}
	h.convs[k] = msgs
	return nil
}

func (h *MemoryHistory) ListPrivate(ctx context.Context, userID, friendID string, page int) ([]Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if page < 0 {
		page = 0
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	msgs := h.convs[keyFor(userID, friendID)]
	// Stored oldest first; pages count back from the newest.
	end := len(msgs) - page*HistoryPageSize
	if end <= 0 {
		return []Message{}, nil
	}
	start := max(end-HistoryPageSize, 0)

	out := make([]Message, 0, end-start)
	for i := end - 1; i >= start; i-- {
		out = append(out, msgs[i])
	}
	return out, nil
}
