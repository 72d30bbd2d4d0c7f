// Package notify delivers portal notifications: durable per-recipient
// messages plus an in-process fan-out hub feeding the security ops event
// stream.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Message is one notification addressed to a single recipient.
type Message struct {
	ID             string            `json:"id"`
	RecipientEmail string            `json:"recipient_email"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
}

// BulkNotifier is the notification fan-out contract: one call delivers a
// message to every listed recipient or fails as a unit.
type BulkNotifier interface {
	CreateBulk(ctx context.Context, messages []Message) error
}

// NewMessage builds a message with a fresh id.
func NewMessage(recipient string, metadata map[string]string) Message {
	return Message{
		ID:             uuid.NewString(),
		RecipientEmail: recipient,
		Metadata:       metadata,
		CreatedAt:      time.Now().UTC(),
	}
}

// MemoryNotifier collects messages in memory for tests and demo mode.
type MemoryNotifier struct {
	mu       sync.Mutex
	messages []Message
}

var _ BulkNotifier = (*MemoryNotifier)(nil)

func NewMemoryNotifier() *MemoryNotifier {
	return &MemoryNotifier{}
}

func (n *MemoryNotifier) CreateBulk(ctx context.Context, messages []Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, messages...)
	return nil
}

// Messages returns a copy of everything delivered so far.
func (n *MemoryNotifier) Messages() []Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]Message, len(n.messages))
	copy(out, n.messages)
	return out
}
