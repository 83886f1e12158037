package notify

import (
	"context"
	"sync"
)

type outboxKey struct {
	recipient string
	kind      Kind
}

// Outbox is an in-memory Notifier that keeps the latest message per recipient
// and kind. Development and tests only; configuration refuses it in production.
type Outbox struct {
	mu   sync.RWMutex
	m    map[outboxKey]Message
	sent int
}

// NewOutbox returns an empty Outbox.
func NewOutbox() *Outbox {
	return &Outbox{m: make(map[outboxKey]Message)}
}

// Send records msg, replacing any earlier message of the same kind for the recipient.
func (o *Outbox) Send(ctx context.Context, msg Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.m[outboxKey{msg.Recipient, msg.Kind}] = msg
	o.sent++
	return nil
}

// Latest returns the most recent message of kind sent to recipient.
func (o *Outbox) Latest(recipient string, kind Kind) (Message, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	m, ok := o.m[outboxKey{recipient, kind}]
	return m, ok
}

// Sent returns the total number of messages accepted.
func (o *Outbox) Sent() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.sent
}
