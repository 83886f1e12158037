// Package notify renders identity challenges into messages and hands them to a
// delivery backend. Delivery either succeeds or fails; there is no retry here.
package notify

import (
	"context"
	"errors"
)

// Kind is the purpose of a message.
type Kind string

const (
	KindVerification  Kind = "verification"
	KindPasswordReset Kind = "password-reset"
	KindTwoFactor     Kind = "two-factor"
)

// ErrUndeliverable is returned by notifiers that refuse a message outright.
var ErrUndeliverable = errors.New("notify: message undeliverable")

// Message is a rendered notification. Link is set for verification and reset
// messages, Code for two-factor messages.
type Message struct {
	Kind      Kind   `json:"kind"`
	Recipient string `json:"recipient"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
	Link      string `json:"link,omitempty"`
	Code      string `json:"code,omitempty"`
}

// Notifier delivers a rendered message to its recipient.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, msg Message) error

// Send calls f.
func (f NotifierFunc) Send(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}
