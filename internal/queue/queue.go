// Package queue abstracts the peek-lock message queue requests arrive on.
package queue

import (
	"context"
	"errors"
	"time"
)

// ErrMessageNotLocked is returned when settling a message this receiver
// does not hold.
var ErrMessageNotLocked = errors.New("message is not locked by this receiver")

// ErrClosed is returned by operations on a closed queue.
var ErrClosed = errors.New("queue closed")

// ErrConnection marks a failure reported by the message broker itself, as
// opposed to one raised while handling what it returned.
var ErrConnection = errors.New("queue connection error")

// Message is one received message. Native carries the implementation's own
// handle and must be passed back unchanged when settling.
type Message struct {
	ID            string
	Body          []byte
	DeliveryCount uint32
	EnqueuedAt    time.Time
	LockedUntil   time.Time
	Native        any
}

// Queue is a peek-lock queue. A received message stays invisible to other
// receivers until it is completed, abandoned, dead-lettered, or its lock
// expires.
type Queue interface {
	// Receive waits up to wait for at least one message and returns at most
	// max. An empty slice with a nil error means the wait elapsed.
	Receive(ctx context.Context, max int, wait time.Duration) ([]*Message, error)
	Complete(ctx context.Context, msg *Message) error
	Abandon(ctx context.Context, msg *Message) error
	DeadLetter(ctx context.Context, msg *Message, reason, description string) error
	RenewLock(ctx context.Context, msg *Message) error
	// Peek reads messages without locking them.
	Peek(ctx context.Context, max int) ([]*Message, error)
	Send(ctx context.Context, messageID string, body []byte) error
	Close(ctx context.Context) error
}
