package queue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DeadLetter records a message moved to the dead-letter sub-queue.
type DeadLetter struct {
	Message     *Message
	Reason      string
	Description string
}

// Memory is an in-process Queue used by local runs and tests.
type Memory struct {
	mu       sync.Mutex
	pending  []*Message
	inflight map[string]*Message
	dead     []DeadLetter
	lockFor  time.Duration
	notify   chan struct{}
	closed   bool
}

var _ Queue = (*Memory)(nil)

// NewMemory returns an empty queue whose locks last lockFor.
func NewMemory(lockFor time.Duration) *Memory {
	if lockFor <= 0 {
		lockFor = time.Minute
	}
	return &Memory{
		inflight: make(map[string]*Message),
		lockFor:  lockFor,
		notify:   make(chan struct{}, 1),
	}
}

func (m *Memory) signal() {
	select {
	case m.notify <- struct{}{}:
	default:
	}
}

// Send enqueues a message. An empty messageID gets a generated one.
func (m *Memory) Send(_ context.Context, messageID string, body []byte) error {
	if messageID == "" {
		messageID = uuid.NewString()
	}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.pending = append(m.pending, &Message{
		ID:         messageID,
		Body:       append([]byte(nil), body...),
		EnqueuedAt: time.Now(),
	})
	m.mu.Unlock()
	m.signal()
	return nil
}

// Receive locks and returns up to max pending messages.
func (m *Memory) Receive(ctx context.Context, max int, wait time.Duration) ([]*Message, error) {
	if max < 1 {
		max = 1
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()

	for {
		if msgs := m.take(max); len(msgs) > 0 {
			return msgs, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			return nil, nil
		case <-m.notify:
		}
	}
}

func (m *Memory) take(max int) []*Message {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := min(max, len(m.pending))
	if n == 0 {
		return nil
	}
	out := make([]*Message, n)
	until := time.Now().Add(m.lockFor)
	for i := 0; i < n; i++ {
		msg := m.pending[i]
		msg.DeliveryCount++
		msg.LockedUntil = until
		m.inflight[msg.ID] = msg
		cp := *msg
		out[i] = &cp
	}
	m.pending = m.pending[n:]
	if len(m.pending) > 0 {
		m.signal()
	}
	return out
}

func (m *Memory) release(msg *Message) (*Message, error) {
	held, ok := m.inflight[msg.ID]
	if !ok {
		return nil, ErrMessageNotLocked
	}
	delete(m.inflight, msg.ID)
	return held, nil
}

// Complete removes the message from the queue.
func (m *Memory) Complete(_ context.Context, msg *Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, err := m.release(msg)
	return err
}

// Abandon returns the message to the front of the queue.
func (m *Memory) Abandon(_ context.Context, msg *Message) error {
	m.mu.Lock()
	held, err := m.release(msg)
	if err == nil {
		held.LockedUntil = time.Time{}
		m.pending = append([]*Message{held}, m.pending...)
	}
	m.mu.Unlock()
	if err == nil {
		m.signal()
	}
	return err
}

// DeadLetter moves the message to the dead-letter list.
func (m *Memory) DeadLetter(_ context.Context, msg *Message, reason, description string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	held, err := m.release(msg)
	if err != nil {
		return err
	}
	m.dead = append(m.dead, DeadLetter{Message: held, Reason: reason, Description: description})
	return nil
}

// RenewLock extends the lock on a held message.
func (m *Memory) RenewLock(_ context.Context, msg *Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	held, ok := m.inflight[msg.ID]
	if !ok {
		return ErrMessageNotLocked
	}
	held.LockedUntil = time.Now().Add(m.lockFor)
	msg.LockedUntil = held.LockedUntil
	return nil
}

// Peek returns copies of up to max pending messages without locking them.
func (m *Memory) Peek(_ context.Context, max int) ([]*Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	n := min(max, len(m.pending))
	out := make([]*Message, n)
	for i := 0; i < n; i++ {
		cp := *m.pending[i]
		out[i] = &cp
	}
	return out, nil
}

// Close marks the queue closed. Pending messages are kept.
func (m *Memory) Close(context.Context) error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// Len reports pending and in-flight message counts.
func (m *Memory) Len() (pending, inflight int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending), len(m.inflight)
}

// DeadLetters returns the dead-lettered messages.
func (m *Memory) DeadLetters() []DeadLetter {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]DeadLetter(nil), m.dead...)
}
