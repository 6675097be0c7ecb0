// Package servicebus implements queue.Queue on Azure Service Bus in
// peek-lock mode.
package servicebus

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"

	"github.com/insightshq/nl2sql-processor/internal/queue"
)

// Queue wraps a receiver and a sender for one Service Bus queue.
type Queue struct {
	client   *azservicebus.Client
	receiver *azservicebus.Receiver
	sender   *azservicebus.Sender
	name     string
}

var _ queue.Queue = (*Queue)(nil)

// Open connects to the queue with a connection string.
func Open(connectionString, queueName string) (*Queue, error) {
	client, err := azservicebus.NewClientFromConnectionString(connectionString, nil)
	if err != nil {
		return nil, fmt.Errorf("create service bus client: %w", err)
	}
	receiver, err := client.NewReceiverForQueue(queueName, &azservicebus.ReceiverOptions{
		ReceiveMode: azservicebus.ReceiveModePeekLock,
	})
	if err != nil {
		client.Close(context.Background())
		return nil, fmt.Errorf("create receiver for %s: %w", queueName, err)
	}
	sender, err := client.NewSender(queueName, nil)
	if err != nil {
		receiver.Close(context.Background())
		client.Close(context.Background())
		return nil, fmt.Errorf("create sender for %s: %w", queueName, err)
	}
	return &Queue{client: client, receiver: receiver, sender: sender, name: queueName}, nil
}

func fromReceived(m *azservicebus.ReceivedMessage) *queue.Message {
	msg := &queue.Message{
		ID:            m.MessageID,
		Body:          m.Body,
		DeliveryCount: m.DeliveryCount,
		Native:        m,
	}
	if m.EnqueuedTime != nil {
		msg.EnqueuedAt = *m.EnqueuedTime
	}
	if m.LockedUntil != nil {
		msg.LockedUntil = *m.LockedUntil
	}
	return msg
}

func native(msg *queue.Message) (*azservicebus.ReceivedMessage, error) {
	m, ok := msg.Native.(*azservicebus.ReceivedMessage)
	if !ok || m == nil {
		return nil, queue.ErrMessageNotLocked
	}
	return m, nil
}

// Receive blocks until at least one message arrives or wait elapses.
func (q *Queue) Receive(ctx context.Context, max int, wait time.Duration) ([]*queue.Message, error) {
	waitCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	received, err := q.receiver.ReceiveMessages(waitCtx, max, nil)
	if err != nil {
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: receive from %s: %w", queue.ErrConnection, q.name, err)
	}

	out := make([]*queue.Message, len(received))
	for i, m := range received {
		out[i] = fromReceived(m)
	}
	return out, nil
}

// Complete settles the message as processed.
func (q *Queue) Complete(ctx context.Context, msg *queue.Message) error {
	m, err := native(msg)
	if err != nil {
		return err
	}
	return q.receiver.CompleteMessage(ctx, m, nil)
}

// Abandon releases the lock so the message is redelivered.
func (q *Queue) Abandon(ctx context.Context, msg *queue.Message) error {
	m, err := native(msg)
	if err != nil {
		return err
	}
	return q.receiver.AbandonMessage(ctx, m, nil)
}

// DeadLetter moves the message to the queue's dead-letter sub-queue.
func (q *Queue) DeadLetter(ctx context.Context, msg *queue.Message, reason, description string) error {
	m, err := native(msg)
	if err != nil {
		return err
	}
	return q.receiver.DeadLetterMessage(ctx, m, &azservicebus.DeadLetterOptions{
		Reason:           &reason,
		ErrorDescription: &description,
	})
}

// RenewLock extends the peek lock.
func (q *Queue) RenewLock(ctx context.Context, msg *queue.Message) error {
	m, err := native(msg)
	if err != nil {
		return err
	}
	if err := q.receiver.RenewMessageLock(ctx, m, nil); err != nil {
		return err
	}
	if m.LockedUntil != nil {
		msg.LockedUntil = *m.LockedUntil
	}
	return nil
}

// Peek reads messages without locking them.
func (q *Queue) Peek(ctx context.Context, max int) ([]*queue.Message, error) {
	peeked, err := q.receiver.PeekMessages(ctx, max, nil)
	if err != nil {
		return nil, fmt.Errorf("peek %s: %w", q.name, err)
	}
	out := make([]*queue.Message, len(peeked))
	for i, m := range peeked {
		out[i] = fromReceived(m)
		out[i].Native = nil
	}
	return out, nil
}

// Send enqueues a JSON body.
func (q *Queue) Send(ctx context.Context, messageID string, body []byte) error {
	contentType := "application/json"
	msg := &azservicebus.Message{Body: body, ContentType: &contentType}
	if messageID != "" {
		msg.MessageID = &messageID
	}
	if err := q.sender.SendMessage(ctx, msg, nil); err != nil {
		return fmt.Errorf("send to %s: %w", q.name, err)
	}
	return nil
}

// Close shuts down the sender, receiver and client.
func (q *Queue) Close(ctx context.Context) error {
	return errors.Join(
		q.sender.Close(ctx),
		q.receiver.Close(ctx),
		q.client.Close(ctx),
	)
}
