package queue

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryReceiveAndComplete(t *testing.T) {
	q := NewMemory(time.Minute)
	ctx := context.Background()

	for _, id := range []string{"m1", "m2", "m3"} {
		if err := q.Send(ctx, id, []byte(`{"request_id":"`+id+`"}`)); err != nil {
			t.Fatalf("Send: %v", err)
		}
	}

	msgs, err := q.Receive(ctx, 2, time.Second)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if len(msgs) != 2 || msgs[0].ID != "m1" || msgs[1].ID != "m2" {
		t.Fatalf("unexpected batch: %+v", msgs)
	}
	if msgs[0].DeliveryCount != 1 || msgs[0].LockedUntil.IsZero() {
		t.Errorf("message should be locked on first delivery: %+v", msgs[0])
	}

	if err := q.Complete(ctx, msgs[0]); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if err := q.Complete(ctx, msgs[0]); !errors.Is(err, ErrMessageNotLocked) {
		t.Errorf("second Complete error = %v, want ErrMessageNotLocked", err)
	}

	pending, inflight := q.Len()
	if pending != 1 || inflight != 1 {
		t.Errorf("Len = %d/%d, want 1/1", pending, inflight)
	}
}

func TestMemoryReceiveTimesOut(t *testing.T) {
	q := NewMemory(time.Minute)
	start := time.Now()
	msgs, err := q.Receive(context.Background(), 5, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("expected no messages, got %d", len(msgs))
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Error("Receive returned before the wait elapsed")
	}
}

func TestMemoryReceiveWakesOnSend(t *testing.T) {
	q := NewMemory(time.Minute)
	ctx := context.Background()

	go func() {
		time.Sleep(10 * time.Millisecond)
		q.Send(ctx, "late", []byte("{}"))
	}()

	msgs, err := q.Receive(ctx, 1, 5*time.Second)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if len(msgs) != 1 || msgs[0].ID != "late" {
		t.Errorf("unexpected messages: %+v", msgs)
	}
}

func TestMemoryReceiveHonoursContext(t *testing.T) {
	q := NewMemory(time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := q.Receive(ctx, 1, time.Second); !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestMemoryAbandonRedelivers(t *testing.T) {
	q := NewMemory(time.Minute)
	ctx := context.Background()
	q.Send(ctx, "m1", []byte("{}"))

	msgs, _ := q.Receive(ctx, 1, time.Second)
	if err := q.Abandon(ctx, msgs[0]); err != nil {
		t.Fatalf("Abandon: %v", err)
	}

	again, _ := q.Receive(ctx, 1, time.Second)
	if len(again) != 1 || again[0].DeliveryCount != 2 {
		t.Errorf("expected redelivery with count 2, got %+v", again)
	}
}

func TestMemoryDeadLetter(t *testing.T) {
	q := NewMemory(time.Minute)
	ctx := context.Background()
	q.Send(ctx, "bad", []byte("not json"))

	msgs, _ := q.Receive(ctx, 1, time.Second)
	if err := q.DeadLetter(ctx, msgs[0], "InvalidJSON", "unexpected token"); err != nil {
		t.Fatalf("DeadLetter: %v", err)
	}

	dead := q.DeadLetters()
	if len(dead) != 1 || dead[0].Reason != "InvalidJSON" || dead[0].Message.ID != "bad" {
		t.Errorf("unexpected dead letters: %+v", dead)
	}
	if pending, inflight := q.Len(); pending != 0 || inflight != 0 {
		t.Errorf("Len = %d/%d, want 0/0", pending, inflight)
	}
}

func TestMemoryRenewAndPeek(t *testing.T) {
	q := NewMemory(50 * time.Millisecond)
	ctx := context.Background()
	q.Send(ctx, "a", []byte("1"))
	q.Send(ctx, "b", []byte("2"))

	peeked, err := q.Peek(ctx, 10)
	if err != nil || len(peeked) != 2 {
		t.Fatalf("Peek = %d, %v; want 2", len(peeked), err)
	}

	msgs, _ := q.Receive(ctx, 1, time.Second)
	before := msgs[0].LockedUntil
	time.Sleep(5 * time.Millisecond)
	if err := q.RenewLock(ctx, msgs[0]); err != nil {
		t.Fatalf("RenewLock: %v", err)
	}
	if !msgs[0].LockedUntil.After(before) {
		t.Error("RenewLock should extend the lock")
	}

	peeked, _ = q.Peek(ctx, 10)
	if len(peeked) != 1 || peeked[0].ID != "b" {
		t.Errorf("locked messages should not be peeked: %+v", peeked)
	}
}

func TestMemoryClosed(t *testing.T) {
	q := NewMemory(0)
	q.Close(context.Background())
	if err := q.Send(context.Background(), "", nil); !errors.Is(err, ErrClosed) {
		t.Errorf("Send after Close = %v, want ErrClosed", err)
	}
	if _, err := q.Peek(context.Background(), 1); !errors.Is(err, ErrClosed) {
		t.Errorf("Peek after Close = %v, want ErrClosed", err)
	}
}
