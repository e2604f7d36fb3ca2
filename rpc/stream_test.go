package rpc

import (
	"context"
	"io"
	"testing"
	"time"
)

func TestMsgQueueOrdering(t *testing.T) {
	// Small channel so most messages go through the overflow list.
	q := newMsgQueue(2)
	for i := 0; i < 10; i++ {
		if err := q.push(NewMessage([]byte{byte(i)})); err != nil {
			t.Fatal(err)
		}
	}
	for i := 0; i < 10; i++ {
		msg, err := q.recv(context.Background(), time.Time{})
		if err != nil {
			t.Fatalf("recv %d: %v", i, err)
		}
		if msg.Body[0] != byte(i) {
			t.Fatalf("recv %d: got message %d", i, msg.Body[0])
		}
	}
}

func TestMsgQueueDrainAfterClose(t *testing.T) {
	q := newMsgQueue(2)
	for i := 0; i < 5; i++ {
		q.push(NewMessage([]byte{byte(i)}))
	}
	q.close(io.EOF)
	for i := 0; i < 5; i++ {
		msg, err := q.recv(context.Background(), time.Time{})
		if err != nil {
			t.Fatalf("recv %d: %v", i, err)
		}
		if msg.Body[0] != byte(i) {
			t.Fatalf("recv %d: got message %d", i, msg.Body[0])
		}
	}
	for i := 0; i < 2; i++ {
		if _, err := q.recv(context.Background(), time.Time{}); err != io.EOF {
			t.Fatalf("expected EOF after drain, got %v", err)
		}
	}
}

func TestMsgQueuePushAfterClose(t *testing.T) {
	q := newMsgQueue(2)
	q.close(ErrStreamClosed)
	if err := q.push(NewMessage(nil)); err != ErrStreamClosed {
		t.Fatalf("expected ErrStreamClosed, got %v", err)
	}
}

func TestMsgQueueRecvTimeout(t *testing.T) {
	q := newMsgQueue(2)
	if _, err := q.recv(context.Background(), time.Now().Add(10*time.Millisecond)); err != ErrTimedOut {
		t.Fatalf("expected ErrTimedOut, got %v", err)
	}
	if _, err := q.recv(context.Background(), time.Now().Add(-time.Second)); err != ErrTimedOut {
		t.Fatalf("expected ErrTimedOut for past deadline, got %v", err)
	}
}

func TestMsgQueueRecvContext(t *testing.T) {
	q := newMsgQueue(2)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	if _, err := q.recv(ctx, time.Time{}); err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
