package transport_test

import (
	"context"
	"errors"
	"testing"

	"github.com/tailored-agentic-units/searchmap/transport"
)

func TestMessageChannel_SendReceive(t *testing.T) {
	mc := transport.NewMessageChannel[string](context.Background(), 2)
	ctx := context.Background()

	if err := mc.Send(ctx, "a"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if err := mc.Send(ctx, "b"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	got, err := mc.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	if got != "a" {
		t.Errorf("Receive() = %q, want %q", got, "a")
	}
	if got, _ := mc.Receive(ctx); got != "b" {
		t.Errorf("Receive() = %q, want %q", got, "b")
	}
}

func TestMessageChannel_Closed(t *testing.T) {
	mc := transport.NewMessageChannel[int](context.Background(), 1)
	ctx := context.Background()

	if err := mc.Send(ctx, 7); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	mc.Close()
	mc.Close()

	if !mc.IsClosed() {
		t.Error("IsClosed() = false after Close")
	}
	if err := mc.Send(ctx, 8); !errors.Is(err, transport.ErrChannelClosed) {
		t.Errorf("Send() after Close error = %v, want ErrChannelClosed", err)
	}

	// Buffered values survive Close.
	if got, err := mc.Receive(ctx); err != nil || got != 7 {
		t.Errorf("Receive() = %d, %v, want 7, nil", got, err)
	}
	if _, err := mc.Receive(ctx); !errors.Is(err, transport.ErrChannelClosed) {
		t.Errorf("Receive() on drained closed channel error = %v, want ErrChannelClosed", err)
	}
}

func TestMessageChannel_LifetimeContext(t *testing.T) {
	life, cancel := context.WithCancel(context.Background())
	mc := transport.NewMessageChannel[int](life, 0)
	cancel()

	if _, err := mc.Receive(context.Background()); !errors.Is(err, context.Canceled) {
		t.Errorf("Receive() error = %v, want context.Canceled", err)
	}
	if err := mc.Send(context.Background(), 1); !errors.Is(err, context.Canceled) {
		t.Errorf("Send() error = %v, want context.Canceled", err)
	}
}
