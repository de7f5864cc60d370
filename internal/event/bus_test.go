package event

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/AveryNolan/devscope/pkg/plugin"
)

func TestPublishSubscribe(t *testing.T) {
	bus := NewBus(zap.NewNop())

	var got atomic.Int32
	bus.Subscribe("scan.done", func(ctx context.Context, e plugin.Event) {
		got.Add(1)
	})

	if err := bus.Publish(context.Background(), plugin.Event{Topic: "scan.done"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := bus.Publish(context.Background(), plugin.Event{Topic: "other.topic"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if got.Load() != 1 {
		t.Fatalf("handler ran %d times, want 1", got.Load())
	}
}

func TestUnsubscribe(t *testing.T) {
	bus := NewBus(zap.NewNop())

	var got atomic.Int32
	unsub := bus.Subscribe("t", func(ctx context.Context, e plugin.Event) {
		got.Add(1)
	})
	unsub()

	bus.Publish(context.Background(), plugin.Event{Topic: "t"})
	if got.Load() != 0 {
		t.Fatal("handler ran after unsubscribe")
	}
}

func TestSubscribeAll(t *testing.T) {
	bus := NewBus(zap.NewNop())

	var topics []string
	var mu sync.Mutex
	bus.SubscribeAll(func(ctx context.Context, e plugin.Event) {
		mu.Lock()
		topics = append(topics, e.Topic)
		mu.Unlock()
	})

	bus.Publish(context.Background(), plugin.Event{Topic: "a"})
	bus.Publish(context.Background(), plugin.Event{Topic: "b"})

	mu.Lock()
	defer mu.Unlock()
	if len(topics) != 2 {
		t.Fatalf("wildcard handler saw %v, want both topics", topics)
	}
}

func TestPanickingHandlerIsolated(t *testing.T) {
	bus := NewBus(zap.NewNop())

	bus.Subscribe("t", func(ctx context.Context, e plugin.Event) {
		panic("handler bug")
	})
	var got atomic.Int32
	bus.Subscribe("t", func(ctx context.Context, e plugin.Event) {
		got.Add(1)
	})

	if err := bus.Publish(context.Background(), plugin.Event{Topic: "t"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if got.Load() != 1 {
		t.Fatal("panic in one handler prevented delivery to the next")
	}
}

func TestPublishAsync(t *testing.T) {
	bus := NewBus(zap.NewNop())

	done := make(chan struct{})
	bus.Subscribe("t", func(ctx context.Context, e plugin.Event) {
		close(done)
	})

	bus.PublishAsync(context.Background(), plugin.Event{Topic: "t"})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("async handler never ran")
	}
}
