package queue

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestPool_RoutesJobsToHandler(t *testing.T) {
	var mu sync.Mutex
	seen := make(map[uuid.UUID]bool)
	done := make(chan struct{}, 3)

	handler := func(_ context.Context, id uuid.UUID) error {
		mu.Lock()
		seen[id] = true
		mu.Unlock()
		done <- struct{}{}
		return nil
	}

	p := NewPool(handler, nil, WithWorkers(QueueFast, 2), WithDepth(8))
	ctx := context.Background()
	p.Start(ctx)

	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	for _, id := range ids {
		if err := p.Enqueue(ctx, QueueFast, id); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}

	for range ids {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for jobs")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	p.Shutdown(shutdownCtx)

	mu.Lock()
	defer mu.Unlock()
	for _, id := range ids {
		if !seen[id] {
			t.Errorf("job %s never ran", id)
		}
	}
}

func TestPool_UnknownQueueFallsBackToFast(t *testing.T) {
	done := make(chan uuid.UUID, 1)
	handler := func(_ context.Context, id uuid.UUID) error {
		done <- id
		return nil
	}

	p := NewPool(handler, nil)
	ctx := context.Background()
	p.Start(ctx)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		p.Shutdown(shutdownCtx)
	}()

	id := uuid.New()
	if err := p.Enqueue(ctx, "no_such_queue", id); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	select {
	case got := <-done:
		if got != id {
			t.Errorf("handled %s, want %s", got, id)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("job on unknown queue never ran")
	}
}

func TestPool_FallbackLogsLaneActuallyUsed(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	p := NewPool(func(context.Context, uuid.UUID) error { return nil }, logger)
	if err := p.Enqueue(context.Background(), "no_such_queue", uuid.New()); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "queue.job.enqueued") {
		t.Fatalf("no enqueue log line in %q", out)
	}
	if !strings.Contains(out, "queue="+QueueFast) {
		t.Errorf("log reports wrong lane: %q, want queue=%s", out, QueueFast)
	}
	if strings.Contains(out, "queue=no_such_queue") {
		t.Errorf("log reports the unknown queue ID instead of the lane used: %q", out)
	}
}

func TestPool_FullLaneDoesNotBlockOtherLanes(t *testing.T) {
	// No workers started: the precision lane fills and stays full.
	p := NewPool(func(context.Context, uuid.UUID) error { return nil }, nil, WithDepth(1))
	ctx := context.Background()

	if err := p.Enqueue(ctx, QueuePrecision, uuid.New()); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	blocked := make(chan struct{})
	go func() {
		defer close(blocked)
		_ = p.Enqueue(ctx, QueuePrecision, uuid.New())
	}()

	// While one caller is stuck on the full precision lane, the fast lane
	// must still accept work.
	done := make(chan error, 1)
	go func() { done <- p.Enqueue(ctx, QueueFast, uuid.New()) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("enqueue fast: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("fast-lane enqueue stalled behind a full precision lane")
	}

	// Draining the precision lane releases the blocked caller.
	p.Start(ctx)
	select {
	case <-blocked:
	case <-time.After(2 * time.Second):
		t.Fatal("blocked enqueue never completed after workers started")
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	p.Shutdown(shutdownCtx)
}

func TestPool_EnqueueAfterShutdownFails(t *testing.T) {
	p := NewPool(func(context.Context, uuid.UUID) error { return nil }, nil)
	ctx := context.Background()
	p.Start(ctx)

	shutdownCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	p.Shutdown(shutdownCtx)

	if err := p.Enqueue(ctx, QueueFast, uuid.New()); err == nil {
		t.Error("enqueue after shutdown should fail")
	}
}
