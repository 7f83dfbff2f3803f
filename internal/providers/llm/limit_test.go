package llm

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// gate holds every call until release is closed and tracks how many overlap.
type gate struct {
	release  chan struct{}
	inFlight atomic.Int64
	peak     atomic.Int64
	calls    atomic.Int64
	closed   atomic.Bool
}

func (g *gate) Execute(ctx context.Context, _ Request) (string, error) {
	n := g.inFlight.Add(1)
	defer g.inFlight.Add(-1)
	g.calls.Add(1)
	for {
		p := g.peak.Load()
		if n <= p || g.peak.CompareAndSwap(p, n) {
			break
		}
	}
	select {
	case <-g.release:
		return "{}", nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (g *gate) Close() error {
	g.closed.Store(true)
	return nil
}

func TestLimitCapsConcurrentCalls(t *testing.T) {
	g := &gate{release: make(chan struct{})}
	lg := Limit(g, 2)

	var wg sync.WaitGroup
	for range 6 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := lg.Execute(context.Background(), Request{Tier: TierFast}); err != nil {
				t.Errorf("Execute: %v", err)
			}
		}()
	}

	deadline := time.Now().Add(5 * time.Second)
	for g.inFlight.Load() < 2 {
		if time.Now().After(deadline) {
			t.Fatal("calls never reached the gateway")
		}
		time.Sleep(time.Millisecond)
	}
	// the rest must stay queued behind the cap
	time.Sleep(20 * time.Millisecond)
	if n := g.calls.Load(); n != 2 {
		t.Fatalf("calls admitted = %d, want 2", n)
	}

	close(g.release)
	wg.Wait()
	if p := g.peak.Load(); p != 2 {
		t.Fatalf("peak concurrency = %d, want 2", p)
	}
	if n := g.calls.Load(); n != 6 {
		t.Fatalf("calls = %d, want 6", n)
	}
}

func TestLimitQueuedCallHonoursContext(t *testing.T) {
	g := &gate{release: make(chan struct{})}
	lg := Limit(g, 1)

	busy, cancelBusy := context.WithCancel(context.Background())
	defer cancelBusy()
	go func() { _, _ = lg.Execute(busy, Request{}) }()
	for g.inFlight.Load() < 1 {
		time.Sleep(time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := lg.Execute(ctx, Request{Tier: TierStandard})
	var te *TransportError
	if !errors.As(err, &te) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want a transport error wrapping the deadline", err)
	}
	if g.calls.Load() != 1 {
		t.Fatal("queued call reached the gateway")
	}
}

func TestLimitLeavesSharedGatewayOpen(t *testing.T) {
	g := &gate{release: make(chan struct{})}
	if err := Limit(g, 3).Close(); err != nil || g.closed.Load() {
		t.Fatalf("err=%v closed=%v", err, g.closed.Load())
	}
	if Limit(g, 0) != Gateway(g) {
		t.Fatal("a non-positive cap should return the gateway unwrapped")
	}
}
