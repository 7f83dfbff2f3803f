package llm

import (
	"context"

	"golang.org/x/sync/semaphore"
)

type limited struct {
	Gateway
	sem *semaphore.Weighted
}

// Limit caps the number of in-flight calls through g at n. Callers beyond the cap
// block until a slot frees or their context ends.
func Limit(g Gateway, n int64) Gateway {
	if n <= 0 {
		return g
	}
	return &limited{Gateway: g, sem: semaphore.NewWeighted(n)}
}

func (l *limited) Execute(ctx context.Context, req Request) (string, error) {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return "", &TransportError{Provider: "limit", Model: string(req.Tier), Err: err}
	}
	defer l.sem.Release(1)
	return l.Gateway.Execute(ctx, req)
}

// Close leaves the shared gateway open; the wrapper owns only its semaphore.
func (l *limited) Close() error { return nil }
