package cache

import (
	"context"
	"fmt"
	"time"
)

type Cache interface {
	GetJSON(ctx context.Context, key string, dst any) (hit bool, err error)
	SetJSON(ctx context.Context, key string, val any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

func ReportKey(meetingID string) string   { return fmt.Sprintf("meeting:%s:report", meetingID) }
func ArtifactsKey(meetingID string) string { return fmt.Sprintf("meeting:%s:artifacts", meetingID) }

// Remember reads key into dst, calling load and caching its result on a miss.
// Cache errors never fail the read; only load errors are returned.
func Remember[T any](ctx context.Context, c Cache, key string, ttl time.Duration, load func(context.Context) (T, error)) (T, error) {
	var v T
	if c != nil {
		if hit, err := c.GetJSON(ctx, key, &v); err == nil && hit {
			return v, nil
		}
	}
	v, err := load(ctx)
	if err != nil {
		return v, err
	}
	if c != nil {
		_ = c.SetJSON(ctx, key, v, ttl)
	}
	return v, nil
}
