package broadcast

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// NewJSONLines writes one JSON event per line to w. Used by the operator CLI.
func NewJSONLines(w io.Writer) Broadcaster {
	var mu sync.Mutex
	enc := json.NewEncoder(w)
	return publisher{
		now: time.Now,
		publish: func(_ context.Context, e Event) {
			mu.Lock()
			defer mu.Unlock()
			_ = enc.Encode(e)
		},
	}
}
