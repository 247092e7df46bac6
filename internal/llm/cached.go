package llm

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nkarev/driftbrief/internal/cache"
)

// cached wraps a provider with a response cache so re-running a day's
// pipeline does not repeat identical completions
type cached struct {
	Provider
	store cache.Cache
	ttl   time.Duration
}

// WithCache wraps p so Complete consults store before calling the API.
// A nil store returns p unchanged.
func WithCache(p Provider, store cache.Cache, ttl time.Duration) Provider {
	if store == nil {
		return p
	}
	return &cached{Provider: p, store: store, ttl: ttl}
}

func (c *cached) Complete(ctx context.Context, req Request) (*Response, error) {
	key := cache.Key(c.Provider.Name(), req.Model, req.System, req.User)

	if data, found := c.store.Get(key); found {
		var resp Response
		if err := json.Unmarshal(data, &resp); err == nil {
			return &resp, nil
		}
		// Corrupt entry: drop it and fall through to the API
		_ = c.store.Delete(key)
	}

	resp, err := c.Provider.Complete(ctx, req)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(resp); err == nil {
		_ = c.store.Set(key, data, c.ttl)
	}
	return resp, nil
}
