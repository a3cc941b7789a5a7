package stt

import (
	"context"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"
)

// ModelCache hands out loaded model handles, loading each (model, device)
// pair at most once. Concurrent Resolve calls for an uncached pair collapse
// into a single load; failed loads are not cached, so the next Resolve
// retries. Entries are never evicted; the model set is operator-controlled
// and small.
type ModelCache struct {
	engine Engine
	log    *log.Logger

	group  singleflight.Group
	mu     sync.RWMutex
	models map[string]ModelHandle
}

func NewModelCache(engine Engine, logger *log.Logger) *ModelCache {
	return &ModelCache{
		engine: engine,
		log:    logger,
		models: make(map[string]ModelHandle),
	}
}

func (c *ModelCache) Resolve(
	ctx context.Context,
	model, device string,
) (ModelHandle, error) {
	key := model + "\x00" + device

	c.mu.RLock()
	handle, ok := c.models[key]
	c.mu.RUnlock()
	if ok {
		return handle, nil
	}

	v, err, shared := c.group.Do(key, func() (interface{}, error) {
		// Another caller may have finished the load while we queued.
		c.mu.RLock()
		handle, ok := c.models[key]
		c.mu.RUnlock()
		if ok {
			return handle, nil
		}

		c.log.Info("loading model", "model", model, "device", device)
		loaded, err := c.engine.LoadModel(ctx, model, device)
		if err != nil {
			return nil, fmt.Errorf("load model %s: %w", model, err)
		}

		c.mu.Lock()
		c.models[key] = loaded
		c.mu.Unlock()
		return loaded, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		c.log.Debug("model load shared", "model", model)
	}

	return v.(ModelHandle), nil
}
