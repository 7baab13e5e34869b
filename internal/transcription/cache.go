package transcription

import (
	"context"
	"io"
	"sort"
	"sync"
)

// ModelCache keeps loaded models resident for the life of the process.
// Loading an identifier that is already resident is a no-op; a failed load
// is not remembered, so the next caller tries again.
type ModelCache struct {
	mu    sync.Mutex
	slots map[string]*modelSlot
}

type modelSlot struct {
	mu    sync.Mutex
	model Model
}

func NewModelCache() *ModelCache {
	return &ModelCache{slots: make(map[string]*modelSlot)}
}

// SharedModels is the process-wide cache. cmd entry points Close it on exit.
var SharedModels = NewModelCache()

// Get returns the resident model for modelID, loading it through backend on
// first use. Concurrent callers for the same identifier wait on one load.
func (c *ModelCache) Get(ctx context.Context, backend Backend, modelID string) (Model, error) {
	c.mu.Lock()
	slot, ok := c.slots[modelID]
	if !ok {
		slot = &modelSlot{}
		c.slots[modelID] = slot
	}
	c.mu.Unlock()

	slot.mu.Lock()
	defer slot.mu.Unlock()
	if slot.model != nil {
		return slot.model, nil
	}
	model, err := backend.Load(ctx, modelID)
	if err != nil {
		return nil, err
	}
	slot.model = model
	return model, nil
}

// Resident lists the identifiers of loaded models.
func (c *ModelCache) Resident() []string {
	c.mu.Lock()
	slots := make(map[string]*modelSlot, len(c.slots))
	for id, s := range c.slots {
		slots[id] = s
	}
	c.mu.Unlock()

	var ids []string
	for id, s := range slots {
		s.mu.Lock()
		if s.model != nil {
			ids = append(ids, id)
		}
		s.mu.Unlock()
	}
	sort.Strings(ids)
	return ids
}

// Close releases every resident model. The cache is empty afterwards.
func (c *ModelCache) Close() error {
	c.mu.Lock()
	slots := c.slots
	c.slots = make(map[string]*modelSlot)
	c.mu.Unlock()

	var firstErr error
	for _, s := range slots {
		s.mu.Lock()
		if closer, ok := s.model.(io.Closer); ok {
			if err := closer.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		s.model = nil
		s.mu.Unlock()
	}
	return firstErr
}
