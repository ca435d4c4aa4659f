package service

import (
	"context"
	"sync"
)

// keyedSerializer runs functions sharing a key strictly in submission
// order, while functions with different keys proceed independently. Each
// key holds a chain of pending operations: a newcomer waits for the
// previous tail before running and releases its own slot when done, so a
// slow in-flight mutation can never be overtaken by a later one for the
// same cart line.
type keyedSerializer struct {
	mu    sync.Mutex
	tails map[string]chan struct{}
}

func newKeyedSerializer() *keyedSerializer {
	return &keyedSerializer{tails: make(map[string]chan struct{})}
}

func (s *keyedSerializer) Do(ctx context.Context, key string, fn func() error) error {
	s.mu.Lock()
	prev := s.tails[key]
	done := make(chan struct{})
	s.tails[key] = done
	s.mu.Unlock()

	release := func() {
		close(done)
		s.mu.Lock()
		if s.tails[key] == done {
			delete(s.tails, key)
		}
		s.mu.Unlock()
	}

	if prev != nil {
		select {
		case <-prev:
		case <-ctx.Done():
			// Give up our turn without breaking the chain: successors may
			// only start once the predecessor is finished.
			go func() {
				<-prev
				release()
			}()
			return ctx.Err()
		}
	}

	defer release()
	return fn()
}
