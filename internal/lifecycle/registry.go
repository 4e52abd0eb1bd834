package lifecycle

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/sync/singleflight"
)

// registry tracks in-flight work per task id: at most one poller, and at most
// one artifact download whose result is shared by concurrent callers.
type registry struct {
	mu        sync.Mutex
	closed    bool
	pollers   map[string]context.CancelFunc
	downloads singleflight.Group
}

func newRegistry() *registry {
	return &registry{pollers: make(map[string]context.CancelFunc)}
}

// claim records a poller for taskID. It fails when one already exists or the
// registry was closed.
func (r *registry) claim(taskID string, cancel context.CancelFunc) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}
	if _, ok := r.pollers[taskID]; ok {
		return false
	}
	r.pollers[taskID] = cancel
	return true
}

func (r *registry) release(taskID string) {
	r.mu.Lock()
	delete(r.pollers, taskID)
	r.mu.Unlock()
}

func (r *registry) active() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.pollers))
	for id := range r.pollers {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// close rejects further claims and cancels every poller.
func (r *registry) close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	for _, cancel := range r.pollers {
		cancel()
	}
}

// download runs fn once per taskID at a time. Callers arriving while fn is in
// flight receive its result; shared reports whether that happened. A caller
// whose ctx ends returns early while fn keeps running for the others.
func (r *registry) download(ctx context.Context, taskID string, fn func() (string, error)) (path string, shared bool, err error) {
	ch := r.downloads.DoChan(taskID, func() (any, error) {
		return fn()
	})
	select {
	case <-ctx.Done():
		return "", false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Shared, res.Err
		}
		return res.Val.(string), res.Shared, nil
	}
}
