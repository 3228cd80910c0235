package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"subflow/internal/services"
)

// MediaIdentity resolves path to the key used for single-flight: the
// absolute path with symlinks resolved. A missing file is ErrInputNotFound.
func MediaIdentity(path string) (string, error) {
	if path == "" {
		return "", services.Wrap(services.ErrInputNotFound, "", "resolve media", "empty path", nil)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", services.Wrap(services.ErrInputNotFound, "", "resolve media", path, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", services.Wrap(services.ErrInputNotFound, "", "stat media", abs, err)
	}
	if info.IsDir() {
		return "", services.Wrap(services.ErrInputNotFound, "", "stat media", abs+" is a directory", nil)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	return abs, nil
}

// registry tracks active runs by media identity and by run ID.
type registry struct {
	mu       sync.Mutex
	byMedia  map[string]*Run
	byID     map[string]*Run
	finished map[string]*Run
	// order lists finished run IDs oldest first.
	order  []string
	retain int
}

func newRegistry(retain int) *registry {
	return &registry{
		byMedia:  make(map[string]*Run),
		byID:     make(map[string]*Run),
		finished: make(map[string]*Run),
		retain:   retain,
	}
}

// acquire registers run under identity or fails with ErrBusy when another
// run for identity is active.
func (r *registry) acquire(identity string, run *Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if active, ok := r.byMedia[identity]; ok {
		return services.Wrap(services.ErrBusy, "", "start run",
			fmt.Sprintf("run %s already processing %s", active.ID, identity), nil)
	}
	r.byMedia[identity] = run
	r.byID[run.ID] = run
	return nil
}

// release drops run from the active set and keeps it for lookup by ID.
func (r *registry) release(identity string, run *Run) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.byMedia[identity] == run {
		delete(r.byMedia, identity)
	}
	delete(r.byID, run.ID)
	r.finished[run.ID] = run
	r.order = append(r.order, run.ID)
	for len(r.finished) > r.retain && len(r.order) > 0 {
		delete(r.finished, r.order[0])
		r.order = r.order[1:]
	}
}

func (r *registry) get(id string) (*Run, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if run, ok := r.byID[id]; ok {
		return run, true
	}
	run, ok := r.finished[id]
	return run, ok
}

func (r *registry) active() []*Run {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Run, 0, len(r.byID))
	for _, run := range r.byID {
		out = append(out, run)
	}
	return out
}

// forget removes a finished run from lookup.
func (r *registry) forget(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.finished[id]; !ok {
		return
	}
	delete(r.finished, id)
	for i, finished := range r.order {
		if finished == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}
