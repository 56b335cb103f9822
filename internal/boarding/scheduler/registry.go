package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/mateusmacedo/go-boarding/pkg/application"
)

var ErrNotAttached = errors.New("vehicle not attached")

// Factory builds the scheduler of one vehicle.
type Factory func(vehicleID string) *Scheduler

// Starter runs once per scheduler after seeding, typically to start its
// change feed. ctx lives until the scheduler is detached; the returned stop
// function is called on the last detach.
type Starter func(ctx context.Context, s *Scheduler) (stop func(), err error)

type RegistryOption func(*Registry)

func WithStarter(start Starter) RegistryOption {
	return func(r *Registry) { r.start = start }
}

func WithRegistryLogger(logger application.AppLogger) RegistryOption {
	return func(r *Registry) { r.logger = logger }
}

type entry struct {
	scheduler *Scheduler
	refs      int
	cancel    context.CancelFunc
	stop      func()
}

// Registry holds one scheduler per vehicle. A scheduler is created and
// seeded on the first Attach and torn down on the last Detach.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
	factory Factory
	start   Starter
	logger  application.AppLogger
}

func NewRegistry(factory Factory, opts ...RegistryOption) *Registry {
	r := &Registry{
		entries: make(map[string]*entry),
		factory: factory,
		logger:  application.NopLogger{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Attach returns the vehicle's scheduler, creating and seeding it when this
// is the first reference. Seeding runs under the registry lock.
func (r *Registry) Attach(ctx context.Context, vehicleID string) (*Scheduler, error) {
	if vehicleID == "" {
		return nil, errors.New("vehicle id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[vehicleID]; ok {
		e.refs++
		return e.scheduler, nil
	}

	s := r.factory(vehicleID)
	if err := s.Attach(ctx); err != nil {
		return nil, fmt.Errorf("attach vehicle %s: %w", vehicleID, err)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	e := &entry{scheduler: s, refs: 1, cancel: cancel}
	if r.start != nil {
		stop, err := r.start(runCtx, s)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("start vehicle %s: %w", vehicleID, err)
		}
		e.stop = stop
	}
	r.entries[vehicleID] = e

	application.LogInfo(ctx, r.logger, "vehicle attached", map[string]interface{}{
		"vehicle_id": vehicleID,
		"waiting":    s.Size(),
	})
	return s, nil
}

// Detach drops one reference. It reports whether the scheduler was torn down.
func (r *Registry) Detach(vehicleID string) (bool, error) {
	r.mu.Lock()
	e, ok := r.entries[vehicleID]
	if !ok {
		r.mu.Unlock()
		return false, fmt.Errorf("%w: %s", ErrNotAttached, vehicleID)
	}
	e.refs--
	if e.refs > 0 {
		r.mu.Unlock()
		return false, nil
	}
	delete(r.entries, vehicleID)
	r.mu.Unlock()

	r.teardown(e)
	application.LogInfo(context.Background(), r.logger, "vehicle detached", map[string]interface{}{
		"vehicle_id": vehicleID,
	})
	return true, nil
}

func (r *Registry) Get(vehicleID string) (*Scheduler, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[vehicleID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotAttached, vehicleID)
	}
	return e.scheduler, nil
}

// Vehicles lists the attached vehicle ids in lexical order.
func (r *Registry) Vehicles() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, 0, len(r.entries))
	for id := range r.entries {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Close tears down every scheduler regardless of its reference count.
func (r *Registry) Close() {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[string]*entry)
	r.mu.Unlock()

	for _, e := range entries {
		r.teardown(e)
	}
}

func (r *Registry) teardown(e *entry) {
	e.cancel()
	if e.stop != nil {
		e.stop()
	}
}
