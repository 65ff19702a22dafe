package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/isdmx/workspace/process"
)

// stopGrace is how long a child gets to exit after SIGTERM before it is
// killed outright on release.
const stopGrace = 2 * time.Second

var (
	// ErrUnknownHandle is returned for ids that were never issued or were freed.
	ErrUnknownHandle = errors.New("unknown handle")
	// ErrRegistryFull is returned when max_handles handles are live.
	ErrRegistryFull = errors.New("handle limit reached")
)

// entry serializes access to one process handle.
type entry struct {
	mu      sync.Mutex
	handle  *process.Handle
	command string
}

// registry maps handle ids issued to clients onto process handles.
type registry struct {
	mu      sync.Mutex
	max     int
	entries map[string]*entry
}

func newRegistry(maxHandles int) *registry {
	return &registry{
		max:     maxHandles,
		entries: make(map[string]*entry),
	}
}

// reserve checks capacity before a launch so a full registry never spawns
// a child it cannot track.
func (r *registry) reserve() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.entries) >= r.max {
		return fmt.Errorf("%w: %d", ErrRegistryFull, r.max)
	}
	return nil
}

func (r *registry) add(h *process.Handle, command string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.entries) >= r.max {
		return "", fmt.Errorf("%w: %d", ErrRegistryFull, r.max)
	}

	id := uuid.NewString()
	r.entries[id] = &entry{handle: h, command: command}
	return id, nil
}

func (r *registry) get(id string) (*entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownHandle, id)
	}
	return e, nil
}

func (r *registry) remove(id string) (*entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownHandle, id)
	}
	delete(r.entries, id)
	return e, nil
}

func (r *registry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// drain removes every entry and returns them.
func (r *registry) drain() map[string]*entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := r.entries
	r.entries = make(map[string]*entry)
	return entries
}

// release stops a still-running child, waits until it has been reaped and
// frees the handle. The handle is freed even when ctx ends first.
func (e *entry) release(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	_, err := e.handle.Stop(ctx, stopGrace)
	return multierr.Append(err, e.handle.Free())
}
