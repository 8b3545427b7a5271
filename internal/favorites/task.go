package favorites

import (
	"context"
	"sync/atomic"
)

// Task is a handle on a background sync or remote write. Err and Stale
// are meaningful once Done is closed.
type Task struct {
	kind  string
	done  chan struct{}
	err   error
	stale atomic.Bool
}

func newTask(kind string) *Task {
	return &Task{kind: kind, done: make(chan struct{})}
}

func completedTask(kind string, err error) *Task {
	t := newTask(kind)
	t.finish(err)

	return t
}

// Kind names the operation: "sync", "upsert" or "remove".
func (t *Task) Kind() string { return t.kind }

// Done is closed when the operation has finished.
func (t *Task) Done() <-chan struct{} { return t.done }

// Err returns the operation's error. Remote failures are reported here
// but never roll back local state.
func (t *Task) Err() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}

// Stale reports whether the result was discarded because the session
// changed while the operation was in flight.
func (t *Task) Stale() bool { return t.stale.Load() }

// Wait blocks until the task finishes or ctx is done.
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Task) finish(err error) {
	t.err = err
	close(t.done)
}
