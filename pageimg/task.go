package pageimg

import (
	"context"
	"fmt"
	"sync"
)

// Task is the RenderTask used by the page backends: fn runs on its own
// goroutine under a context that Cancel cancels.
type Task struct {
	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.Mutex
	err     error
	settled bool
}

// NewTask starts fn. A fn that returns after the context was cancelled
// settles the task with ErrRenderCancelled, whatever it returned. A panic in
// fn settles the task with an error.
func NewTask(ctx context.Context, fn func(ctx context.Context) error) *Task {
	ctx, cancel := context.WithCancel(ctx)
	t := &Task{
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go func() {
		var err error
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("render panicked: %v", r)
			}
			if ctx.Err() != nil {
				err = fmt.Errorf("%w: %w", ErrRenderCancelled, ctx.Err())
			}
			cancel()
			t.settle(err)
		}()
		err = fn(ctx)
	}()
	return t
}

// SettledTask returns a task that has already settled with err.
func SettledTask(err error) *Task {
	t := &Task{
		cancel: func() {},
		done:   make(chan struct{}),
	}
	t.settle(err)
	return t
}

func (t *Task) settle(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.settled {
		return
	}
	t.err = err
	t.settled = true
	close(t.done)
}

func (t *Task) Done() <-chan struct{} { return t.done }

func (t *Task) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

func (t *Task) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.settled
}

func (t *Task) Cancel() {
	if t.Running() {
		t.cancel()
	}
}
