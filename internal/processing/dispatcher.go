package processing

import (
	"context"
	"errors"
	"sync"

	"github.com/therealutkarshpriyadarshi/scrubstream/internal/logging"
)

// ErrDispatcherClosed is returned when a task arrives after shutdown began
var ErrDispatcherClosed = errors.New("dispatcher is closed")

// Dispatcher hands a task to something that will process it later.
// Dispatch must return without waiting for the task to run.
type Dispatcher interface {
	Dispatch(ctx context.Context, task Task) error
}

// Processor runs a task to completion
type Processor interface {
	Process(ctx context.Context, task Task) error
}

// Completion is the one-way signal published when a local task finishes
type Completion struct {
	FileID string
	Err    error
}

// LocalDispatcher runs every task on its own goroutine in this process
type LocalDispatcher struct {
	processor   Processor
	logger      *logging.Logger
	completions chan Completion

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewLocalDispatcher creates a dispatcher. Completions that nobody reads
// are dropped once the buffer is full.
func NewLocalDispatcher(processor Processor, logger *logging.Logger) *LocalDispatcher {
	return &LocalDispatcher{
		processor:   processor,
		logger:      logger,
		completions: make(chan Completion, 64),
	}
}

// Dispatch starts the task in the background
func (d *LocalDispatcher) Dispatch(ctx context.Context, task Task) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrDispatcherClosed
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		err := d.processor.Process(context.WithoutCancel(ctx), task)
		if err != nil {
			d.logger.WithFileID(task.FileID).ErrorWithErr("Processing task failed", err)
		}

		select {
		case d.completions <- Completion{FileID: task.FileID, Err: err}:
		default:
		}
	}()
	return nil
}

// Completions returns the channel finished tasks are announced on
func (d *LocalDispatcher) Completions() <-chan Completion {
	return d.completions
}

// Shutdown refuses new tasks and waits for running ones, or for ctx
func (d *LocalDispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait blocks until every dispatched task has finished
func (d *LocalDispatcher) Wait() {
	d.wg.Wait()
}
