package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrTxFinished is returned when registering on a committed or rolled back Tx.
var ErrTxFinished = errors.New("transaction already finished")

// Tx collects callbacks registered during one write transaction and hands
// them to a Submitter only once the transaction commits.
type Tx struct {
	mu        sync.Mutex
	submitter Submitter
	callbacks []Task
	finished  bool
}

// Begin opens a callback scope for one transaction.
func Begin(submitter Submitter) *Tx {
	return &Tx{submitter: submitter}
}

// RunAfterCommit registers task to run after Commit.
func (t *Tx) RunAfterCommit(task func(context.Context)) error {
	if task == nil {
		return fmt.Errorf("task is required")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.finished {
		return ErrTxFinished
	}
	t.callbacks = append(t.callbacks, task)
	return nil
}

// Pending reports how many callbacks wait for commit.
func (t *Tx) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.callbacks)
}

// Commit submits registered callbacks in registration order. Submission
// failures are joined; the transaction itself is already durable.
func (t *Tx) Commit() error {
	t.mu.Lock()
	if t.finished {
		t.mu.Unlock()
		return ErrTxFinished
	}
	t.finished = true
	callbacks := t.callbacks
	t.callbacks = nil
	t.mu.Unlock()

	if t.submitter == nil {
		if len(callbacks) == 0 {
			return nil
		}
		return fmt.Errorf("no submitter for %d post-commit callbacks", len(callbacks))
	}
	var errs []error
	for _, callback := range callbacks {
		if err := t.submitter.Submit(callback); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Rollback discards registered callbacks.
func (t *Tx) Rollback() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.finished = true
	t.callbacks = nil
}
