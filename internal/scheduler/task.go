package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Kind identifies what a transfer task does.
type Kind string

const (
	KindUpload   Kind = "upload"
	KindDownload Kind = "download"
	KindDelete   Kind = "delete"
)

// Status is the lifecycle state of a task.
type Status int32

const (
	StatusPending Status = iota
	StatusQueued
	StatusRunning
	StatusSucceeded
	StatusFailed
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusQueued:
		return "queued"
	case StatusRunning:
		return "running"
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	case StatusCancelled:
		return "cancelled"
	}
	return "unknown"
}

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusCancelled
}

// ErrCancelled is the outcome of a cancelled task. Cancellation is not a
// failure; it is its own terminal state.
var ErrCancelled = errors.New("transfer cancelled")

// TransferError reports a single task's I/O failure. It is local to that
// task and never halts the scheduler or sibling tasks.
type TransferError struct {
	Kind Kind
	Path string
	Err  error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Kind, e.Path, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

// Op performs the transfer I/O of a task. It must observe ctx between
// operations and abort promptly once it is cancelled.
type Op func(ctx context.Context) error

// Task is one schedulable unit of file-transfer work: asynchronous,
// cancelable, with a single terminal outcome.
type Task struct {
	Kind       Kind
	LocalPath  string
	RemotePath string

	op     Op
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	status Status
	err    error
	done   chan struct{}
}

// NewTask creates a pending task that will run op when dispatched.
func NewTask(kind Kind, localPath, remotePath string, op Op) *Task {
	ctx, cancel := context.WithCancel(context.Background())
	return &Task{
		Kind:       kind,
		LocalPath:  localPath,
		RemotePath: remotePath,
		op:         op,
		ctx:        ctx,
		cancel:     cancel,
		status:     StatusPending,
		done:       make(chan struct{}),
	}
}

// Status returns the task's current lifecycle state.
func (t *Task) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Err returns the terminal outcome: nil for success, ErrCancelled for
// cancellation, a *TransferError otherwise. Zero until the task is done.
func (t *Task) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Done is closed once the task reaches a terminal state.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Cancel requests cooperative cancellation. A task that has not started
// yet is finished immediately and will never be dispatched; a running
// task finishes once its Op observes the cancelled context.
func (t *Task) Cancel() {
	t.cancel()
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status == StatusPending || t.status == StatusQueued {
		t.finishLocked(ErrCancelled)
	}
}

// markQueued moves pending → queued; only pending tasks may join a
// scheduler.
func (t *Task) markQueued() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status != StatusPending {
		return false
	}
	t.status = StatusQueued
	return true
}

// start moves queued → running unless the task was cancelled meanwhile.
func (t *Task) start() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status != StatusQueued {
		return false
	}
	if t.ctx.Err() != nil {
		t.finishLocked(ErrCancelled)
		return false
	}
	t.status = StatusRunning
	return true
}

// execute runs the task's Op and records the terminal outcome.
func (t *Task) execute() error {
	var err error
	if t.op != nil {
		err = t.op(t.ctx)
	}
	t.mu.Lock()
	t.finishLocked(err)
	out := t.err
	t.mu.Unlock()
	return out
}

func (t *Task) finishLocked(err error) {
	if t.status.Terminal() {
		return
	}
	switch {
	case err == nil:
		t.status = StatusSucceeded
		t.err = nil
	case errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled):
		t.status = StatusCancelled
		t.err = ErrCancelled
	default:
		t.status = StatusFailed
		path := t.RemotePath
		if path == "" {
			path = t.LocalPath
		}
		t.err = &TransferError{Kind: t.Kind, Path: path, Err: err}
	}
	close(t.done)
}
