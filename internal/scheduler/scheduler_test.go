package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func waitIdle(t *testing.T, s *Scheduler) {
	t.Helper()
	select {
	case <-s.Idle():
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not drain in time")
	}
}

func TestTaskLifecycle(t *testing.T) {
	task := NewTask(KindUpload, "/w/a.txt", "a.txt", func(ctx context.Context) error {
		return nil
	})
	if task.Status() != StatusPending {
		t.Fatalf("new task should be pending, got %s", task.Status())
	}

	s := New(Options{Concurrency: 1})
	if !s.Add(task) {
		t.Fatal("pending task should be accepted")
	}
	if task.Status() != StatusQueued {
		t.Fatalf("added task should be queued, got %s", task.Status())
	}
	if s.Add(task) {
		t.Fatal("a task must not join a scheduler twice")
	}

	s.Start()
	<-task.Done()
	if task.Status() != StatusSucceeded || task.Err() != nil {
		t.Fatalf("expected success, got %s / %v", task.Status(), task.Err())
	}
}

func TestTaskFailureWrapped(t *testing.T) {
	boom := errors.New("connection reset")
	task := NewTask(KindDownload, "", "dir/b.txt", func(ctx context.Context) error {
		return boom
	})

	s := New(Options{Concurrency: 1, AutoStart: true})
	s.Add(task)
	<-task.Done()

	if task.Status() != StatusFailed {
		t.Fatalf("expected failed, got %s", task.Status())
	}
	var te *TransferError
	if !errors.As(task.Err(), &te) {
		t.Fatalf("expected TransferError, got %T", task.Err())
	}
	if te.Kind != KindDownload || te.Path != "dir/b.txt" {
		t.Fatalf("unexpected error detail: %+v", te)
	}
	if !errors.Is(task.Err(), boom) {
		t.Fatal("cause must be reachable through Unwrap")
	}
}

func TestConcurrencyBound(t *testing.T) {
	const bound = 3
	const total = 10

	var active, peak int64
	release := make(chan struct{})

	s := New(Options{Concurrency: bound, AutoStart: true})
	tasks := make([]*Task, 0, total)
	for i := 0; i < total; i++ {
		task := NewTask(KindUpload, "", "f", func(ctx context.Context) error {
			n := atomic.AddInt64(&active, 1)
			for {
				p := atomic.LoadInt64(&peak)
				if n <= p || atomic.CompareAndSwapInt64(&peak, p, n) {
					break
				}
			}
			<-release
			atomic.AddInt64(&active, -1)
			return nil
		})
		tasks = append(tasks, task)
		s.Add(task)
	}

	// let the first wave start
	deadline := time.Now().Add(2 * time.Second)
	for atomic.LoadInt64(&active) < bound && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if got := atomic.LoadInt64(&active); got != bound {
		t.Fatalf("expected %d running tasks, got %d", bound, got)
	}

	close(release)
	waitIdle(t, s)

	if p := atomic.LoadInt64(&peak); p > bound {
		t.Fatalf("concurrency bound exceeded: peak %d > %d", p, bound)
	}
	for _, task := range tasks {
		if task.Status() != StatusSucceeded {
			t.Fatalf("task not finished: %s", task.Status())
		}
	}
}

func TestFIFOOrderWithSerialConcurrency(t *testing.T) {
	var mu sync.Mutex
	var order []int

	s := New(Options{Concurrency: 1})
	for i := 0; i < 5; i++ {
		i := i
		s.Add(NewTask(KindUpload, "", "f", func(ctx context.Context) error {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return nil
		}))
	}
	s.Start()
	waitIdle(t, s)

	for i, got := range order {
		if got != i {
			t.Fatalf("expected FIFO order, got %v", order)
		}
	}
}

func TestCancelQueuedTaskNeverRuns(t *testing.T) {
	block := make(chan struct{})
	var ran int64

	s := New(Options{Concurrency: 1, AutoStart: true})
	s.Add(NewTask(KindUpload, "", "first", func(ctx context.Context) error {
		<-block
		return nil
	}))

	queued := NewTask(KindUpload, "", "second", func(ctx context.Context) error {
		atomic.AddInt64(&ran, 1)
		return nil
	})
	s.Add(queued)
	queued.Cancel()

	if queued.Status() != StatusCancelled {
		t.Fatalf("queued task should cancel immediately, got %s", queued.Status())
	}
	if !errors.Is(queued.Err(), ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", queued.Err())
	}

	close(block)
	waitIdle(t, s)
	if atomic.LoadInt64(&ran) != 0 {
		t.Fatal("cancelled task must never be dispatched")
	}
}

func TestCancelRunningTaskIsCooperative(t *testing.T) {
	started := make(chan struct{})
	task := NewTask(KindUpload, "", "slow", func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})

	s := New(Options{Concurrency: 1, AutoStart: true})
	s.Add(task)
	<-started
	task.Cancel()
	<-task.Done()

	if task.Status() != StatusCancelled {
		t.Fatalf("expected cancelled, got %s", task.Status())
	}
	if !errors.Is(task.Err(), ErrCancelled) {
		t.Fatalf("cancellation must not surface as failure: %v", task.Err())
	}
}

func TestEmptyDiscardsQueuedOnly(t *testing.T) {
	block := make(chan struct{})
	var ran int64

	s := New(Options{Concurrency: 1, AutoStart: true})
	running := NewTask(KindUpload, "", "running", func(ctx context.Context) error {
		<-block
		return nil
	})
	s.Add(running)

	var queued []*Task
	for i := 0; i < 3; i++ {
		task := NewTask(KindUpload, "", "queued", func(ctx context.Context) error {
			atomic.AddInt64(&ran, 1)
			return nil
		})
		queued = append(queued, task)
		s.Add(task)
	}

	dropped := s.Empty()
	if len(dropped) != 3 {
		t.Fatalf("expected 3 dropped tasks, got %d", len(dropped))
	}
	for i, task := range dropped {
		if task != queued[i] {
			t.Fatal("dropped tasks should be the queued ones, in order")
		}
		// Empty does not cancel; that is the caller's decision
		if task.Status() != StatusQueued {
			t.Fatalf("dropped task should still be queued, got %s", task.Status())
		}
	}

	close(block)
	waitIdle(t, s)
	<-running.Done()
	if running.Status() != StatusSucceeded {
		t.Fatalf("running task must be unaffected, got %s", running.Status())
	}
	if atomic.LoadInt64(&ran) != 0 {
		t.Fatal("dropped tasks must never run")
	}
}

func TestIdleImmediateWhenAlreadyDrained(t *testing.T) {
	s := New(Options{Concurrency: 2})
	select {
	case <-s.Idle():
	default:
		t.Fatal("Idle must be closed immediately for an empty scheduler")
	}
}

func TestIdleFiresOncePerDrain(t *testing.T) {
	s := New(Options{Concurrency: 2})
	done := make(chan struct{})
	task := NewTask(KindUpload, "", "f", func(ctx context.Context) error {
		<-done
		return nil
	})
	s.Add(task)

	idle := s.Idle()
	select {
	case <-idle:
		t.Fatal("Idle fired while work is queued")
	case <-time.After(20 * time.Millisecond):
	}

	s.Start()
	close(done)
	select {
	case <-idle:
	case <-time.After(5 * time.Second):
		t.Fatal("Idle did not fire after drain")
	}
}

func TestObservers(t *testing.T) {
	var mu sync.Mutex
	var startNames, doneNames []string
	var doneErrs []error

	s := New(Options{Concurrency: 1})
	s.OnTaskStart(func(t *Task) {
		mu.Lock()
		startNames = append(startNames, t.RemotePath)
		mu.Unlock()
	})
	s.OnTaskDone(func(err error, t *Task) {
		mu.Lock()
		doneNames = append(doneNames, t.RemotePath)
		doneErrs = append(doneErrs, err)
		mu.Unlock()
	})

	boom := errors.New("boom")
	s.Add(NewTask(KindUpload, "", "ok", func(ctx context.Context) error { return nil }))
	s.Add(NewTask(KindUpload, "", "bad", func(ctx context.Context) error { return boom }))
	cancelled := NewTask(KindUpload, "", "cut", func(ctx context.Context) error { return nil })
	s.Add(cancelled)
	cancelled.Cancel()

	s.Start()
	waitIdle(t, s)

	mu.Lock()
	defer mu.Unlock()
	if len(startNames) != 2 {
		t.Fatalf("expected 2 started tasks, got %v", startNames)
	}
	if len(doneNames) != 3 {
		t.Fatalf("done observer must also see cancelled-in-queue tasks, got %v", doneNames)
	}
	var sawFail, sawCancel bool
	for _, err := range doneErrs {
		if err != nil && errors.Is(err, boom) {
			sawFail = true
		}
		if errors.Is(err, ErrCancelled) {
			sawCancel = true
		}
	}
	if !sawFail || !sawCancel {
		t.Fatalf("expected failure and cancellation outcomes, got %v", doneErrs)
	}
}

func TestFailureDoesNotHaltSiblings(t *testing.T) {
	var succeeded int64
	s := New(Options{Concurrency: 2, AutoStart: true})

	s.Add(NewTask(KindUpload, "", "bad", func(ctx context.Context) error {
		return errors.New("disk full")
	}))
	for i := 0; i < 4; i++ {
		s.Add(NewTask(KindUpload, "", "ok", func(ctx context.Context) error {
			atomic.AddInt64(&succeeded, 1)
			return nil
		}))
	}

	waitIdle(t, s)
	if got := atomic.LoadInt64(&succeeded); got != 4 {
		t.Fatalf("sibling tasks must keep running after a failure, got %d", got)
	}
}
