package scheduler

import "sync"

// Options configures a Scheduler.
type Options struct {
	// Concurrency bounds how many tasks run simultaneously; values below
	// 1 are clamped to 1.
	Concurrency int

	// AutoStart dispatches tasks as soon as they are added, without an
	// explicit Start call.
	AutoStart bool
}

// Scheduler is an ephemeral bounded-concurrency task queue. It is
// created fresh for one logical batch of work and discarded once
// drained. Queued tasks start in FIFO order; the number of running
// tasks never exceeds the configured concurrency.
type Scheduler struct {
	concurrency int

	mu      sync.Mutex
	queue   []*Task
	running int
	started bool
	onStart []func(*Task)
	onDone  []func(error, *Task)
	idle    []chan struct{}
}

// New creates a Scheduler with the given options.
func New(opts Options) *Scheduler {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &Scheduler{
		concurrency: opts.Concurrency,
		started:     opts.AutoStart,
	}
}

// OnTaskStart registers an observer invoked synchronously when a task is
// dispatched.
func (s *Scheduler) OnTaskStart(fn func(*Task)) {
	s.mu.Lock()
	s.onStart = append(s.onStart, fn)
	s.mu.Unlock()
}

// OnTaskDone registers an observer invoked at task completion with the
// task's outcome (nil on success).
func (s *Scheduler) OnTaskDone(fn func(error, *Task)) {
	s.mu.Lock()
	s.onDone = append(s.onDone, fn)
	s.mu.Unlock()
}

// Add enqueues a pending task. Tasks already queued elsewhere or already
// terminal are rejected.
func (s *Scheduler) Add(t *Task) bool {
	if !t.markQueued() {
		return false
	}
	s.mu.Lock()
	s.queue = append(s.queue, t)
	started := s.started
	s.mu.Unlock()
	if started {
		s.dispatch()
	}
	return true
}

// Start begins dispatching queued tasks, up to the concurrency bound. As
// each task completes the next queued task, if any, is dispatched.
func (s *Scheduler) Start() {
	s.mu.Lock()
	s.started = true
	s.mu.Unlock()
	s.dispatch()
}

// Empty discards all queued, not yet started tasks and returns them.
// Running tasks are unaffected; callers must cancel those separately.
func (s *Scheduler) Empty() []*Task {
	s.mu.Lock()
	dropped := s.queue
	s.queue = nil
	var fire []chan struct{}
	if s.running == 0 {
		fire = s.idle
		s.idle = nil
	}
	s.mu.Unlock()
	for _, ch := range fire {
		close(ch)
	}
	return dropped
}

// Size is the count of queued plus running tasks.
func (s *Scheduler) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue) + s.running
}

// Idle returns a channel closed once the running count and queue length
// both reach zero. It is closed immediately if the scheduler is already
// idle. Each returned channel is closed exactly once.
func (s *Scheduler) Idle() <-chan struct{} {
	ch := make(chan struct{})
	s.mu.Lock()
	if s.running == 0 && len(s.queue) == 0 {
		s.mu.Unlock()
		close(ch)
		return ch
	}
	s.idle = append(s.idle, ch)
	s.mu.Unlock()
	return ch
}

// dispatch fills free concurrency slots from the queue and fires idle
// notifications once everything has drained.
func (s *Scheduler) dispatch() {
	s.mu.Lock()
	for s.started && s.running < s.concurrency && len(s.queue) > 0 {
		t := s.queue[0]
		s.queue = s.queue[1:]

		if !t.start() {
			// Cancelled while queued: it is never dispatched, but done
			// observers still hear about the outcome.
			cbs := s.onDone
			s.mu.Unlock()
			for _, cb := range cbs {
				cb(t.Err(), t)
			}
			s.mu.Lock()
			continue
		}

		s.running++
		cbs := s.onStart
		s.mu.Unlock()
		for _, cb := range cbs {
			cb(t)
		}
		go s.run(t)
		s.mu.Lock()
	}

	var fire []chan struct{}
	if s.running == 0 && len(s.queue) == 0 {
		fire = s.idle
		s.idle = nil
	}
	s.mu.Unlock()
	for _, ch := range fire {
		close(ch)
	}
}

func (s *Scheduler) run(t *Task) {
	err := t.execute()

	s.mu.Lock()
	s.running--
	cbs := s.onDone
	s.mu.Unlock()
	for _, cb := range cbs {
		cb(err, t)
	}

	s.dispatch()
}
