package fileservice

import (
	"context"
	"sync"
	"sync/atomic"

	"remote-sync/internal/cache"
	"remote-sync/internal/config"
	"remote-sync/internal/events"
	"remote-sync/internal/remotefs"
	"remote-sync/internal/scheduler"
	"remote-sync/internal/util"
	"remote-sync/internal/watcher"
)

var nextServiceID int64

// Options are the injected collaborators of a Service. Bus is required;
// everything else is optional.
type Options struct {
	Bus      *events.Bus
	Resolver *config.Resolver
	Watcher  watcher.Registry
	Pool     *remotefs.Pool
	Ledger   *cache.Ledger
	Printer  *util.SafePrinter
}

// Service orchestrates transfers for one (workspace folder × remote)
// pair. It owns the raw config, the active schedulers, the set of
// pending tasks, and mirrors scheduler events as domain events on the
// bus.
type Service struct {
	id       int64
	baseDir  string
	raw      *config.RawConfig
	resolver *config.Resolver
	bus      *events.Bus
	watcher  watcher.Registry
	pool     *remotefs.Pool
	ledger   *cache.Ledger
	printer  *util.SafePrinter

	mu            sync.Mutex
	activeProfile string
	schedulers    []*scheduler.Scheduler
	pending       map[*scheduler.Task]struct{}
	disposed      bool
}

// New creates a Service for the workspace folder at baseDir with the
// given raw config layer.
func New(baseDir string, raw *config.RawConfig, opts Options) *Service {
	resolver := opts.Resolver
	if resolver == nil {
		resolver = config.NewResolver(baseDir)
	}
	printer := opts.Printer
	if printer == nil {
		printer = util.Default
	}
	return &Service{
		id:       atomic.AddInt64(&nextServiceID, 1),
		baseDir:  baseDir,
		raw:      raw,
		resolver: resolver,
		bus:      opts.Bus,
		watcher:  opts.Watcher,
		pool:     opts.Pool,
		ledger:   opts.Ledger,
		printer:  printer,
		pending:  map[*scheduler.Task]struct{}{},
	}
}

// ID is this service's process-unique numeric identity.
func (s *Service) ID() int64 {
	return s.id
}

// BaseDir is the workspace folder this service synchronizes.
func (s *Service) BaseDir() string {
	return s.baseDir
}

// SetActiveProfile selects the profile used when GetConfig is called
// without an explicit name.
func (s *Service) SetActiveProfile(name string) {
	s.mu.Lock()
	s.activeProfile = name
	s.mu.Unlock()
}

// ActiveProfile returns the currently selected profile name.
func (s *Service) ActiveProfile() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeProfile
}

// StoreConfig replaces the raw configuration layer, e.g. after the
// workspace config file changed, and re-registers the watcher.
func (s *Service) StoreConfig(raw *config.RawConfig) error {
	s.mu.Lock()
	s.raw = raw
	s.mu.Unlock()

	if s.bus != nil {
		s.bus.Publish(events.EventConfigLoaded, s.id)
	}
	if s.watcher == nil {
		return nil
	}
	cfg, err := s.GetConfig("")
	if err != nil {
		return err
	}
	return s.watcher.Create(s.baseDir, cfg.Watcher)
}

// GetConfig re-resolves the configuration on every call, since the
// result depends on mutable external state. An empty profile selects
// the active one.
func (s *Service) GetConfig(profile string) (*config.ServiceConfig, error) {
	s.mu.Lock()
	raw := s.raw
	if profile == "" {
		profile = s.activeProfile
	}
	s.mu.Unlock()
	return s.resolver.Resolve(raw, profile)
}

// GetAllConfig resolves the configuration of every declared profile.
// Empty when the config declares none.
func (s *Service) GetAllConfig() ([]*config.ServiceConfig, error) {
	s.mu.Lock()
	raw := s.raw
	s.mu.Unlock()

	names := raw.ProfileNames()
	configs := make([]*config.ServiceConfig, 0, len(names))
	for _, name := range names {
		cfg, err := s.resolver.Resolve(raw, name)
		if err != nil {
			return nil, err
		}
		configs = append(configs, cfg)
	}
	return configs, nil
}

// Handle drives one scheduler owned by a Service.
type Handle struct {
	svc   *Service
	sched *scheduler.Scheduler
}

// Add enqueues a task on the underlying scheduler.
func (h *Handle) Add(t *scheduler.Task) bool {
	return h.sched.Add(t)
}

// Size is the scheduler's queued-plus-running count.
func (h *Handle) Size() int {
	return h.sched.Size()
}

// Run starts the scheduler and returns once it has drained, after which
// it is removed from the service's active list. With no queued work it
// returns immediately without starting.
func (h *Handle) Run(ctx context.Context) error {
	if h.sched.Size() == 0 {
		h.svc.removeScheduler(h.sched)
		return nil
	}
	h.sched.Start()
	select {
	case <-h.sched.Idle():
		h.svc.removeScheduler(h.sched)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CreateTransferScheduler builds a scheduler wired into this service:
// dispatched tasks join the global pending set and surface as
// BEFORE_TRANSFER events; completions leave the set and surface as
// AFTER_TRANSFER events. Zero concurrency falls back to the resolved
// config's value.
func (s *Service) CreateTransferScheduler(concurrency int) *Handle {
	if concurrency < 1 {
		if cfg, err := s.GetConfig(""); err == nil {
			concurrency = cfg.Concurrency
		} else {
			concurrency = config.DefaultConcurrency
		}
	}
	sched := scheduler.New(scheduler.Options{Concurrency: concurrency})

	sched.OnTaskStart(func(t *scheduler.Task) {
		s.mu.Lock()
		s.pending[t] = struct{}{}
		s.mu.Unlock()
		if s.bus != nil {
			s.bus.Publish(events.EventBeforeTransfer, t)
		}
	})
	sched.OnTaskDone(func(err error, t *scheduler.Task) {
		s.mu.Lock()
		delete(s.pending, t)
		s.mu.Unlock()
		if err == nil {
			s.recordTransfer(t)
		}
		if s.bus != nil {
			s.bus.Publish(events.EventAfterTransfer, err, t)
		}
	})

	s.mu.Lock()
	s.schedulers = append(s.schedulers, sched)
	s.mu.Unlock()

	return &Handle{svc: s, sched: sched}
}

// CancelTransferTasks is the single cancellation entry point: it empties
// every active scheduler's queue, cancels every tracked task, and clears
// all tracking sets. Idempotent and safe with zero pending work.
func (s *Service) CancelTransferTasks() {
	s.mu.Lock()
	scheds := s.schedulers
	s.schedulers = nil
	pending := s.pending
	s.pending = map[*scheduler.Task]struct{}{}
	s.mu.Unlock()

	for _, sched := range scheds {
		for _, t := range sched.Empty() {
			t.Cancel()
		}
	}
	for t := range pending {
		t.Cancel()
	}
}

// Dispose cancels outstanding work, unregisters the watcher for this
// service's base dir, and drops the pooled connection for its host.
func (s *Service) Dispose() {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	s.disposed = true
	s.mu.Unlock()

	s.CancelTransferTasks()

	if s.watcher != nil {
		s.watcher.Dispose(s.baseDir)
	}
	if s.pool != nil {
		if cfg, err := s.GetConfig(""); err == nil {
			s.pool.Forget(cfg.HostKey())
		}
	}
	if s.bus != nil {
		s.bus.Publish(events.EventServiceClosed, s.id)
	}
}

// recordTransfer updates the sync ledger after a successful upload so a
// later batch can skip the unchanged file. Best effort.
func (s *Service) recordTransfer(t *scheduler.Task) {
	if s.ledger == nil || t.Kind != scheduler.KindUpload || t.LocalPath == "" {
		return
	}
	if err := s.ledger.RecordSync(t.LocalPath); err != nil {
		s.printer.Printf("⚠️  failed to record sync for %s: %v\n", t.LocalPath, err)
	}
}

func (s *Service) removeScheduler(sched *scheduler.Scheduler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, sc := range s.schedulers {
		if sc == sched {
			s.schedulers = append(s.schedulers[:i], s.schedulers[i+1:]...)
			return
		}
	}
}
