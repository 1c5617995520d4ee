package watcher

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/rjeczalik/notify"

	"remote-sync/internal/config"
)

// Registry is the collaborator contract for filesystem-change
// monitoring. The file service owns the call sites: Create on config
// load or change, Dispose on teardown.
type Registry interface {
	Create(baseDir string, cfg config.WatcherConfig) error
	Dispose(baseDir string)
}

// Event is one observed filesystem change under a watched base dir.
type Event struct {
	BaseDir string
	Path    string
	Op      notify.Event
}

// NotifyRegistry implements Registry on top of recursive filesystem
// notifications. Events are forwarded to OnEvent, when set.
type NotifyRegistry struct {
	// OnEvent receives every change observed under a registered base
	// dir. May be nil.
	OnEvent func(Event)

	mu      sync.Mutex
	watches map[string]chan notify.EventInfo
}

// NewRegistry creates an empty NotifyRegistry.
func NewRegistry() *NotifyRegistry {
	return &NotifyRegistry{watches: map[string]chan notify.EventInfo{}}
}

// Create registers recursive monitoring for baseDir, replacing any
// earlier registration for the same dir.
func (r *NotifyRegistry) Create(baseDir string, cfg config.WatcherConfig) error {
	r.Dispose(baseDir)

	ch := make(chan notify.EventInfo, 64)
	if err := notify.Watch(filepath.Join(baseDir, "..."), ch, notify.All); err != nil {
		return fmt.Errorf("failed to watch %s: %w", baseDir, err)
	}

	r.mu.Lock()
	r.watches[baseDir] = ch
	r.mu.Unlock()

	go r.forward(baseDir, ch)
	return nil
}

// Dispose stops monitoring baseDir. Safe to call when nothing is
// registered.
func (r *NotifyRegistry) Dispose(baseDir string) {
	r.mu.Lock()
	ch, ok := r.watches[baseDir]
	if ok {
		delete(r.watches, baseDir)
	}
	r.mu.Unlock()
	if ok {
		notify.Stop(ch)
		close(ch)
	}
}

// DisposeAll tears down every registration.
func (r *NotifyRegistry) DisposeAll() {
	r.mu.Lock()
	watches := r.watches
	r.watches = map[string]chan notify.EventInfo{}
	r.mu.Unlock()
	for _, ch := range watches {
		notify.Stop(ch)
		close(ch)
	}
}

func (r *NotifyRegistry) forward(baseDir string, ch chan notify.EventInfo) {
	for ei := range ch {
		if fn := r.OnEvent; fn != nil {
			fn(Event{BaseDir: baseDir, Path: ei.Path(), Op: ei.Event()})
		}
	}
}
