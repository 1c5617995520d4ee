package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"remote-sync/internal/cache"
	"remote-sync/internal/config"
	"remote-sync/internal/events"
	"remote-sync/internal/fileservice"
	"remote-sync/internal/remotefs"
	"remote-sync/internal/scheduler"
	"remote-sync/internal/util"
)

// StateDirName holds per-workspace state (sync ledger) under the root.
const StateDirName = ".remote-sync"

// session bundles the collaborators a transfer command needs: the event
// bus, the connection pool, the sync ledger and the file service, all
// built for the current workspace.
type session struct {
	root   string
	bus    *events.Bus
	pool   *remotefs.Pool
	ledger *cache.Ledger
	svc    *fileservice.Service
	cfg    *config.ServiceConfig
}

func newSession(profile string) (*session, error) {
	root := workspaceRoot()
	if !config.ConfigExists(root) {
		return nil, errors.New(config.ConfigFileName + " not found in this workspace")
	}
	raws, err := config.Load(root)
	if err != nil {
		return nil, err
	}
	raw := raws[0]

	bus := events.NewBus()
	pool := remotefs.NewPool()

	var ledger *cache.Ledger
	stateDir := filepath.Join(root, StateDirName)
	if err := os.MkdirAll(stateDir, 0755); err == nil {
		if l, lerr := cache.Open(filepath.Join(stateDir, "ledger.db")); lerr == nil {
			ledger = l
		} else {
			util.Default.Printf("⚠️  sync ledger unavailable: %v\n", lerr)
		}
	}

	svc := fileservice.New(root, raw, fileservice.Options{
		Bus:    bus,
		Pool:   pool,
		Ledger: ledger,
	})
	svc.SetActiveProfile(profile)

	cfg, err := svc.GetConfig("")
	if err != nil {
		svc.Dispose()
		pool.Close()
		if ledger != nil {
			ledger.Close()
		}
		return nil, err
	}

	// progress reporting for every transfer this session schedules
	_ = bus.Subscribe(events.EventBeforeTransfer, func(t *scheduler.Task) {
		util.Default.Printf("🔄 %s %s\n", t.Kind, displayPath(t))
	})
	_ = bus.Subscribe(events.EventAfterTransfer, func(err error, t *scheduler.Task) {
		if err == nil {
			util.Default.Printf("✅ %s %s\n", t.Kind, displayPath(t))
		} else if errors.Is(err, scheduler.ErrCancelled) {
			util.Default.Printf("⏹ %s %s cancelled\n", t.Kind, displayPath(t))
		} else {
			util.Default.Printf("❌ %s %s: %v\n", t.Kind, displayPath(t), err)
		}
	})

	return &session{root: root, bus: bus, pool: pool, ledger: ledger, svc: svc, cfg: cfg}, nil
}

func (s *session) Close() {
	s.svc.Dispose()
	s.pool.Close()
	if s.ledger != nil {
		s.ledger.Close()
	}
}

func displayPath(t *scheduler.Task) string {
	if t.Kind == scheduler.KindDownload {
		return t.RemotePath
	}
	if t.LocalPath != "" {
		return t.LocalPath
	}
	return t.RemotePath
}

// skipLocal filters workspace entries that must never leave the machine.
func skipLocal(name string) bool {
	switch name {
	case StateDirName, config.ConfigFileName, config.RemotesFileName, ".git":
		return true
	}
	return false
}

func summarize(done, skipped, failed int) {
	fmt.Printf("🔁 transferred: %d, skipped: %d, errors: %d\n", done, skipped, failed)
}
