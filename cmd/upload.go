package cmd

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/spf13/cobra"

	"remote-sync/internal/events"
	"remote-sync/internal/remotefs"
	"remote-sync/internal/scheduler"
	"remote-sync/internal/util"
)

var uploadForce bool

var uploadCmd = &cobra.Command{
	Use:   "upload",
	Short: "Upload the workspace tree to the remote endpoint",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runUpload(cmd.Context())
	},
}

func init() {
	uploadCmd.Flags().BoolVarP(&uploadForce, "force", "f", false, "upload files even if the ledger says they are unchanged")
	rootCmd.AddCommand(uploadCmd)
}

func runUpload(ctx context.Context) error {
	sess, err := newSession(profileFlag)
	if err != nil {
		return err
	}
	defer sess.Close()
	cfg := sess.cfg

	remote, err := remotefs.New(ctx, cfg, sess.pool)
	if err != nil {
		return err
	}
	defer remote.Close()

	handle := sess.svc.CreateTransferScheduler(cfg.Concurrency)
	skipped := 0

	walkErr := filepath.WalkDir(cfg.LocalPath, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if skipLocal(d.Name()) || (cfg.Ignore != nil && cfg.Ignore(p)) {
				return filepath.SkipDir
			}
			return nil
		}
		if skipLocal(d.Name()) {
			return nil
		}
		if cfg.Ignore != nil && cfg.Ignore(p) {
			skipped++
			return nil
		}
		if !uploadForce && sess.ledger != nil {
			if needs, lerr := sess.ledger.NeedsSync(p); lerr == nil && !needs {
				skipped++
				return nil
			}
		}

		rel, rerr := filepath.Rel(cfg.LocalPath, p)
		if rerr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		local := p

		handle.Add(scheduler.NewTask(scheduler.KindUpload, local, rel, func(ctx context.Context) error {
			f, err := os.Open(local)
			if err != nil {
				return err
			}
			defer f.Close()
			stat, err := f.Stat()
			if err != nil {
				return err
			}
			return remote.Write(ctx, rel, f, stat.Size())
		}))
		return nil
	})
	if walkErr != nil {
		return walkErr
	}

	var failed int64
	_ = sess.bus.Subscribe(events.EventAfterTransfer, func(err error, t *scheduler.Task) {
		if err != nil && !errors.Is(err, scheduler.ErrCancelled) {
			atomic.AddInt64(&failed, 1)
		}
	})

	total := handle.Size()
	if total == 0 {
		util.Default.Println("ℹ️  nothing to upload")
		return nil
	}
	if err := handle.Run(ctx); err != nil {
		return err
	}
	f := int(atomic.LoadInt64(&failed))
	summarize(total-f, skipped, f)
	return nil
}
