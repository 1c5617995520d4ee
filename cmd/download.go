package cmd

import (
	"context"
	"errors"
	"path"
	"sync/atomic"

	"github.com/spf13/cobra"

	"remote-sync/internal/events"
	"remote-sync/internal/remotefs"
	"remote-sync/internal/scheduler"
	"remote-sync/internal/util"
)

var downloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Download the remote tree into the workspace",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDownload(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(downloadCmd)
}

func runDownload(ctx context.Context) error {
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

	local := remotefs.NewLocal(cfg.LocalPath, cfg.UseTempFile)
	handle := sess.svc.CreateTransferScheduler(cfg.Concurrency)
	skipped := 0

	var walk func(dir string) error
	walk = func(dir string) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		entries, err := remote.List(ctx, dir)
		if err != nil {
			return err
		}
		for _, e := range entries {
			rel := path.Join(dir, e.Name)
			if e.IsDir {
				if err := walk(rel); err != nil {
					return err
				}
				continue
			}
			if cfg.Ignore != nil && cfg.Ignore(path.Join(cfg.RemotePath, rel)) {
				skipped++
				continue
			}
			relPath := rel
			handle.Add(scheduler.NewTask(scheduler.KindDownload, "", relPath, func(ctx context.Context) error {
				r, err := remote.Read(ctx, relPath)
				if err != nil {
					return err
				}
				defer r.Close()
				return local.Write(ctx, relPath, r, -1)
			}))
		}
		return nil
	}
	if err := walk(""); err != nil {
		return err
	}

	var failed int64
	_ = sess.bus.Subscribe(events.EventAfterTransfer, func(err error, t *scheduler.Task) {
		if err != nil && !errors.Is(err, scheduler.ErrCancelled) {
			atomic.AddInt64(&failed, 1)
		}
	})

	total := handle.Size()
	if total == 0 {
		util.Default.Println("ℹ️  nothing to download")
		return nil
	}
	if err := handle.Run(ctx); err != nil {
		return err
	}
	f := int(atomic.LoadInt64(&failed))
	summarize(total-f, skipped, f)
	return nil
}
