package cmd

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rjeczalik/notify"
	"github.com/spf13/cobra"

	"remote-sync/internal/remotefs"
	"remote-sync/internal/scheduler"
	"remote-sync/internal/util"
	"remote-sync/internal/watcher"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the workspace and mirror changes to the remote",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWatch(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(ctx context.Context) error {
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

	reg := watcher.NewRegistry()
	reg.OnEvent = func(ev watcher.Event) {
		rel, rerr := filepath.Rel(cfg.LocalPath, ev.Path)
		if rerr != nil || rel == "." || strings.HasPrefix(rel, "..") {
			return
		}
		first := rel
		if i := strings.IndexByte(rel, filepath.Separator); i >= 0 {
			first = rel[:i]
		}
		if skipLocal(first) {
			return
		}
		if cfg.Ignore != nil && cfg.Ignore(ev.Path) {
			return
		}
		relSlash := filepath.ToSlash(rel)

		switch {
		case ev.Op&(notify.Create|notify.Write) != 0 && cfg.Watcher.AutoUpload:
			info, serr := os.Stat(ev.Path)
			if serr != nil || info.IsDir() {
				return
			}
			runWatchTask(ctx, sess, scheduler.NewTask(scheduler.KindUpload, ev.Path, relSlash, func(tctx context.Context) error {
				f, oerr := os.Open(ev.Path)
				if oerr != nil {
					return oerr
				}
				defer f.Close()
				return remote.Write(tctx, relSlash, f, info.Size())
			}))
		case ev.Op&(notify.Remove|notify.Rename) != 0 && cfg.Watcher.AutoDelete:
			runWatchTask(ctx, sess, scheduler.NewTask(scheduler.KindDelete, ev.Path, relSlash, func(tctx context.Context) error {
				return remote.Delete(tctx, relSlash)
			}))
		}
	}

	if err := reg.Create(cfg.LocalPath, cfg.Watcher); err != nil {
		return err
	}
	defer reg.DisposeAll()

	util.Default.Printf("👀 watching %s (autoUpload=%v autoDelete=%v)\n",
		cfg.LocalPath, cfg.Watcher.AutoUpload, cfg.Watcher.AutoDelete)

	<-ctx.Done()
	util.Default.Println("⏹ watch stopped")
	return nil
}

// runWatchTask schedules one task and waits for it so events are
// mirrored in arrival order.
func runWatchTask(ctx context.Context, sess *session, t *scheduler.Task) {
	handle := sess.svc.CreateTransferScheduler(1)
	handle.Add(t)
	if err := handle.Run(ctx); err != nil {
		util.Default.Printf("⚠️  %v\n", err)
	}
}
