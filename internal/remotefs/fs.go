package remotefs

import (
	"context"
	"fmt"
	"io"
	"time"

	"remote-sync/internal/config"
)

// FileInfo is the minimal metadata the sync engine needs about an entry.
type FileInfo struct {
	Name    string
	Size    int64
	ModTime time.Time
	IsDir   bool
}

// FS is the collaborator contract for a remote or local file tree. The
// engine supplies a resolved ServiceConfig and an ignore predicate; the
// FS performs the actual I/O. Implementations must observe ctx between
// operations.
type FS interface {
	// List returns the entries of dir, non-recursively.
	List(ctx context.Context, dir string) ([]FileInfo, error)

	// Read opens path for reading. The caller closes the reader.
	Read(ctx context.Context, path string) (io.ReadCloser, error)

	// Write stores size bytes from r at path, creating parent
	// directories as needed.
	Write(ctx context.Context, path string, r io.Reader, size int64) error

	// Delete removes path (recursively for directories).
	Delete(ctx context.Context, path string) error

	// Close releases any resources held by this handle. Pooled
	// connections stay open for other handles.
	Close() error
}

// New produces an FS handle for a resolved config. SFTP-backed configs
// draw their SSH connection from the pool; local configs mirror into the
// remote path on the same machine.
func New(ctx context.Context, cfg *config.ServiceConfig, pool *Pool) (FS, error) {
	switch cfg.Protocol {
	case config.ProtocolLocal:
		return NewLocal(cfg.RemotePath, cfg.UseTempFile), nil
	case config.ProtocolSFTP:
		if pool == nil {
			return nil, fmt.Errorf("remotefs: sftp requires a connection pool")
		}
		client, err := pool.Get(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return NewSSH(client, cfg.RemotePath), nil
	default:
		return nil, fmt.Errorf("remotefs: no driver for protocol %q", cfg.Protocol)
	}
}
