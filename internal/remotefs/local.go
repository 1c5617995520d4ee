package remotefs

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// LocalFS mirrors files into a directory on the local machine. Used for
// "local" protocol endpoints and as the workspace-side handle.
type LocalFS struct {
	root        string
	useTempFile bool
}

// NewLocal creates a LocalFS rooted at root. With useTempFile set,
// writes land in a temporary sibling first and are renamed into place,
// so readers never observe a half-written file.
func NewLocal(root string, useTempFile bool) *LocalFS {
	return &LocalFS{root: root, useTempFile: useTempFile}
}

func (l *LocalFS) abs(p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(l.root, filepath.FromSlash(p))
}

func (l *LocalFS) List(ctx context.Context, dir string) ([]FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(l.abs(dir))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}
	infos := make([]FileInfo, 0, len(entries))
	for _, e := range entries {
		fi, err := e.Info()
		if err != nil {
			continue
		}
		infos = append(infos, FileInfo{
			Name:    e.Name(),
			Size:    fi.Size(),
			ModTime: fi.ModTime(),
			IsDir:   e.IsDir(),
		})
	}
	return infos, nil
}

func (l *LocalFS) Read(ctx context.Context, path string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(l.abs(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return f, nil
}

func (l *LocalFS) Write(ctx context.Context, path string, r io.Reader, size int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	target := l.abs(path)
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("failed to create parent directories for %s: %w", path, err)
	}

	dest := target
	if l.useTempFile {
		dest = target + ".new"
	}
	f, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(dest)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	if l.useTempFile {
		if err := os.Rename(dest, target); err != nil {
			os.Remove(dest)
			return fmt.Errorf("failed to move %s into place: %w", path, err)
		}
	}
	return nil
}

func (l *LocalFS) Delete(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.RemoveAll(l.abs(path)); err != nil {
		return fmt.Errorf("failed to delete %s: %w", path, err)
	}
	return nil
}

func (l *LocalFS) Close() error {
	return nil
}
