package publish

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"reel/internal/fileutil"
)

// LocalFS copies artifacts under a root directory.
type LocalFS struct {
	root string
}

var _ Publisher = (*LocalFS)(nil)

func NewLocalFS(root string) *LocalFS {
	return &LocalFS{root: root}
}

func (l *LocalFS) Provider() string { return "localfs" }

// Publish copies path to <root>/<base name>. Directories are copied file by
// file; the returned checksum covers single files only.
func (l *LocalFS) Publish(ctx context.Context, path string) (Receipt, error) {
	if strings.TrimSpace(l.root) == "" {
		return Receipt{}, fmt.Errorf("localfs: root is not configured")
	}
	info, err := os.Stat(path)
	if err != nil {
		return Receipt{}, fmt.Errorf("localfs: stat artifact: %w", err)
	}
	dst := filepath.Join(l.root, filepath.Base(path))
	if err := os.MkdirAll(l.root, 0o755); err != nil {
		return Receipt{}, err
	}

	if !info.IsDir() {
		sum, err := fileutil.CopyFileVerified(path, dst)
		if err != nil {
			return Receipt{}, fmt.Errorf("localfs: copy artifact: %w", err)
		}
		return Receipt{Provider: l.Provider(), Location: dst, Size: info.Size(), Checksum: sum}, nil
	}

	var total int64
	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(path, p)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		if _, err := fileutil.CopyFileVerified(p, target); err != nil {
			return err
		}
		if fi, err := d.Info(); err == nil {
			total += fi.Size()
		}
		return nil
	})
	if err != nil {
		return Receipt{}, fmt.Errorf("localfs: copy sequence: %w", err)
	}
	return Receipt{Provider: l.Provider(), Location: dst, Size: total}, nil
}
