package runlock

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// FileLocker 基于本地文件锁 (flock)，适用于同一台机器上的多个进程
// 锁文件只有一个，name 仅用于报错信息
type FileLocker struct {
	path string
}

func NewFileLocker(path string) *FileLocker {
	return &FileLocker{path: path}
}

func (l *FileLocker) Lock(ctx context.Context, name string) (func() error, error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create lock dir: %w", err)
	}

	fl := flock.New(l.path)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", l.path, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s (%s)", ErrLocked, name, l.path)
	}
	return fl.Unlock, nil
}
