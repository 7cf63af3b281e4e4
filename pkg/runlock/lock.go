package runlock

import (
	"context"
	"errors"
)

// ErrLocked 表示另一个进程正在发布同一个 Manifest
var ErrLocked = errors.New("another run holds the manifest lock")

// Locker 保证同一时刻只有一个写者在发布某个 Manifest
// 拿不到锁时立即返回 ErrLocked，不排队
type Locker interface {
	Lock(ctx context.Context, name string) (unlock func() error, err error)
}

// Noop 不做任何互斥，用于单机手动执行的场景
type Noop struct{}

func (Noop) Lock(context.Context, string) (func() error, error) {
	return func() error { return nil }, nil
}
