package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"mediamanifest/pkg/types"
)

var (
	ErrNotFound = errors.New("object not found")
)

// Item 是一次目录列举返回的条目，只在爬取过程中短暂存在
// 各后端的原始响应格式差异都在 adapter 内部抹平，上层只看到这一种形状
type Item struct {
	Name  string
	IsDir bool
}

// Lister 列举某个路径下的直接子项
// 目录存在但为空时返回空切片；路径本身不存在且后端能分辨时返回 ErrNotFound
type Lister interface {
	List(ctx context.Context, path types.RemotePath) ([]Item, error)
}

// Publisher 把一段字节写到指定路径
// 必须幂等：同样的 path + data 写多少次，远端状态都一样
type Publisher interface {
	Put(ctx context.Context, path types.RemotePath, data []byte, contentType string) error
}

// Getter 读取指定路径的原始字节
type Getter interface {
	// 注意：这里返回的是 io.ReadCloser 而不是 []byte，调用方负责 Close
	Get(ctx context.Context, path types.RemotePath) (io.ReadCloser, error)
}

// Store 是一个完整的后端：可列举、可读、可写
// Implementations can be local disk, S3-compatible storage, or Bunny Storage.
type Store interface {
	Lister
	Publisher
	Getter
}

// ReadAll 读取整个对象
func ReadAll(ctx context.Context, g Getter, path types.RemotePath) ([]byte, error) {
	rc, err := g.Get(ctx, path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}
