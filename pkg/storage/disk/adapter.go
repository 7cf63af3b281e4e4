package disk

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"mediamanifest/pkg/storage"
	"mediamanifest/pkg/types"
)

// Adapter 把本地目录当作后端 (实现了 storage.Store 接口)
// 适合本地预览、测试，以及把媒体库挂载在本机的部署方式
type Adapter struct {
	rootPath string // 比如: /srv/media
}

// NewAdapter 创建一个新的磁盘存储适配器
func NewAdapter(root string) (*Adapter, error) {
	// 确保根目录存在
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create root storage dir: %w", err)
	}
	return &Adapter{rootPath: root}, nil
}

// layout 返回逻辑路径对应的物理路径
// 拒绝 ".." 段，保证不会逃出 rootPath
func (s *Adapter) layout(path types.RemotePath) (string, error) {
	segs := path.Segments()
	if slices.Contains(segs, "..") {
		return "", fmt.Errorf("invalid path %q", path)
	}
	return filepath.Join(append([]string{s.rootPath}, segs...)...), nil
}

func (s *Adapter) List(ctx context.Context, path types.RemotePath) ([]storage.Item, error) {
	target, err := s.layout(path)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(target)
	if os.IsNotExist(err) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", path, err)
	}

	items := make([]storage.Item, 0, len(entries))
	for _, e := range entries {
		// 跳过 Put 过程中残留的临时文件
		if !e.IsDir() && isTempName(e.Name()) {
			continue
		}
		items = append(items, storage.Item{Name: e.Name(), IsDir: e.IsDir()})
	}
	return items, nil
}

const tempPrefix = ".mm-temp-"

func isTempName(name string) bool {
	return strings.HasPrefix(name, tempPrefix)
}

func (s *Adapter) Put(ctx context.Context, path types.RemotePath, data []byte, contentType string) error {
	targetPath, err := s.layout(path)
	if err != nil {
		return err
	}

	// 1. 准备目录
	dir := filepath.Dir(targetPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	// 2. 原子写入 (Atomic Write)
	// 技巧：先写到一个临时文件，然后 Rename。
	// 这样读者要么看到旧文件，要么看到完整的新文件。
	tempFile, err := os.CreateTemp(dir, tempPrefix+"*")
	if err != nil {
		return err
	}
	// 确保临时文件会被清理（如果成功 Rename 了，这个删除会失效，或者无害）
	defer os.Remove(tempFile.Name())

	if _, err := tempFile.Write(data); err != nil {
		tempFile.Close()
		return err
	}
	if err := tempFile.Sync(); err != nil {
		tempFile.Close()
		return err
	}
	tempFile.Close() // 必须先关闭才能 Rename

	// 3. 移动到最终位置
	if err := os.Rename(tempFile.Name(), targetPath); err != nil {
		return err
	}

	return nil
}

func (s *Adapter) Get(ctx context.Context, path types.RemotePath) (io.ReadCloser, error) {
	targetPath, err := s.layout(path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(targetPath)
	if os.IsNotExist(err) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}
