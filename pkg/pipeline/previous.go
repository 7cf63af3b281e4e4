package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"

	"mediamanifest/pkg/storage"
	"mediamanifest/pkg/types"
)

const (
	// SourceRemote 从后端读取当前已发布的 Manifest (默认)
	SourceRemote = "remote"
	// SourceNone 视为首次运行
	SourceNone = "none"
)

// loadPrevious 读取上一次发布的 Manifest 原始字节
// 返回 nil, nil 表示不存在 (首次运行)；传输层错误原样返回，由调用方中止运行
func loadPrevious(ctx context.Context, source string, getter storage.Getter, manifestPath types.RemotePath) ([]byte, error) {
	switch source {
	case SourceNone:
		return nil, nil
	case "", SourceRemote:
		if getter == nil {
			return nil, fmt.Errorf("no backend configured to read previous manifest")
		}
		data, err := storage.ReadAll(ctx, getter, manifestPath)
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load previous manifest %s: %w", manifestPath, err)
		}
		return data, nil
	default:
		// 其余值一律当作本地文件路径
		data, err := os.ReadFile(source)
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load previous manifest %s: %w", source, err)
		}
		return data, nil
	}
}
