package pipeline

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"mediamanifest/pkg/ignore"
	"mediamanifest/pkg/meta"
	"mediamanifest/pkg/storage"
	"mediamanifest/pkg/types"

	"github.com/stretchr/testify/require"
)

// mkfiles 在 root 下创建空文件 (自动创建父目录)
func mkfiles(t *testing.T, root string, paths ...string) {
	t.Helper()
	for _, p := range paths {
		full := filepath.Join(root, filepath.FromSlash(p))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, nil, 0o644))
	}
}

func mustMatcher(t *testing.T) *ignore.Matcher {
	t.Helper()
	m, err := ignore.NewMatcher(DefaultManifestName, nil, "")
	require.NoError(t, err)
	return m
}

// spyStore 包装一个真实后端，统计写入次数并允许注入故障
type spyStore struct {
	storage.Store

	mu      sync.Mutex
	puts    int
	getErr  error
	listErr map[string]error
	// corrupt 在写入时篡改内容，用来模拟发布漂移
	corrupt bool
}

func (s *spyStore) List(ctx context.Context, path types.RemotePath) ([]storage.Item, error) {
	if err, ok := s.listErr[path.String()]; ok {
		return nil, err
	}
	return s.Store.List(ctx, path)
}

func (s *spyStore) Put(ctx context.Context, path types.RemotePath, data []byte, contentType string) error {
	s.mu.Lock()
	s.puts++
	s.mu.Unlock()
	if s.corrupt {
		data = bytes.Replace(data, []byte("x.png"), []byte("X.png"), 1)
	}
	return s.Store.Put(ctx, path, data, contentType)
}

func (s *spyStore) Get(ctx context.Context, path types.RemotePath) (io.ReadCloser, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	return s.Store.Get(ctx, path)
}

func (s *spyStore) putCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.puts
}

// memRecorder 收集运行记录
type memRecorder struct {
	runs []*meta.RunRecord
}

func (m *memRecorder) RecordRun(ctx context.Context, rec *meta.RunRecord) error {
	m.runs = append(m.runs, rec)
	return nil
}

type spyPurger struct {
	calls int
	err   error
}

func (s *spyPurger) Purge(ctx context.Context, target string) error {
	s.calls++
	return s.err
}
