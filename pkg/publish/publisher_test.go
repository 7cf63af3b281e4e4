package publish

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"mediamanifest/pkg/manifest"
	"mediamanifest/pkg/storage"
	"mediamanifest/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memBackend 是内存里的后端，mutate 用来模拟 "写进去的和读出来的不一样"
type memBackend struct {
	mu      sync.Mutex
	objects map[types.RemotePath][]byte
	ctypes  map[types.RemotePath]string
	putErr  error
	mutate  func([]byte) []byte
	lose    bool
}

func newMem() *memBackend {
	return &memBackend{objects: map[types.RemotePath][]byte{}, ctypes: map[types.RemotePath]string{}}
}

func (m *memBackend) Put(ctx context.Context, path types.RemotePath, data []byte, contentType string) error {
	if m.putErr != nil {
		return m.putErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lose {
		return nil
	}
	stored := append([]byte(nil), data...)
	if m.mutate != nil {
		stored = m.mutate(stored)
	}
	m.objects[path] = stored
	m.ctypes[path] = contentType
	return nil
}

func (m *memBackend) Get(ctx context.Context, path types.RemotePath) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[path]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

type spyPurger struct {
	calls []string
	err   error
}

func (s *spyPurger) Purge(ctx context.Context, target string) error {
	s.calls = append(s.calls, target)
	return s.err
}

func sample(t *testing.T) []byte {
	m := manifest.New()
	m.Root.Children = append(m.Root.Children, manifest.NewNode("Alpha"))
	m.Root.Children[0].Files = []manifest.FileEntry{{Name: "x.png"}}
	data, err := manifest.Serialize(m)
	require.NoError(t, err)
	return data
}

func TestPublish_Success(t *testing.T) {
	be := newMem()
	purger := &spyPurger{}
	p := New(be, purger, "https://cdn.example.com/R/manifest.json", nil)

	data := sample(t)
	res, err := p.Publish(context.Background(), "R/manifest.json", data)
	require.NoError(t, err)

	want, err := manifest.Fingerprint(data)
	require.NoError(t, err)
	assert.Equal(t, want, res.Fingerprint)
	assert.Equal(t, len(data), res.Bytes)
	assert.True(t, res.Purged)
	assert.NoError(t, res.PurgeErr)
	assert.Equal(t, []string{"https://cdn.example.com/R/manifest.json"}, purger.calls)
	assert.Equal(t, ContentType, be.ctypes["R/manifest.json"])
}

func TestPublish_ReformattedRemoteStillVerifies(t *testing.T) {
	be := newMem()
	// 某些后端会重新排版 JSON，语义不变就不算漂移
	be.mutate = func(b []byte) []byte { return bytes.ReplaceAll(b, []byte("  "), []byte("\t")) }

	_, err := New(be, nil, "", nil).Publish(context.Background(), "m.json", sample(t))
	assert.NoError(t, err)
}

func TestPublish_Drift(t *testing.T) {
	be := newMem()
	be.mutate = func(b []byte) []byte { return bytes.Replace(b, []byte("x.png"), []byte("y.png"), 1) }

	_, err := New(be, nil, "", nil).Publish(context.Background(), "m.json", sample(t))
	var drift *manifest.PublishDriftError
	require.ErrorAs(t, err, &drift)
	assert.NotEqual(t, drift.Local, drift.Remote)
	assert.False(t, drift.Remote.IsZero())
}

func TestPublish_LostWriteIsDrift(t *testing.T) {
	be := newMem()
	be.lose = true

	_, err := New(be, nil, "", nil).Publish(context.Background(), "m.json", sample(t))
	var drift *manifest.PublishDriftError
	require.ErrorAs(t, err, &drift)
	assert.True(t, drift.Remote.IsZero())
}

func TestPublish_PutFailure(t *testing.T) {
	be := newMem()
	be.putErr = errors.New("403 forbidden")
	purger := &spyPurger{}

	_, err := New(be, purger, "https://cdn/x", nil).Publish(context.Background(), "m.json", sample(t))
	assert.ErrorIs(t, err, be.putErr)
	assert.Empty(t, purger.calls, "写入失败不应刷新 CDN")
}

func TestPublish_PurgeFailureIsNotFatal(t *testing.T) {
	purger := &spyPurger{err: errors.New("HTTP 500")}

	res, err := New(newMem(), purger, "https://cdn/x", nil).Publish(context.Background(), "m.json", sample(t))
	require.NoError(t, err)
	assert.False(t, res.Purged)
	assert.ErrorIs(t, res.PurgeErr, purger.err)
}

func TestPublish_NoPurgerConfigured(t *testing.T) {
	res, err := New(newMem(), nil, "https://cdn/x", nil).Publish(context.Background(), "m.json", sample(t))
	require.NoError(t, err)
	assert.False(t, res.Purged)
	assert.NoError(t, res.PurgeErr)
}
