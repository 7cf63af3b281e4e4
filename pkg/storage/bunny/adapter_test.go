package bunny

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"mediamanifest/pkg/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBunny 是一个极简的 Bunny Storage API 模拟
type fakeBunny struct {
	mu       sync.Mutex
	objects  map[string][]byte // key: 解码后的完整路径 "/zone/Root/x.png"
	listings map[string]string // key: 目录路径 "/zone/Root/"
	paths    []string          // 记录收到的原始 (转义) 路径
}

func newFakeBunny() *fakeBunny {
	return &fakeBunny{objects: map[string][]byte{}, listings: map[string]string{}}
}

func (f *fakeBunny) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paths = append(f.paths, r.URL.EscapedPath())

	if r.Header.Get("AccessKey") != "secret" {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"HttpCode":401,"Message":"Unauthorized"}`)
		return
	}

	switch r.Method {
	case http.MethodGet:
		if strings.HasSuffix(r.URL.Path, "/") {
			body, ok := f.listings[r.URL.Path]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			_, _ = io.WriteString(w, body)
			return
		}
		data, ok := f.objects[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write(data)
	case http.MethodPut:
		data, _ := io.ReadAll(r.Body)
		f.objects[r.URL.Path] = data
		w.WriteHeader(http.StatusCreated)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newTestAdapter(t *testing.T, fake *fakeBunny, key string) *Adapter {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	a, err := NewAdapter(Config{Zone: "zone", APIKey: key, Endpoint: srv.URL + "/"})
	require.NoError(t, err)
	return a
}

func TestNewAdapter_Validation(t *testing.T) {
	_, err := NewAdapter(Config{Zone: "zone"})
	assert.Error(t, err)

	a, err := NewAdapter(Config{Zone: "zone", APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, DefaultEndpoint, a.endpoint)
}

func TestAdapter_List(t *testing.T) {
	fake := newFakeBunny()
	fake.listings["/zone/Root/"] = `[
		{"ObjectName": "Alpha", "IsDirectory": true},
		{"ObjectName": "x.png", "IsDirectory": false},
		{"ObjectName": "", "IsDirectory": false}
	]`
	fake.listings["/zone/Root/Vila Viatges/"] = `{"Items": [
		{"Name": "Sub", "Type": "Directory"},
		{"name": "y.mp3", "isDirectory": false}
	]}`
	fake.listings["/zone/Root/Bad/"] = `"nope"`
	a := newTestAdapter(t, fake, "secret")
	ctx := context.Background()

	t.Run("Array response", func(t *testing.T) {
		items, err := a.List(ctx, "Root")
		require.NoError(t, err)
		assert.Equal(t, []storage.Item{
			{Name: "Alpha", IsDir: true},
			{Name: "x.png"},
			{Name: ""},
		}, items)
	})

	t.Run("Wrapped response and escaping", func(t *testing.T) {
		items, err := a.List(ctx, "Root/Vila Viatges")
		require.NoError(t, err)
		assert.Equal(t, []storage.Item{
			{Name: "Sub", IsDir: true},
			{Name: "y.mp3"},
		}, items)
		assert.Contains(t, fake.paths, "/zone/Root/Vila%20Viatges/")
	})

	t.Run("Not found", func(t *testing.T) {
		_, err := a.List(ctx, "Missing")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("Unrecognized body", func(t *testing.T) {
		_, err := a.List(ctx, "Root/Bad")
		assert.Error(t, err)
	})
}

func TestAdapter_Unauthorized(t *testing.T) {
	a := newTestAdapter(t, newFakeBunny(), "wrong")
	_, err := a.List(context.Background(), "Root")
	require.Error(t, err)
	assert.NotErrorIs(t, err, storage.ErrNotFound)
	assert.Contains(t, err.Error(), "HTTP 401")
}

func TestAdapter_PutGet(t *testing.T) {
	fake := newFakeBunny()
	a := newTestAdapter(t, fake, "secret")
	ctx := context.Background()

	require.NoError(t, a.Put(ctx, "Root/manifest.json", []byte(`{"version":0}`), "application/json"))

	data, err := storage.ReadAll(ctx, a, "Root/manifest.json")
	require.NoError(t, err)
	assert.Equal(t, `{"version":0}`, string(data))

	_, err = a.Get(ctx, "Root/other.json")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestNormalizeListing_Empty(t *testing.T) {
	items, err := normalizeListing([]byte(`[]`))
	require.NoError(t, err)
	assert.Empty(t, items)

	items, err = normalizeListing([]byte(`{}`))
	require.NoError(t, err)
	assert.Empty(t, items)
}
