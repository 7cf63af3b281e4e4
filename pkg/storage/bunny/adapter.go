package bunny

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"mediamanifest/pkg/storage"
	"mediamanifest/pkg/types"
)

const DefaultEndpoint = "https://storage.bunnycdn.com"

// Config 用于初始化 Adapter
type Config struct {
	Zone     string // Storage Zone 名字，例如 "foto360"
	APIKey   string // Storage Zone 的读写 AccessKey
	Endpoint string // 默认 DefaultEndpoint，区域节点可覆盖 (如 https://ny.storage.bunnycdn.com)

	HTTPClient *http.Client
}

// Adapter 通过 Bunny Storage HTTP API 实现 storage.Store
type Adapter struct {
	zone     string
	apiKey   string
	endpoint string
	client   *http.Client
}

func NewAdapter(cfg Config) (*Adapter, error) {
	if cfg.Zone == "" || cfg.APIKey == "" {
		return nil, fmt.Errorf("bunny storage zone and api key are required")
	}
	endpoint := strings.TrimRight(cfg.Endpoint, "/")
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &Adapter{
		zone:     cfg.Zone,
		apiKey:   cfg.APIKey,
		endpoint: endpoint,
		client:   client,
	}, nil
}

// objectURL 拼接对象地址
// 每一段单独转义，保留路径中的 "/"
func (a *Adapter) objectURL(path types.RemotePath, dir bool) string {
	segs := path.Segments()
	escaped := make([]string, len(segs))
	for i, s := range segs {
		escaped[i] = url.PathEscape(s)
	}
	u := a.endpoint + "/" + url.PathEscape(a.zone) + "/" + strings.Join(escaped, "/")
	// 列举目录时必须带结尾斜杠，否则部分节点会返回 404
	if dir && len(segs) > 0 {
		u += "/"
	}
	return u
}

func (a *Adapter) do(ctx context.Context, method, u string, body []byte, contentType string) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("AccessKey", a.apiKey)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if method == http.MethodGet {
		req.Header.Set("Accept", "application/json")
	}
	return a.client.Do(req)
}

// statusError 带上响应体前 256 字节，方便排查鉴权/配额问题
func statusError(op string, resp *http.Response) error {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
	return fmt.Errorf("bunny %s failed: HTTP %d: %s", op, resp.StatusCode, strings.TrimSpace(string(snippet)))
}

func (a *Adapter) List(ctx context.Context, path types.RemotePath) ([]storage.Item, error) {
	resp, err := a.do(ctx, http.MethodGet, a.objectURL(path, true), nil, "")
	if err != nil {
		return nil, fmt.Errorf("bunny list %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, storage.ErrNotFound
	}
	if resp.StatusCode/100 != 2 {
		return nil, statusError("list "+path.String(), resp)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("bunny list %s: %w", path, err)
	}
	return normalizeListing(body)
}

func (a *Adapter) Put(ctx context.Context, path types.RemotePath, data []byte, contentType string) error {
	resp, err := a.do(ctx, http.MethodPut, a.objectURL(path, false), data, contentType)
	if err != nil {
		return fmt.Errorf("bunny put %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return statusError("put "+path.String(), resp)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (a *Adapter) Get(ctx context.Context, path types.RemotePath) (io.ReadCloser, error) {
	resp, err := a.do(ctx, http.MethodGet, a.objectURL(path, false), nil, "")
	if err != nil {
		return nil, fmt.Errorf("bunny get %s: %w", path, err)
	}
	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil, storage.ErrNotFound
	}
	if resp.StatusCode/100 != 2 {
		defer resp.Body.Close()
		return nil, statusError("get "+path.String(), resp)
	}
	return resp.Body, nil
}
