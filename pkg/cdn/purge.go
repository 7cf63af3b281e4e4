package cdn

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const DefaultEndpoint = "https://api.bunny.net"

var ErrNoAPIKey = errors.New("cdn purge api key is required")

// Purger 让 CDN 边缘节点丢弃某个地址的缓存
type Purger interface {
	Purge(ctx context.Context, target string) error
}

type Config struct {
	APIKey     string
	Endpoint   string
	HTTPClient *http.Client
}

// BunnyPurger 调用 Bunny 的 purge API
type BunnyPurger struct {
	apiKey   string
	endpoint string
	client   *http.Client
}

func NewBunnyPurger(cfg Config) (*BunnyPurger, error) {
	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	endpoint := strings.TrimRight(cfg.Endpoint, "/")
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &BunnyPurger{apiKey: cfg.APIKey, endpoint: endpoint, client: client}, nil
}

// Purge 是同步的：返回 nil 时边缘缓存已失效
func (p *BunnyPurger) Purge(ctx context.Context, target string) error {
	q := url.Values{}
	q.Set("url", target)
	q.Set("async", "false")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint+"/purge?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("AccessKey", p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("purge %s: %w", target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("purge %s: HTTP %d: %s", target, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	// 读完 body 以便连接复用
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
