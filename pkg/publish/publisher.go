package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"mediamanifest/pkg/cdn"
	"mediamanifest/pkg/manifest"
	"mediamanifest/pkg/storage"
	"mediamanifest/pkg/types"
)

const ContentType = "application/json; charset=utf-8"

// Backend 是发布需要的最小能力：写入 + 回读
type Backend interface {
	storage.Publisher
	storage.Getter
}

// Result 描述一次发布的结果
type Result struct {
	Fingerprint types.Fingerprint
	Bytes       int
	// Purged 为 true 表示 CDN 缓存已失效
	Purged bool
	// PurgeErr 不为 nil 时发布本身仍然成功，只是边缘节点可能还在返回旧内容
	PurgeErr error
}

// Publisher 负责 "写入 -> 回读 -> 校验 -> 刷 CDN" 这一整段流程
type Publisher struct {
	backend  Backend
	purger   cdn.Purger
	purgeURL string
	logger   *slog.Logger
}

// New 创建 Publisher
// purger 为 nil 或 purgeURL 为空时跳过 CDN 刷新
func New(backend Backend, purger cdn.Purger, purgeURL string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{backend: backend, purger: purger, purgeURL: purgeURL, logger: logger}
}

// Write 只做写入，不校验
func (p *Publisher) Write(ctx context.Context, path types.RemotePath, data []byte) error {
	if err := p.backend.Put(ctx, path, data, ContentType); err != nil {
		return fmt.Errorf("failed to publish %s: %w", path, err)
	}
	return nil
}

// Verify 回读远端内容并和本地字节比较指纹
// 不一致时返回 *manifest.PublishDriftError
func (p *Publisher) Verify(ctx context.Context, path types.RemotePath, local []byte) (types.Fingerprint, error) {
	remote, err := storage.ReadAll(ctx, p.backend, path)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			// 刚写完就读不到，同样是漂移
			fp, fpErr := manifest.Fingerprint(local)
			if fpErr != nil {
				return "", fpErr
			}
			return "", &manifest.PublishDriftError{Local: fp}
		}
		return "", fmt.Errorf("failed to read back %s: %w", path, err)
	}
	if err := manifest.Verify(local, remote); err != nil {
		return "", err
	}
	return manifest.Fingerprint(local)
}

// Purge 刷新 CDN 缓存；未配置时什么都不做
// 返回值: 是否真正执行了刷新
func (p *Publisher) Purge(ctx context.Context) (bool, error) {
	if p.purger == nil || p.purgeURL == "" {
		return false, nil
	}
	start := time.Now()
	if err := p.purger.Purge(ctx, p.purgeURL); err != nil {
		p.logger.Warn("cdn purge failed",
			slog.String("url", p.purgeURL),
			slog.String("err", err.Error()),
		)
		return false, err
	}
	p.logger.Info("cdn purged", slog.String("url", p.purgeURL), slog.Duration("dur", time.Since(start)))
	return true, nil
}

// Publish 执行完整流程
// 写入或校验失败返回 error；CDN 刷新失败只记录在 Result.PurgeErr
func (p *Publisher) Publish(ctx context.Context, path types.RemotePath, data []byte) (*Result, error) {
	if err := p.Write(ctx, path, data); err != nil {
		return nil, err
	}
	fp, err := p.Verify(ctx, path, data)
	if err != nil {
		return nil, err
	}

	res := &Result{Fingerprint: fp, Bytes: len(data)}
	res.Purged, res.PurgeErr = p.Purge(ctx)
	return res, nil
}
