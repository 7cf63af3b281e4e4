// pkg/app/app.go
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"mediamanifest/pkg/cdn"
	"mediamanifest/pkg/crawler"
	"mediamanifest/pkg/ignore"
	"mediamanifest/pkg/manifest"
	"mediamanifest/pkg/meta"
	"mediamanifest/pkg/pinsync"
	"mediamanifest/pkg/pipeline"
	"mediamanifest/pkg/publish"
	"mediamanifest/pkg/runlock"
	"mediamanifest/pkg/storage"
	"mediamanifest/pkg/storage/bunny"
	"mediamanifest/pkg/storage/disk"
	"mediamanifest/pkg/storage/s3"
	"mediamanifest/pkg/types"

	"github.com/spf13/viper"
)

// IgnoreFile 是爬取根目录之外的本地排除规则文件
const IgnoreFile = ".mmignore"

// App 是整个应用程序的依赖容器 (Dependency Container)
// 它持有所有“单例”服务，CLI 和 server 共用
type App struct {
	Store      storage.Store
	Publisher  *publish.Publisher
	Locker     runlock.Locker
	Repository *meta.Repository // 未配置数据库时为 nil
	Sorter     manifest.Sorter
	Logger     *slog.Logger

	// PipelineConfig 是从配置中解析出来的运行参数
	PipelineConfig pipeline.Config

	closers []io.Closer
}

// NewApp 是工厂函数，负责组装这一台机器
// 它遵循 Viper 的配置，但不知道具体的 CLI 命令
func NewApp(ctx context.Context) (*App, error) {
	logger := NewLogger(os.Stderr)

	// 1. 运行参数
	pcfg, err := pipelineConfig()
	if err != nil {
		return nil, err
	}
	sorter, err := manifest.NewSorter(pcfg.Locale)
	if err != nil {
		return nil, err
	}

	a := &App{Sorter: sorter, Logger: logger, PipelineConfig: pcfg}

	// 2. 初始化存储层 (Dependency Injection)
	a.Store, err = initStore(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to init storage: %w", err)
	}

	// 3. CDN 刷新 (可选)
	var purger cdn.Purger
	if key := viper.GetString("cdn.purge_api_key"); key != "" {
		p, err := cdn.NewBunnyPurger(cdn.Config{APIKey: key, Endpoint: viper.GetString("cdn.endpoint")})
		if err != nil {
			return nil, err
		}
		purger = p
	}
	purgeURL := ""
	if pcfg.ContentDeliveryBase != "" {
		purgeURL = crawler.FileURL(pcfg.ContentDeliveryBase, pcfg.ManifestPath)
	}
	a.Publisher = publish.New(a.Store, purger, purgeURL, logger)

	// 4. 单写者锁
	a.Locker, err = a.initLocker()
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to init run lock: %w", err)
	}

	// 5. 运行记录 (可选)
	a.Repository, err = a.initRepository(ctx)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to init run history: %w", err)
	}

	return a, nil
}

// pipelineConfig 把 viper 里的键转换成显式的 pipeline.Config
func pipelineConfig() (pipeline.Config, error) {
	root := types.RemotePath(viper.GetString("manifest.root")).Clean()
	name := viper.GetString("manifest.name")
	if name == "" {
		name = pipeline.DefaultManifestName
	}

	matcher, err := ignore.NewMatcher(name, viper.GetStringSlice("manifest.ignore"), IgnoreFile)
	if err != nil {
		return pipeline.Config{}, fmt.Errorf("failed to load ignore rules: %w", err)
	}

	return pipeline.Config{
		RootPath:               root,
		ContentDeliveryBase:    strings.TrimRight(viper.GetString("manifest.cdn_base"), "/"),
		ConcurrencyLimit:       clamp(viper.GetInt("crawl.concurrency"), 1, 64),
		PreviousManifestSource: viper.GetString("manifest.previous"),
		ManifestPath:           root.Join(name),
		Locale:                 viper.GetString("manifest.locale"),
		MaxDepth:               viper.GetInt("crawl.max_depth"),
		Ignore:                 matcher,
		LocalOut:               viper.GetString("manifest.local_out"),
	}, nil
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}

// initStore 根据 storage.type 选择后端
func initStore(ctx context.Context) (storage.Store, error) {
	switch t := viper.GetString("storage.type"); t {
	case "", "disk":
		path := viper.GetString("storage.path")
		if path == "" {
			return nil, fmt.Errorf("storage path not set")
		}
		return disk.NewAdapter(path)

	case "s3":
		return s3.NewAdapter(ctx, s3.Config{
			Endpoint:        viper.GetString("storage.s3.endpoint"),
			Region:          viper.GetString("storage.s3.region"),
			Bucket:          viper.GetString("storage.s3.bucket"),
			AccessKeyID:     viper.GetString("storage.s3.access_key_id"),
			SecretAccessKey: viper.GetString("storage.s3.secret_access_key"),
		})

	case "bunny":
		return bunny.NewAdapter(bunny.Config{
			Zone:     viper.GetString("storage.bunny.zone"),
			APIKey:   viper.GetString("storage.bunny.api_key"),
			Endpoint: viper.GetString("storage.bunny.endpoint"),
		})

	default:
		return nil, fmt.Errorf("unsupported storage type: %q", t)
	}
}

func (a *App) initLocker() (runlock.Locker, error) {
	switch t := viper.GetString("lock.type"); t {
	case "none":
		return runlock.Noop{}, nil
	case "", "file":
		return runlock.NewFileLocker(viper.GetString("lock.path")), nil
	case "redis":
		l, err := runlock.NewRedisLocker(runlock.RedisConfig{
			RedisURL: viper.GetString("lock.redis_url"),
			TTL:      viper.GetDuration("lock.ttl"),
		})
		if err != nil {
			return nil, err
		}
		a.AddCloser(l)
		return l, nil
	default:
		return nil, fmt.Errorf("unsupported lock type: %q", t)
	}
}

func (a *App) initRepository(ctx context.Context) (*meta.Repository, error) {
	t := viper.GetString("database.type")
	if t == "" || t == "none" {
		return nil, nil
	}
	db, err := meta.NewDB(ctx, meta.Config{
		Type:     t,
		Path:     viper.GetString("database.path"),
		Host:     viper.GetString("database.host"),
		Port:     viper.GetInt("database.port"),
		User:     viper.GetString("database.user"),
		Password: viper.GetString("database.password"),
		DBName:   viper.GetString("database.dbname"),
		SSLMode:  viper.GetString("database.sslmode"),
	})
	if err != nil {
		return nil, err
	}
	a.AddCloser(db)
	return meta.NewRepository(db), nil
}

// Pipeline 组装一次运行
func (a *App) Pipeline(dryRun bool) (*pipeline.Pipeline, error) {
	cfg := a.PipelineConfig
	cfg.DryRun = dryRun

	deps := pipeline.Deps{
		Lister:    a.Store,
		Getter:    a.Store,
		Publisher: a.Publisher,
		Locker:    a.Locker,
		Logger:    a.Logger,
	}
	// 避免把 nil *Repository 装进接口
	if a.Repository != nil {
		deps.Recorder = a.Repository
	}
	return pipeline.New(cfg, deps)
}

// Syncer 组装 pin 同步服务，与流水线共享后端、Publisher 和锁
func (a *App) Syncer() *pinsync.Syncer {
	opts := []pinsync.Option{pinsync.WithLocalCopy(a.PipelineConfig.LocalOut)}
	if a.Repository != nil {
		opts = append(opts, pinsync.WithRecorder(a.Repository))
	}
	return pinsync.NewSyncer(a.Store, a.Publisher, a.Locker, a.Sorter, a.PipelineConfig.ManifestPath, a.Logger, opts...)
}

// AddCloser 登记一个需要在 Close 时释放的资源
func (a *App) AddCloser(c io.Closer) {
	a.closers = append(a.closers, c)
}

// Close 释放外部连接 (Redis, 数据库)
func (a *App) Close() {
	for _, c := range a.closers {
		_ = c.Close()
	}
	a.closers = nil
}

// NewLogger 按 log.level / log.format 创建 slog.Logger
func NewLogger(w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(viper.GetString("log.level"))); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if viper.GetString("log.format") == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
