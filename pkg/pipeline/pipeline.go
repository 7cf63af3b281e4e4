package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"mediamanifest/pkg/crawler"
	"mediamanifest/pkg/ignore"
	"mediamanifest/pkg/manifest"
	"mediamanifest/pkg/meta"
	"mediamanifest/pkg/publish"
	"mediamanifest/pkg/runlock"
	"mediamanifest/pkg/storage"
	"mediamanifest/pkg/storage/disk"
	"mediamanifest/pkg/types"
)

const DefaultManifestName = "manifest.json"

// Config 是一次运行的全部输入，不读取任何全局状态
type Config struct {
	RootPath               types.RemotePath
	ContentDeliveryBase    string
	ConcurrencyLimit       int
	PreviousManifestSource string

	// ManifestPath 默认为 <RootPath>/manifest.json
	ManifestPath types.RemotePath
	Locale       string
	MaxDepth     int
	Ignore       *ignore.Matcher
	// LocalOut 不为空时，发布前先把字节写到这个本地文件
	LocalOut string
	// DryRun 只生成不发布
	DryRun bool
}

// manifestPath 返回最终的发布路径
func (c Config) manifestPath() types.RemotePath {
	if p := c.ManifestPath.Clean(); p != "" {
		return p
	}
	return c.RootPath.Join(DefaultManifestName)
}

// Recorder 持久化运行记录；meta.Repository 实现了它
type Recorder interface {
	RecordRun(ctx context.Context, rec *meta.RunRecord) error
}

// Deps 是流水线依赖的外部协作者
type Deps struct {
	Lister    storage.Lister
	Getter    storage.Getter // 读取上一次的 Manifest
	Publisher *publish.Publisher
	Locker    runlock.Locker // nil 表示不加锁
	Recorder  Recorder       // nil 表示不记录
	Logger    *slog.Logger
}

// Result 汇总一次运行
type Result struct {
	State        State
	Trace        []State
	ManifestPath types.RemotePath
	Fingerprint  types.Fingerprint
	Version      int
	Stats        manifest.Stats
	// Dropped 是上一次 Manifest 中因格式错误被丢弃的 pin 路径
	Dropped []string
	// PreviousDiscarded 表示上一次的 Manifest 结构损坏，被当作不存在处理
	PreviousDiscarded bool
	Manifest          *manifest.Manifest
	Bytes             []byte
	DryRun            bool
	Purged            bool
	PurgeErr          error
	Timings           []meta.StageTiming
	StartedAt         time.Time
	FinishedAt        time.Time
}

// Pipeline 执行 crawl -> canonicalize -> merge -> serialize -> publish -> verify
type Pipeline struct {
	cfg    Config
	deps   Deps
	sorter manifest.Sorter
	logger *slog.Logger
}

func New(cfg Config, deps Deps) (*Pipeline, error) {
	if deps.Lister == nil {
		return nil, errors.New("pipeline: lister is required")
	}
	if deps.Publisher == nil && !cfg.DryRun {
		return nil, errors.New("pipeline: publisher is required unless dry-run")
	}
	sorter, err := manifest.NewSorter(cfg.Locale)
	if err != nil {
		return nil, err
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{cfg: cfg, deps: deps, sorter: sorter, logger: logger}, nil
}

// run 是单次执行的可变状态
type run struct {
	*Pipeline
	res        *Result
	stageStart time.Time
}

func (r *run) enter(ctx context.Context, s State) error {
	r.finishStage()
	if err := ctx.Err(); err != nil {
		return err
	}
	r.res.State = s
	r.res.Trace = append(r.res.Trace, s)
	r.stageStart = time.Now()
	r.logger.Debug("pipeline state", slog.String("state", s.String()))
	return nil
}

func (r *run) finishStage() {
	if r.stageStart.IsZero() {
		return
	}
	r.res.Timings = append(r.res.Timings, meta.StageTiming{
		Stage: r.res.State.String(),
		MS:    time.Since(r.stageStart).Milliseconds(),
	})
	r.stageStart = time.Time{}
}

// Run 执行一次完整的发布
// 失败时返回 *StageError，Result 仍然可用 (State = StateFailed)
// 任何失败都发生在写入远端之前，或者已经写入但校验不通过；前者远端保持原样
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	r := &run{
		Pipeline: p,
		res: &Result{
			State:        StateIdle,
			Trace:        []State{StateIdle},
			ManifestPath: p.cfg.manifestPath(),
			DryRun:       p.cfg.DryRun,
			StartedAt:    time.Now(),
		},
	}

	err := r.execute(ctx)
	r.finishStage()
	r.res.FinishedAt = time.Now()

	if err != nil {
		var se *StageError
		if !errors.As(err, &se) {
			se = &StageError{Stage: r.res.State, Err: err}
		}
		r.res.State = StateFailed
		r.res.Trace = append(r.res.Trace, StateFailed)
		p.logger.Error("pipeline failed",
			slog.String("stage", se.Stage.String()),
			slog.String("path", r.res.ManifestPath.String()),
			slog.String("err", se.Err.Error()),
		)
		p.record(ctx, r.res, se)
		return r.res, se
	}

	r.res.State = StateDone
	r.res.Trace = append(r.res.Trace, StateDone)
	p.logger.Info("pipeline done",
		slog.String("path", r.res.ManifestPath.String()),
		slog.String("fingerprint", r.res.Fingerprint.Short()),
		slog.Int("version", r.res.Version),
		slog.Int("dirs", r.res.Stats.Dirs),
		slog.Int("files", r.res.Stats.Files),
		slog.Int("pins", r.res.Stats.Annotations),
		slog.Bool("dry_run", r.res.DryRun),
		slog.Duration("dur", r.res.FinishedAt.Sub(r.res.StartedAt)),
	)
	p.record(ctx, r.res, nil)
	return r.res, nil
}

func (r *run) execute(ctx context.Context) error {
	res := r.res

	// 0. 单写者：拿不到锁直接失败，不排队
	if r.deps.Locker != nil {
		unlock, err := r.deps.Locker.Lock(ctx, res.ManifestPath.String())
		if err != nil {
			return &StageError{Stage: StateIdle, Err: err}
		}
		defer func() {
			if err := unlock(); err != nil {
				r.logger.Warn("failed to release run lock", slog.String("err", err.Error()))
			}
		}()
	}

	// 1. Crawling
	if err := r.enter(ctx, StateCrawling); err != nil {
		return err
	}
	c := crawler.New(r.deps.Lister, crawler.Options{
		Concurrency: r.cfg.ConcurrencyLimit,
		MaxDepth:    r.cfg.MaxDepth,
		CDNBase:     r.cfg.ContentDeliveryBase,
		Ignore:      r.cfg.Ignore,
	}, r.logger)
	fresh, err := c.Crawl(ctx, r.cfg.RootPath)
	if err != nil {
		return err
	}

	// 2. Canonicalizing
	if err := r.enter(ctx, StateCanonicalizing); err != nil {
		return err
	}
	r.sorter.Canonicalize(fresh)

	// 3. Merging
	if err := r.enter(ctx, StateMerging); err != nil {
		return err
	}
	previous, err := r.previous(ctx)
	if err != nil {
		return err
	}
	merged := manifest.Merge(previous, fresh)
	res.Manifest = merged
	res.Version = merged.Version
	res.Stats = merged.Stats()

	// 4. Serializing
	if err := r.enter(ctx, StateSerializing); err != nil {
		return err
	}
	data, fp, err := manifest.Encode(merged)
	if err != nil {
		return err
	}
	res.Bytes = data
	res.Fingerprint = fp

	if r.cfg.LocalOut != "" {
		if err := WriteLocal(ctx, r.cfg.LocalOut, data); err != nil {
			return err
		}
	}
	if r.cfg.DryRun {
		return nil
	}

	// 5. Publishing
	if err := r.enter(ctx, StatePublishing); err != nil {
		return err
	}
	if err := r.deps.Publisher.Write(ctx, res.ManifestPath, data); err != nil {
		return err
	}

	// 6. Verifying
	if err := r.enter(ctx, StateVerifying); err != nil {
		return err
	}
	if _, err := r.deps.Publisher.Verify(ctx, res.ManifestPath, data); err != nil {
		return err
	}

	// 内容已在源站校验通过，CDN 刷新失败不影响结果
	res.Purged, res.PurgeErr = r.deps.Publisher.Purge(ctx)
	return nil
}

// previous 加载并解析上一次的 Manifest
// 结构损坏时降级为 "不存在"，丢掉 pin 好过永远无法发布
func (r *run) previous(ctx context.Context) (*manifest.Manifest, error) {
	data, err := loadPrevious(ctx, r.cfg.PreviousManifestSource, r.deps.Getter, r.res.ManifestPath)
	if err != nil {
		return nil, err
	}
	if data == nil {
		r.logger.Info("no previous manifest, starting fresh", slog.String("path", r.res.ManifestPath.String()))
		return nil, nil
	}

	prev, dropped, err := manifest.Decode(data)
	var mse *manifest.MergeStructureError
	if errors.As(err, &mse) {
		r.logger.Warn("previous manifest is malformed, treating as absent",
			slog.String("path", r.res.ManifestPath.String()),
			slog.String("err", mse.Error()),
		)
		r.res.PreviousDiscarded = true
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	for _, d := range dropped {
		r.logger.Warn("dropping malformed pin", slog.String("node", d))
	}
	r.res.Dropped = dropped
	return prev, nil
}

// WriteLocal 原子地写出本地副本 (复用磁盘后端的 temp + rename)
// pin 同步发布后也用它刷新同一份副本
func WriteLocal(ctx context.Context, out string, data []byte) error {
	dir, name := filepath.Split(filepath.Clean(out))
	if dir == "" {
		dir = "."
	}
	a, err := disk.NewAdapter(dir)
	if err != nil {
		return err
	}
	if err := a.Put(ctx, types.RemotePath(name), data, publish.ContentType); err != nil {
		return fmt.Errorf("failed to write local copy %s: %w", out, err)
	}
	return nil
}

func (p *Pipeline) record(ctx context.Context, res *Result, se *StageError) {
	if p.deps.Recorder == nil {
		return
	}
	rec := &meta.RunRecord{
		ManifestPath: res.ManifestPath.String(),
		State:        meta.StateDone,
		DryRun:       res.DryRun,
		Source:       meta.SourceGenerate,
		Fingerprint:  res.Fingerprint.String(),
		Version:      res.Version,
		Dirs:         res.Stats.Dirs,
		Files:        res.Stats.Files,
		Annotations:  res.Stats.Annotations,
		Dropped:      len(res.Dropped),
		StartedAt:    res.StartedAt,
		FinishedAt:   res.FinishedAt,
	}
	if se != nil {
		rec.State = meta.StateFailed
		rec.FailedStage = se.Stage.String()
		rec.Error = se.Err.Error()
	}
	if err := rec.SetStages(res.Timings); err != nil {
		p.logger.Warn("failed to encode stage timings", slog.String("err", err.Error()))
	}

	// 运行可能因为 ctx 取消而失败，记录仍然要写
	if err := p.deps.Recorder.RecordRun(context.WithoutCancel(ctx), rec); err != nil {
		p.logger.Warn("failed to record run", slog.String("err", err.Error()))
	}
}
