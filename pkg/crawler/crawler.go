package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"mediamanifest/pkg/ignore"
	"mediamanifest/pkg/manifest"
	"mediamanifest/pkg/storage"
	"mediamanifest/pkg/types"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

const (
	DefaultConcurrency = 8
	DefaultMaxDepth    = 64
)

var (
	// ErrEmptyRoot 表示根路径在后端不存在 (区别于“存在但为空”)
	ErrEmptyRoot = errors.New("crawl root not found")
	// ErrDepthExceeded 表示目录层级超过上限，通常意味着后端返回了异常数据
	ErrDepthExceeded = errors.New("crawl depth exceeded")
)

// ListingError 包装任意一次列举失败 (网络/鉴权等)
type ListingError struct {
	Path types.RemotePath
	Err  error
}

func (e *ListingError) Error() string {
	return fmt.Sprintf("listing %q failed: %v", e.Path, e.Err)
}

func (e *ListingError) Unwrap() error { return e.Err }

// Options 控制一次爬取
type Options struct {
	// Concurrency 是同时进行中的 List 调用上限
	Concurrency int
	// MaxDepth 是允许的最大目录深度 (根为 0)
	MaxDepth int
	// CDNBase 不为空时，为每个文件生成完整的 CDN 地址
	CDNBase string
	// Ignore 为 nil 时不排除任何条目
	Ignore *ignore.Matcher
}

// Crawler 从根路径开始递归列举后端，构建出与目录结构一致的树
type Crawler struct {
	lister storage.Lister
	opts   Options
	logger *slog.Logger
}

func New(lister storage.Lister, opts Options, logger *slog.Logger) *Crawler {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = DefaultMaxDepth
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Crawler{lister: lister, opts: opts, logger: logger}
}

// crawl 是单次爬取的上下文，sem 在整棵树的所有 goroutine 间共享
type crawl struct {
	*Crawler
	root types.RemotePath
	sem  *semaphore.Weighted
}

// Crawl 执行一次完整爬取，返回的 Manifest 未排序、没有 pin、Version = 0
// 任何一次列举失败都会取消整个爬取，不会返回半棵树
func (c *Crawler) Crawl(ctx context.Context, root types.RemotePath) (*manifest.Manifest, error) {
	root = root.Clean()
	run := &crawl{
		Crawler: c,
		root:    root,
		sem:     semaphore.NewWeighted(int64(c.opts.Concurrency)),
	}

	node, err := run.walk(ctx, root, nil)
	if err != nil {
		return nil, err
	}
	return &manifest.Manifest{Root: node}, nil
}

// list 在信号量保护下调用一次 Lister
func (r *crawl) list(ctx context.Context, path types.RemotePath) ([]storage.Item, error) {
	if err := r.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer r.sem.Release(1)
	return r.lister.List(ctx, path)
}

// walk 深度优先构建 path 对应的节点
// rel 是相对爬取根目录的路径段
func (r *crawl) walk(ctx context.Context, path types.RemotePath, rel []string) (*manifest.Node, error) {
	depth := len(rel)
	if depth > r.opts.MaxDepth {
		return nil, fmt.Errorf("%w: %s (max %d)", ErrDepthExceeded, path, r.opts.MaxDepth)
	}

	items, err := r.list(ctx, path)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound) && depth == 0:
			return nil, fmt.Errorf("%w: %s", ErrEmptyRoot, path)
		case errors.Is(err, storage.ErrNotFound):
			// 子目录刚刚被列举出来，理论上不会不存在；按空目录处理
			r.logger.Warn("directory vanished during crawl", slog.String("path", path.String()))
			items = nil
		case ctx.Err() != nil:
			return nil, ctx.Err()
		default:
			return nil, &ListingError{Path: path, Err: err}
		}
	}

	name := ""
	if depth > 0 {
		name = rel[depth-1]
	}
	node := manifest.NewNode(name)

	var dirs []string
	seenDirs := make(map[string]struct{})
	seenFiles := make(map[string]struct{})
	for _, it := range items {
		// 后端偶尔会返回没有名字的簿记条目，直接跳过
		if it.Name == "" || it.Name == "." || it.Name == ".." || strings.Contains(it.Name, "/") {
			continue
		}
		relPath := strings.Join(append(append([]string(nil), rel...), it.Name), "/")

		if it.IsDir {
			if r.opts.Ignore.MatchesDir(relPath) {
				continue
			}
			if _, dup := seenDirs[it.Name]; dup {
				continue
			}
			seenDirs[it.Name] = struct{}{}
			dirs = append(dirs, it.Name)
			continue
		}

		if r.opts.Ignore.Matches(relPath) {
			continue
		}
		if _, dup := seenFiles[it.Name]; dup {
			continue
		}
		seenFiles[it.Name] = struct{}{}
		node.Files = append(node.Files, manifest.FileEntry{
			Name: it.Name,
			URL:  r.fileURL(path, it.Name),
		})
	}

	// 子目录并发展开：结果按下标收集，全部完成后再挂到父节点上
	// 这样父节点的切片只在当前 goroutine 里写，不需要锁
	children := make([]*manifest.Node, len(dirs))
	g, gctx := errgroup.WithContext(ctx)
	for i, d := range dirs {
		childRel := append(append([]string(nil), rel...), d)
		g.Go(func() error {
			child, err := r.walk(gctx, path.Join(d), childRel)
			if err != nil {
				return err
			}
			children[i] = child
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	node.Children = children

	return node, nil
}

// fileURL 拼接文件的 CDN 地址
// 每一段单独做百分号编码，保留路径中的 "/"
func (r *crawl) fileURL(dir types.RemotePath, name string) string {
	if r.opts.CDNBase == "" {
		return ""
	}
	return FileURL(r.opts.CDNBase, dir.Join(name))
}

// FileURL 根据 CDN 基地址和后端路径生成完整地址
func FileURL(base string, path types.RemotePath) string {
	segs := path.Segments()
	escaped := make([]string, len(segs))
	for i, s := range segs {
		escaped[i] = url.PathEscape(s)
	}
	return strings.TrimRight(base, "/") + "/" + strings.Join(escaped, "/")
}
