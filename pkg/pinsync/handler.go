package pinsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"mediamanifest/pkg/manifest"
	"mediamanifest/pkg/meta"
	"mediamanifest/pkg/pipeline"
	"mediamanifest/pkg/publish"
	"mediamanifest/pkg/runlock"
	"mediamanifest/pkg/storage"
	"mediamanifest/pkg/types"
)

// maxBodyBytes 限制单次请求体大小
const maxBodyBytes = 1 << 20

// Pin 是客户端上传的一条坐标
// 坐标用指针区分 "没传" 和 "传了 0"
type Pin struct {
	Path string   `json:"path"`
	X    *float64 `json:"x"`
	Y    *float64 `json:"y"`
	Z    *float64 `json:"z"`
}

func (p Pin) valid() bool {
	if p.X == nil || p.Y == nil || p.Z == nil {
		return false
	}
	segs := types.RemotePath(p.Path).Segments()
	return len(segs) > 0 && !slices.Contains(segs, "..")
}

// Outcome 是一次同步的结果
type Outcome struct {
	Updated     int
	Rejected    int
	Version     int
	Fingerprint types.Fingerprint
}

// ErrNoValidPins 表示请求中没有任何一条可用的坐标
var ErrNoValidPins = errors.New("no valid pins")

// Syncer 把客户端的 pin 写进已发布的 Manifest
// 和流水线共用同一把锁、同一个 Publisher，两者不会同时写同一个文件
type Syncer struct {
	getter       storage.Getter
	publisher    *publish.Publisher
	locker       runlock.Locker
	sorter       manifest.Sorter
	manifestPath types.RemotePath
	logger       *slog.Logger

	// 可选：运行记录和本地副本，让 `mm verify` 看到同步后的新指纹
	recorder pipeline.Recorder
	localOut string
}

type Option func(*Syncer)

// WithRecorder 每次成功同步后写一条运行记录
func WithRecorder(r pipeline.Recorder) Option {
	return func(s *Syncer) { s.recorder = r }
}

// WithLocalCopy 每次成功同步后刷新本地副本
func WithLocalCopy(path string) Option {
	return func(s *Syncer) { s.localOut = path }
}

func NewSyncer(getter storage.Getter, publisher *publish.Publisher, locker runlock.Locker, sorter manifest.Sorter, manifestPath types.RemotePath, logger *slog.Logger, opts ...Option) *Syncer {
	if locker == nil {
		locker = runlock.Noop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Syncer{
		getter:       getter,
		publisher:    publisher,
		locker:       locker,
		sorter:       sorter,
		manifestPath: manifestPath,
		logger:       logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Apply 加载当前 Manifest，写入坐标，Version + 1，发布并校验
func (s *Syncer) Apply(ctx context.Context, pins []Pin) (*Outcome, error) {
	started := time.Now()
	out := &Outcome{}
	valid := make([]Pin, 0, len(pins))
	for _, p := range pins {
		if !p.valid() {
			out.Rejected++
			continue
		}
		valid = append(valid, p)
	}
	if len(valid) == 0 {
		return out, ErrNoValidPins
	}

	unlock, err := s.locker.Lock(ctx, s.manifestPath.String())
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := unlock(); err != nil {
			s.logger.Warn("failed to release run lock", slog.String("err", err.Error()))
		}
	}()

	// 1. 加载当前版本 (不存在则从空树开始)
	m, err := s.load(ctx)
	if err != nil {
		return nil, err
	}

	// 2. 写入坐标
	for _, p := range valid {
		m.Pin(types.RemotePath(p.Path), manifest.Annotation{X: *p.X, Y: *p.Y, Z: *p.Z})
		out.Updated++
	}
	// 这是唯一会改变 Version 的地方
	m.Version++
	s.sorter.Canonicalize(m)

	// 3. 发布 + 校验
	data, err := manifest.Serialize(m)
	if err != nil {
		return nil, err
	}
	res, err := s.publisher.Publish(ctx, s.manifestPath, data)
	if err != nil {
		return nil, err
	}

	out.Version = m.Version
	out.Fingerprint = res.Fingerprint

	// 4. 远端已经是新版本；副本和记录失败只告警
	if s.localOut != "" {
		if err := pipeline.WriteLocal(ctx, s.localOut, data); err != nil {
			s.logger.Warn("failed to refresh local copy", slog.String("err", err.Error()))
		}
	}
	s.record(ctx, m, out, started)
	return out, nil
}

func (s *Syncer) record(ctx context.Context, m *manifest.Manifest, out *Outcome, started time.Time) {
	if s.recorder == nil {
		return
	}
	stats := m.Stats()
	rec := &meta.RunRecord{
		ManifestPath: s.manifestPath.String(),
		State:        meta.StateDone,
		Source:       meta.SourcePinSync,
		Fingerprint:  out.Fingerprint.String(),
		Version:      out.Version,
		Dirs:         stats.Dirs,
		Files:        stats.Files,
		Annotations:  stats.Annotations,
		StartedAt:    started,
		FinishedAt:   time.Now(),
	}
	if err := s.recorder.RecordRun(context.WithoutCancel(ctx), rec); err != nil {
		s.logger.Warn("failed to record pin sync", slog.String("err", err.Error()))
	}
}

func (s *Syncer) load(ctx context.Context) (*manifest.Manifest, error) {
	data, err := storage.ReadAll(ctx, s.getter, s.manifestPath)
	if errors.Is(err, storage.ErrNotFound) {
		return manifest.New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load manifest: %w", err)
	}

	m, dropped, err := manifest.Decode(data)
	if err != nil {
		// 和流水线不同：这里是在已发布的文件上做增量修改，坏文件不能悄悄被覆盖
		return nil, err
	}
	for _, d := range dropped {
		s.logger.Warn("dropping malformed pin", slog.String("node", d))
	}
	return m, nil
}

// Handler 是对外的 HTTP 入口
type Handler struct {
	syncer *Syncer
	logger *slog.Logger
	mux    *http.ServeMux
}

func NewHandler(syncer *Syncer, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{syncer: syncer, logger: logger, mux: http.NewServeMux()}
	h.mux.HandleFunc("OPTIONS /", h.preflight)
	h.mux.HandleFunc("POST /syncPins", h.syncPins)
	h.mux.HandleFunc("GET /healthz", h.healthz)
	h.mux.HandleFunc("/", h.notFound)
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

type syncRequest struct {
	Pins json.RawMessage `json:"pins"`
}

type syncResponse struct {
	OK          bool   `json:"ok"`
	Error       string `json:"error,omitempty"`
	Updated     int    `json:"updated"`
	Rejected    int    `json:"rejected"`
	Version     int    `json:"version,omitempty"`
	Fingerprint string `json:"fingerprint,omitempty"`
}

func (h *Handler) syncPins(w http.ResponseWriter, r *http.Request) {
	var req syncRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	pins := decodePins(req.Pins)
	h.logger.Info("syncPins received", slog.Int("pins", len(pins)))
	if len(pins) == 0 {
		writeError(w, http.StatusBadRequest, "No pins")
		return
	}

	out, err := h.syncer.Apply(r.Context(), pins)
	switch {
	case errors.Is(err, ErrNoValidPins):
		writeJSON(w, http.StatusBadRequest, syncResponse{Error: "No valid pins", Rejected: out.Rejected})
		return
	case errors.Is(err, runlock.ErrLocked):
		writeError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		h.logger.Error("syncPins failed", slog.String("err", err.Error()))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.logger.Info("syncPins published",
		slog.Int("updated", out.Updated),
		slog.Int("rejected", out.Rejected),
		slog.Int("version", out.Version),
		slog.String("fingerprint", out.Fingerprint.Short()),
	)
	writeJSON(w, http.StatusOK, syncResponse{
		OK:          true,
		Updated:     out.Updated,
		Rejected:    out.Rejected,
		Version:     out.Version,
		Fingerprint: out.Fingerprint.String(),
	})
}

// decodePins 逐条解析，单条格式错误只让这一条被拒绝
// pins 不是数组时视为空
func decodePins(raw json.RawMessage) []Pin {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}
	pins := make([]Pin, 0, len(items))
	for _, it := range items {
		var p Pin
		if err := json.Unmarshal(it, &p); err != nil {
			// 保留一个必然无效的占位，计入 rejected
			pins = append(pins, Pin{})
			continue
		}
		pins = append(pins, p)
	}
	return pins
}

func (h *Handler) preflight(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) notFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "Not found")
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"ok": false, "error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
