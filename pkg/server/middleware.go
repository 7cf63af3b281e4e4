package server

import (
	"context"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"
)

// =============================================================================
// 1. Logging Middleware (结构化日志)
// =============================================================================

// statusRecorder 记录 handler 写出的状态码
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// Logging 为每个请求打一条日志
func Logging(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}

		next.ServeHTTP(rec, r)

		if rec.status == 0 {
			rec.status = http.StatusOK
		}
		logRequest(logger, r, rec.status, time.Since(start))
	})
}

// logRequest 统一的日志打印逻辑
func logRequest(logger *slog.Logger, r *http.Request, status int, duration time.Duration) {
	level := slog.LevelInfo
	switch {
	case status >= 500:
		level = slog.LevelError
	case status >= 400:
		// 客户端错误 (参数不对、路由不存在) 记为 Warn
		level = slog.LevelWarn
	}

	logger.Log(context.Background(), level, "HTTP Request",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.Int("status", status),
		slog.Duration("dur", duration),
	)
}

// =============================================================================
// 2. Recovery Middleware (防弹衣)
// =============================================================================

// Recovery 捕获 handler 中的 panic，返回 500 而不是直接断开连接
func Recovery(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if p := recover(); p != nil {
				if p == http.ErrAbortHandler {
					panic(p)
				}
				logger.Error("🔥 PANIC RECOVERED",
					slog.Any("panic", p),
					slog.String("stack", string(debug.Stack())),
				)
				w.Header().Set("Content-Type", "application/json; charset=utf-8")
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte(`{"ok":false,"error":"internal server error"}`))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// Wrap 按 Logging(Recovery(h)) 的顺序组装，panic 也会被记进访问日志
func Wrap(logger *slog.Logger, h http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return Logging(logger, Recovery(logger, h))
}
