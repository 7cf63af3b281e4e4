package server

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func TestLogging_RecordsStatus(t *testing.T) {
	var buf bytes.Buffer
	h := Wrap(newLogger(&buf), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/syncPins", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Contains(t, buf.String(), "status=418")
	assert.Contains(t, buf.String(), "path=/syncPins")
	assert.Contains(t, buf.String(), "level=WARN")
}

func TestLogging_ImplicitOK(t *testing.T) {
	var buf bytes.Buffer
	h := Wrap(newLogger(&buf), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("hi"))
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, buf.String(), "status=200")
	assert.Contains(t, buf.String(), "level=INFO")
}

func TestRecovery(t *testing.T) {
	var buf bytes.Buffer
	h := Wrap(newLogger(&buf), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	assert.NotPanics(t, func() {
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/syncPins", nil))
	})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"ok":false,"error":"internal server error"}`, rec.Body.String())
	assert.Contains(t, buf.String(), "PANIC RECOVERED")
	assert.Contains(t, buf.String(), "status=500")
}
