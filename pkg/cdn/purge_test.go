package cdn

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBunnyPurger_RequiresKey(t *testing.T) {
	_, err := NewBunnyPurger(Config{})
	assert.ErrorIs(t, err, ErrNoAPIKey)
}

func TestBunnyPurger_Purge(t *testing.T) {
	var gotURL, gotKey, gotMethod, gotAsync string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotKey = r.Header.Get("AccessKey")
		gotURL = r.URL.Query().Get("url")
		gotAsync = r.URL.Query().Get("async")
		if r.URL.Path != "/purge" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p, err := NewBunnyPurger(Config{APIKey: "secret", Endpoint: srv.URL + "/"})
	require.NoError(t, err)

	target := "https://cdn.example.com/Vila%20Viatges/manifest.json"
	require.NoError(t, p.Purge(context.Background(), target))

	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "secret", gotKey)
	assert.Equal(t, target, gotURL)
	assert.Equal(t, "false", gotAsync)
}

func TestBunnyPurger_Failure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	p, err := NewBunnyPurger(Config{APIKey: "wrong", Endpoint: srv.URL})
	require.NoError(t, err)

	err = p.Purge(context.Background(), "https://cdn.example.com/x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 401")
	assert.Contains(t, err.Error(), "bad key")
}
