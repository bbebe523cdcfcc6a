package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	configs "go_mock_resolver/internal/infra/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitializeAppMemoryMode(t *testing.T) {
	rulesFile := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(rulesFile, []byte(`
rules:
  - id: ping
    match: {path: /ping, methods: [GET]}
    response:
      content_type: text/plain
      content: pong
`), 0o644))

	cfg := configs.Default()
	cfg.Server.Addr = "127.0.0.1:0"
	cfg.Server.ShutdownTimeout = time.Second
	cfg.Storage.RulesFile = rulesFile

	a, cleanup, err := InitializeApp(cfg)
	require.NoError(t, err)
	defer cleanup()
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	assert.Eventually(t, func() bool {
		rec := httptest.NewRecorder()
		a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/__admin/health", nil))
		var body struct {
			Rules int `json:"rules"`
		}
		return rec.Code == http.StatusOK && json.Unmarshal(rec.Body.Bytes(), &body) == nil && body.Rules == 1
	}, 2*time.Second, 10*time.Millisecond)

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pong", rec.Body.String())
	assert.Equal(t, "text/plain", rec.Header().Get("Content-Type"))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("app did not shut down")
	}
}

func TestRunFailsOnBadRulesFile(t *testing.T) {
	cfg := configs.Default()
	cfg.Storage.RulesFile = filepath.Join(t.TempDir(), "missing.yaml")
	a, cleanup, err := InitializeApp(cfg)
	require.NoError(t, err)
	defer cleanup()

	err = a.Run(context.Background())
	assert.ErrorContains(t, err, "failed to load rules")
}
