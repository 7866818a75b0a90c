package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/clicloop/internal/auth"
	"github.com/clicloop/internal/client"
	apperrors "github.com/clicloop/internal/errors"
	"github.com/clicloop/internal/types"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	mu          sync.Mutex
	historyFail bool
	generated   map[string]interface{}
	saved       []string
	deleted     bool
}

func (f *fakeBackend) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/ai/generate", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.generated = body
		f.mu.Unlock()
		_, _ = io.WriteString(w, `{"generatedText":"Use CTA no final","usage":{"prompt_tokens":2,"completion_tokens":3,"total_tokens":5}}`)
	})

	mux.HandleFunc("/api/history/", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.historyFail {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = io.WriteString(w, `{"error":{"code":"PERSISTENCE_ERROR","message":"Internal server error"}}`)
			return
		}
		f.saved = append(f.saved, r.URL.Path)
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"id":"h1"}`)
	})

	mux.HandleFunc("/api/profile", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"user_id":"u1","name":"Ana","plano_ativo":true}`)
	})

	mux.HandleFunc("/api/account/export", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Disposition", `attachment; filename="meus-dados-clicloop-2026-03-09.json"`)
		_, _ = io.WriteString(w, `{"profile":{"name":"Ana"}}`)
	})

	mux.HandleFunc("/api/account", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.deleted = r.Method == http.MethodDelete
		f.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})

	return mux
}

func testToken(t *testing.T, exp time.Time) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u1",
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Email: "ana@example.com",
	}).SignedString([]byte("cli-test"))
	require.NoError(t, err)
	return token
}

func run(t *testing.T, backend *fakeBackend, args ...string) (string, string, error) {
	t.Helper()
	srv := httptest.NewServer(backend.handler())
	t.Cleanup(srv.Close)

	var out, errOut bytes.Buffer
	root, cleanup := newRootCmd(&out, &errOut)
	root.SetArgs(append([]string{"--api", srv.URL, "--token", testToken(t, time.Now().Add(time.Hour))}, args...))
	err := root.Execute()
	cleanup()
	return out.String(), errOut.String(), err
}

func TestChatCommand(t *testing.T) {
	backend := &fakeBackend{}

	out, errOut, err := run(t, backend, "chat", "como", "aumentar", "vendas?")
	require.NoError(t, err)

	assert.Contains(t, out, "Use CTA no final")
	assert.Contains(t, errOut, "tokens: 5")
	assert.Equal(t, "como aumentar vendas?", backend.generated["prompt"])
	assert.Equal(t, "chat", backend.generated["type"])
	assert.Equal(t, []string{"/api/history/chat"}, backend.saved)
}

func TestContentCommand_GeneratedButNotSaved(t *testing.T) {
	backend := &fakeBackend{historyFail: true}

	out, errOut, err := run(t, backend, "content", "--descricao", "pizza artesanal", "--formato", "reels")
	require.NoError(t, err)

	assert.Contains(t, out, "Use CTA no final")
	assert.Contains(t, errOut, "generated but not saved")
	data, ok := backend.generated["data"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "reels", data["formato"])
}

func TestContentCommand_RequiresFlags(t *testing.T) {
	_, _, err := run(t, &fakeBackend{}, "content", "--formato", "reels")
	assert.Error(t, err)
}

func TestCampaignCommand_RequiresInvestment(t *testing.T) {
	_, _, err := run(t, &fakeBackend{}, "campaign",
		"--publico", "mães", "--objetivo", "vendas", "--titulo", "t", "--texto", "x")
	assert.ErrorContains(t, err, "--investimento")
}

func TestMissingToken(t *testing.T) {
	t.Setenv("CLICLOOP_TOKEN", "")

	var out, errOut bytes.Buffer
	root, cleanup := newRootCmd(&out, &errOut)
	defer cleanup()
	root.SetArgs([]string{"billing"})

	assert.ErrorContains(t, root.Execute(), "no access token")
}

func TestExpiredToken(t *testing.T) {
	var out, errOut bytes.Buffer
	root, cleanup := newRootCmd(&out, &errOut)
	defer cleanup()
	root.SetArgs([]string{"--token", testToken(t, time.Now().Add(-time.Minute)), "billing"})

	assert.ErrorContains(t, root.Execute(), "expired")
}

func TestProfileCommand(t *testing.T) {
	out, _, err := run(t, &fakeBackend{}, "profile")
	require.NoError(t, err)

	var profile map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &profile))
	assert.Equal(t, "Ana", profile["name"])
}

func TestExportCommand(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "export.json")

	_, errOut, err := run(t, &fakeBackend{}, "export", "--out", dest)
	require.NoError(t, err)
	assert.Contains(t, errOut, dest)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.JSONEq(t, `{"profile":{"name":"Ana"}}`, string(data))
}

func TestDeleteAccountCommand(t *testing.T) {
	backend := &fakeBackend{}

	_, _, err := run(t, backend, "delete-account")
	assert.ErrorContains(t, err, "--yes")
	assert.False(t, backend.deleted)

	_, _, err = run(t, backend, "delete-account", "--yes")
	require.NoError(t, err)
	assert.True(t, backend.deleted)
}

func TestDescribeError(t *testing.T) {
	apiErr := &client.APIError{
		StatusCode: http.StatusBadRequest,
		Code:       "VALIDATION_ERROR",
		Message:    "Validation failed",
		Details: map[string]interface{}{
			"fields": []interface{}{
				map[string]interface{}{"field": "data.formato", "rule": "max", "message": "data.formato must be at most 50 characters"},
			},
		},
	}

	err := describeError(apiErr)
	assert.Contains(t, err.Error(), "Validation failed")
	assert.Contains(t, err.Error(), "data.formato: data.formato must be at most 50 characters")
}

func TestDescribeError_LocalValidation(t *testing.T) {
	err := describeError(apperrors.NewValidationError([]types.FieldViolation{
		{Field: "description", Rule: "required", Message: "is required"},
	}))

	assert.Contains(t, err.Error(), "request failed validation on 1 field(s)")
	assert.Contains(t, err.Error(), "description: is required")
}
