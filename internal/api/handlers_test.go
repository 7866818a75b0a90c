package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	apperrors "github.com/clicloop/internal/errors"
	"github.com/clicloop/internal/models"
	"github.com/clicloop/internal/service"
	"github.com/clicloop/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validContentBody = `{"prompt":"Crie uma legenda","type":"content","data":{"nicho":"fitness","objetivo":"vendas","descricao":"Treino de 20 minutos","formato":"post"}}`

func TestGenerate_Unauthenticated(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		message string
	}{
		{"missing header", "", "Missing bearer token"},
		{"wrong scheme", "Basic abc", "Missing bearer token"},
		{"invalid token", "Bearer expired", "Invalid or expired session"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := createTestServer(t)

			req := httptest.NewRequest("POST", "/api/ai/generate", strings.NewReader(validContentBody))
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := ts.do(req)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
			resp := decodeError(t, w)
			assert.Equal(t, "UNAUTHORIZED", resp.Error.Code)
			assert.Equal(t, tt.message, resp.Error.Message)
			assert.Zero(t, ts.generation.callCount())
			assert.Empty(t, w.Header().Get("X-RateLimit-Limit"), "quota must not be consumed before authentication")
		})
	}
}

func TestGenerate_Success(t *testing.T) {
	ts := createTestServer(t)
	ts.generation.result = &service.GenerationResult{
		GeneratedText: "Legenda pronta",
		Usage:         types.Usage{PromptTokens: 10, CompletionTokens: 20, TotalTokens: 30},
	}

	w := ts.do(authed("POST", "/api/ai/generate", validContentBody))
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "Legenda pronta", body["generatedText"])
	assert.Equal(t, float64(30), body["usage"].(map[string]interface{})["total_tokens"])

	assert.Equal(t, "20", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "19", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))

	assert.Equal(t, testUserID, ts.generation.lastUser)
	require.NotNil(t, ts.generation.lastReq)
	assert.Equal(t, types.ToolContent, ts.generation.lastReq.Kind)
	assert.Equal(t, service.ContentData{Nicho: "fitness", Objetivo: "vendas", Descricao: "Treino de 20 minutos", Formato: "post"}, ts.generation.lastReq.Data)
}

func TestGenerate_LegacyPath(t *testing.T) {
	ts := createTestServer(t)

	w := ts.do(authed("POST", "/functions/chat-ai", `{"prompt":"Oi","type":"chat"}`))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, ts.generation.callCount())
}

func TestGenerate_TwentyFirstRequestIsRateLimited(t *testing.T) {
	ts := createTestServer(t)

	for i := 0; i < 20; i++ {
		w := ts.do(authed("POST", "/api/ai/generate", validContentBody))
		require.Equal(t, http.StatusOK, w.Code, "request %d", i+1)
	}

	w := ts.do(authed("POST", "/api/ai/generate", validContentBody))

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "20", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	resp := decodeError(t, w)
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", resp.Error.Code)
	assert.Contains(t, resp.Error.Details, "retryAfter")

	assert.Equal(t, 20, ts.generation.callCount())
}

func TestGenerate_InvalidRequestsNeverReachProvider(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		code   string
		fields []string
	}{
		{"malformed json", `{"prompt":`, "INVALID_INPUT", nil},
		{"missing prompt and type", `{}`, "VALIDATION_ERROR", []string{"prompt", "type"}},
		{"unknown type", `{"prompt":"oi","type":"video"}`, "VALIDATION_ERROR", []string{"type"}},
		{"prompt too long", `{"prompt":"` + strings.Repeat("a", service.MaxPromptLength+1) + `","type":"chat"}`, "VALIDATION_ERROR", []string{"prompt"}},
		{"extra top-level key", `{"prompt":"oi","type":"chat","model":"gpt-4"}`, "VALIDATION_ERROR", []string{"model"}},
		{"data for wrong kind", `{"prompt":"oi","type":"prompt","data":{"descricao":"x"}}`, "VALIDATION_ERROR", []string{"data.descricao"}},
		{"negative metric", `{"prompt":"oi","type":"campaign","data":{"cliques":-1}}`, "VALIDATION_ERROR", []string{"data.cliques"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := createTestServer(t)

			w := ts.do(authed("POST", "/api/ai/generate", tt.body))

			assert.Equal(t, http.StatusBadRequest, w.Code)
			resp := decodeError(t, w)
			assert.Equal(t, tt.code, resp.Error.Code)
			assert.Zero(t, ts.generation.callCount())

			if tt.fields == nil {
				return
			}
			raw, err := json.Marshal(resp.Error.Details["fields"])
			require.NoError(t, err)
			var violations []types.FieldViolation
			require.NoError(t, json.Unmarshal(raw, &violations))

			var got []string
			for _, v := range violations {
				got = append(got, v.Field)
			}
			for _, f := range tt.fields {
				assert.Contains(t, got, f)
			}
		})
	}
}

func TestGenerate_ProviderFailureIsGeneric(t *testing.T) {
	ts := createTestServer(t)
	ts.generation.err = apperrors.NewUpstreamError("openai", errors.New("status 503: key sk-secret rejected"))

	w := ts.do(authed("POST", "/api/ai/generate", validContentBody))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "sk-secret")
}

func TestGenerate_BodyTooLarge(t *testing.T) {
	ts := createTestServer(t)

	w := ts.do(authed("POST", "/api/ai/generate", strings.Repeat(" ", maxGenerationBodyBytes+1)))

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Zero(t, ts.generation.callCount())
}

func termsRequest(method, apiKey, contentType, body string) *http.Request {
	req := httptest.NewRequest(method, "/api/terms/accept", strings.NewReader(body))
	if apiKey != "" {
		req.Header.Set("x-api-key", apiKey)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return req
}

func TestAcceptTerms_CheckOrder(t *testing.T) {
	const good = `{"email":"ana@example.com","terms_version":"v1"}`
	big := `{"email":"ana@example.com","terms_version":"v1","terms_text":"` + strings.Repeat("x", 11<<10) + `"}`

	tests := []struct {
		name       string
		configured bool
		req        *http.Request
		status     int
		message    string
	}{
		{"wrong method wins over everything", false, termsRequest("GET", "", "", ""), http.StatusMethodNotAllowed, "Method Not Allowed"},
		{"unconfigured before auth", false, termsRequest("POST", "", "", good), http.StatusInternalServerError, ""},
		{"missing key", true, termsRequest("POST", "", "application/json", good), http.StatusUnauthorized, "Unauthorized"},
		{"wrong key before content type", true, termsRequest("POST", "nope", "text/plain", good), http.StatusUnauthorized, "Unauthorized"},
		{"wrong content type", true, termsRequest("POST", testAPIKey, "text/plain", good), http.StatusUnsupportedMediaType, "Content-Type must be application/json"},
		{"too large", true, termsRequest("POST", testAPIKey, "application/json", big), http.StatusRequestEntityTooLarge, "Payload too large (max 10KB)"},
		{"bad json", true, termsRequest("POST", testAPIKey, "application/json", "{"), http.StatusBadRequest, "Invalid JSON body"},
		{"bad email", true, termsRequest("POST", testAPIKey, "application/json", `{"email":"ana","terms_version":"v1"}`), http.StatusBadRequest, "Invalid email"},
		{"bad version", true, termsRequest("POST", testAPIKey, "application/json", `{"email":"ana@example.com"}`), http.StatusBadRequest, "Invalid terms_version"},
		{"bad metodo", true, termsRequest("POST", testAPIKey, "application/json", `{"email":"ana@example.com","terms_version":"v1","metodo":"x"}`), http.StatusBadRequest, "Invalid metodo"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := createTestServer(t)
			ts.terms.configured = tt.configured

			w := ts.do(tt.req)

			assert.Equal(t, tt.status, w.Code)
			if tt.message != "" {
				assert.Equal(t, tt.message, decodeError(t, w).Error.Message)
			}
			assert.Zero(t, ts.terms.calls)
		})
	}
}

func TestAcceptTerms_Success(t *testing.T) {
	ts := createTestServer(t)

	req := termsRequest("POST", testAPIKey, "application/json; charset=utf-8",
		`{"email":"ana@example.com","terms_version":"2024-06","metodo":"pre-payment","checkout_session_id":"cs_1"}`)
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	req.Header.Set("User-Agent", "checkout/1.0")

	w := ts.do(req)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "acc-1", body["id"])
	assert.Equal(t, "abc123", body["hmac_assinatura"])

	require.NotNil(t, ts.terms.lastReq)
	assert.Equal(t, types.TermsPrePayment, ts.terms.lastReq.Metodo)
	require.NotNil(t, ts.terms.lastInfo.IP)
	assert.Equal(t, "203.0.113.7", *ts.terms.lastInfo.IP)
	require.NotNil(t, ts.terms.lastInfo.UserAgent)
	assert.Equal(t, "checkout/1.0", *ts.terms.lastInfo.UserAgent)
}

func TestClientInfo(t *testing.T) {
	req := httptest.NewRequest("POST", "/", nil)
	req.Header.Set("CF-Connecting-IP", "198.51.100.4")

	info := clientInfo(req)
	require.NotNil(t, info.IP)
	assert.Equal(t, "198.51.100.4", *info.IP)

	info = clientInfo(httptest.NewRequest("POST", "/", nil))
	assert.Nil(t, info.IP)
}

func TestValidAPIKey(t *testing.T) {
	assert.True(t, validAPIKey("k", "k"))
	assert.False(t, validAPIKey("k", "K"))
	assert.False(t, validAPIKey("", ""))
	assert.False(t, validAPIKey("k", ""))
}

func TestPaymentWebhook(t *testing.T) {
	t.Run("wrong method", func(t *testing.T) {
		ts := createTestServer(t)
		w := ts.do(httptest.NewRequest("GET", "/api/webhooks/payment", nil))
		assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
		assert.Empty(t, ts.payments.bodies)
	})

	t.Run("unconfigured", func(t *testing.T) {
		ts := createTestServer(t)
		ts.payments.configured = false

		w := ts.do(httptest.NewRequest("POST", "/api/webhooks/payment", strings.NewReader(`{}`)))

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.JSONEq(t, `{"ok":false}`, w.Body.String())
	})

	t.Run("acknowledges with the service note", func(t *testing.T) {
		ts := createTestServer(t)
		ts.payments.ack = service.WebhookAck{OK: true, Note: service.NoteMissingEmail}

		w := ts.do(httptest.NewRequest("POST", "/functions/webhook-kiwify", strings.NewReader(`{"status":"approved"}`)))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"ok":true,"note":"missing_email"}`, w.Body.String())
		require.Len(t, ts.payments.bodies, 1)
		assert.Equal(t, `{"status":"approved"}`, string(ts.payments.bodies[0]))
	})
}

func TestProfileEndpoints(t *testing.T) {
	t.Run("get missing profile", func(t *testing.T) {
		ts := createTestServer(t)
		ts.accounts.profileErr = apperrors.NewNotFoundError("profile", testUserID)

		w := ts.do(authed("GET", "/api/profile", ""))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("ensure prefers token claims", func(t *testing.T) {
		ts := createTestServer(t)

		w := ts.do(authed("POST", "/api/profile", `{"email":"other@example.com","name":"Outra"}`))

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, []string{testUserID, "ana@example.com", "Ana"}, ts.accounts.ensured)
	})

	t.Run("ensure with empty body", func(t *testing.T) {
		ts := createTestServer(t)

		w := ts.do(authed("POST", "/api/profile", ""))
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("update rejects unknown fields", func(t *testing.T) {
		ts := createTestServer(t)

		w := ts.do(authed("PUT", "/api/profile", `{"name":"Ana","plano_ativo":true}`))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("update body too large", func(t *testing.T) {
		ts := createTestServer(t)
		body := `{"name":"` + strings.Repeat("a", maxDashboardBodyBytes) + `"}`

		w := ts.do(authed("PUT", "/api/profile", body))

		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
		assert.Equal(t, "PAYLOAD_TOO_LARGE", decodeError(t, w).Error.Code)
		assert.Nil(t, ts.accounts.updated)
	})

	t.Run("onboarding", func(t *testing.T) {
		ts := createTestServer(t)

		w := ts.do(authed("POST", "/api/profile/onboarding", `{"niche":"fitness","help_description":"posts"}`))
		require.Equal(t, http.StatusOK, w.Code)

		var p models.Profile
		require.NoError(t, json.NewDecoder(w.Body).Decode(&p))
		assert.True(t, p.OnboardingCompleted)
	})

	t.Run("requires authentication", func(t *testing.T) {
		ts := createTestServer(t)

		w := ts.do(httptest.NewRequest("GET", "/api/profile", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestHistoryEndpoints(t *testing.T) {
	t.Run("save forces owner", func(t *testing.T) {
		ts := createTestServer(t)

		w := ts.do(authed("POST", "/api/history/content",
			`{"id":"forged","user_id":"someone-else","description":"Treino","format":"post"}`))

		require.Equal(t, http.StatusCreated, w.Code)
		require.NotNil(t, ts.accounts.savedContent)
		assert.Equal(t, testUserID, ts.accounts.savedContent.UserID)
		assert.Equal(t, "content-1", ts.accounts.savedContent.ID)
	})

	t.Run("save body too large", func(t *testing.T) {
		ts := createTestServer(t)
		body := `{"description":"` + strings.Repeat("x", maxDashboardBodyBytes) + `","format":"post"}`

		w := ts.do(authed("POST", "/api/history/content", body))

		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
		assert.Nil(t, ts.accounts.savedContent)
	})

	t.Run("unknown kind", func(t *testing.T) {
		ts := createTestServer(t)

		w := ts.do(authed("POST", "/api/history/videos", `{}`))
		assert.Equal(t, http.StatusNotFound, w.Code)

		w = ts.do(authed("GET", "/api/history/videos", ""))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("list passes limit", func(t *testing.T) {
		tests := []struct {
			query string
			want  int
		}{
			{"", 0},
			{"?limit=5", 5},
			{"?limit=-3", 0},
			{"?limit=abc", 0},
			{"?limit=500", 500},
		}

		for _, tt := range tests {
			ts := createTestServer(t)
			ts.accounts.contents = []models.ContentHistory{{ID: "c1", Description: "Treino", Format: "post"}}

			w := ts.do(authed("GET", "/api/history/content"+tt.query, ""))

			require.Equal(t, http.StatusOK, w.Code, tt.query)
			assert.Equal(t, tt.want, ts.accounts.listLimit, tt.query)
			assert.Contains(t, w.Body.String(), `"items"`)
		}
	})
}

func TestAccountEndpoints(t *testing.T) {
	t.Run("billing", func(t *testing.T) {
		ts := createTestServer(t)
		ts.accounts.billing = &service.Billing{PlanoAtivo: true}

		w := ts.do(authed("GET", "/api/billing", ""))
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"plano_ativo":true`)
	})

	t.Run("export is an attachment", func(t *testing.T) {
		ts := createTestServer(t)
		ts.accounts.export = &models.AccountExport{
			ExportedAt: time.Date(2026, 3, 9, 12, 0, 0, 0, time.UTC),
			Profile:    &models.Profile{UserID: testUserID},
		}

		w := ts.do(authed("GET", "/api/account/export", ""))

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, `attachment; filename="meus-dados-clicloop-2026-03-09.json"`, w.Header().Get("Content-Disposition"))
	})

	t.Run("delete", func(t *testing.T) {
		ts := createTestServer(t)

		w := ts.do(authed("DELETE", "/api/account", ""))

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, []string{testUserID}, ts.accounts.deleted)
	})

	t.Run("urls follow the host", func(t *testing.T) {
		ts := createTestServer(t)

		req := authed("GET", "/api/urls", "")
		req.Host = "clicloop.com.br"
		w := ts.do(req)

		require.Equal(t, http.StatusOK, w.Code)
		var urls map[string]string
		require.NoError(t, json.NewDecoder(w.Body).Decode(&urls))
		assert.Equal(t, "production", urls["environment"])
		assert.Equal(t, "https://clicloop.com.br/dashboard", urls["dashboard"])
	})
}
