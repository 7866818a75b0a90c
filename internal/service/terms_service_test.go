package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	apperrors "github.com/clicloop/internal/errors"
	"github.com/clicloop/internal/models"
	"github.com/clicloop/internal/storage"
	"github.com/clicloop/internal/types"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockTermsRepo struct {
	records   map[string]*models.TermsAcceptance
	seq       int
	insertErr error
	signErr   error
}

func newMockTermsRepo() *mockTermsRepo {
	return &mockTermsRepo{records: map[string]*models.TermsAcceptance{}}
}

func (m *mockTermsRepo) Insert(_ context.Context, a *models.TermsAcceptance) error {
	if m.insertErr != nil {
		return m.insertErr
	}
	m.seq++
	a.ID = fmt.Sprintf("aceite-%d", m.seq)
	a.CreatedAt = time.Date(2026, 3, 1, 12, 0, 0, m.seq*1000, time.UTC)
	stored := *a
	m.records[a.ID] = &stored
	return nil
}

func (m *mockTermsRepo) SetSignature(_ context.Context, id, signature string) error {
	if m.signErr != nil {
		return m.signErr
	}
	rec, ok := m.records[id]
	if !ok || rec.HMACAssinatura != nil {
		return storage.ErrNotFound
	}
	rec.HMACAssinatura = &signature
	return nil
}

func (m *mockTermsRepo) GetByID(_ context.Context, id string) (*models.TermsAcceptance, error) {
	rec, ok := m.records[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	copied := *rec
	return &copied, nil
}

type mockAuditRepo struct {
	entries []*models.AuditLog
	err     error
}

func (m *mockAuditRepo) Insert(_ context.Context, entry *models.AuditLog) error {
	m.entries = append(m.entries, entry)
	return m.err
}

type staticFetcher struct {
	text string
	err  error
}

func (f staticFetcher) Fetch(context.Context) (string, error) { return f.text, f.err }

func TestParseAcceptTermsRequest(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"invalid json", `{"email":`, "Invalid JSON body"},
		{"missing email", `{"terms_version":"v1"}`, "Invalid email"},
		{"bad email", `{"email":"no-at-sign","terms_version":"v1"}`, "Invalid email"},
		{"non-object body", `[1,2]`, "Invalid email"},
		{"missing version", `{"email":"a@b.co"}`, "Invalid terms_version"},
		{"long version", fmt.Sprintf(`{"email":"a@b.co","terms_version":%q}`, strings.Repeat("v", 101)), "Invalid terms_version"},
		{"bad metodo", `{"email":"a@b.co","terms_version":"v1","metodo":"later"}`, "Invalid metodo"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseAcceptTermsRequest([]byte(tt.body))
			require.Error(t, err)
			catErr := apperrors.Categorize(err)
			assert.Equal(t, http.StatusBadRequest, catErr.StatusCode)
			assert.Equal(t, tt.wantErr, catErr.Message)
		})
	}

	t.Run("defaults and optionals", func(t *testing.T) {
		req, err := ParseAcceptTermsRequest([]byte(`{"email":"a@b.co","terms_version":"v1","user_id":"u-1","checkout_session_id":42}`))
		require.NoError(t, err)
		assert.Equal(t, types.TermsPostPayment, req.Metodo)
		require.NotNil(t, req.UserID)
		assert.Equal(t, "u-1", *req.UserID)
		assert.Nil(t, req.CheckoutSessionID)
	})
}

func TestAcceptTwoPhaseWrite(t *testing.T) {
	repo := newMockTermsRepo()
	audit := &mockAuditRepo{}
	svc := NewTermsService(repo, audit, nil, "server-secret", quietLogger())

	ip := "203.0.113.9"
	req := &AcceptTermsRequest{Email: "a@b.co", TermsVersion: "v1", Metodo: types.TermsPrePayment, TermsText: "Termos de uso"}
	result, err := svc.Accept(context.Background(), req, ClientInfo{IP: &ip})
	require.NoError(t, err)

	assert.True(t, result.Success)
	stored := repo.records[result.ID]
	require.NotNil(t, stored.HMACAssinatura)
	assert.Equal(t, result.HMACAssinatura, *stored.HMACAssinatura)
	assert.Equal(t, HashTerms("Termos de uso"), stored.TermsHash)
	assert.Equal(t, Sign("server-secret", stored.ID, "a@b.co", stored.TermsHash, stored.CreatedAt), result.HMACAssinatura)
	assert.True(t, stored.Consentido)
	assert.True(t, svc.Verify(stored))

	require.Len(t, audit.entries, 1)
	assert.Equal(t, models.AuditTermsAccepted, audit.entries[0].Acao)
	assert.Equal(t, result.ID, audit.entries[0].Detalhes["aceite_id"])
}

func TestAcceptKeepsFreeTextUserID(t *testing.T) {
	repo := newMockTermsRepo()
	audit := &mockAuditRepo{}
	svc := NewTermsService(repo, audit, staticFetcher{text: "t"}, "s", quietLogger())

	req, err := ParseAcceptTermsRequest([]byte(`{"email":"a@b.co","terms_version":"v1","user_id":"checkout-user-42"}`))
	require.NoError(t, err)

	result, err := svc.Accept(context.Background(), req, ClientInfo{})
	require.NoError(t, err)

	stored := repo.records[result.ID]
	require.NotNil(t, stored.UserID)
	assert.Equal(t, "checkout-user-42", *stored.UserID)

	require.Len(t, audit.entries, 1)
	assert.Equal(t, "checkout-user-42", audit.entries[0].Detalhes["user_id"])
}

func TestAcceptSameTextGetsDistinctSignatures(t *testing.T) {
	repo := newMockTermsRepo()
	svc := NewTermsService(repo, nil, nil, "s", quietLogger())
	req := &AcceptTermsRequest{Email: "a@b.co", TermsVersion: "v1", TermsText: "mesmo texto"}

	first, err := svc.Accept(context.Background(), req, ClientInfo{})
	require.NoError(t, err)
	second, err := svc.Accept(context.Background(), req, ClientInfo{})
	require.NoError(t, err)

	assert.Equal(t, repo.records[first.ID].TermsHash, repo.records[second.ID].TermsHash)
	assert.NotEqual(t, first.ID, second.ID)
	assert.NotEqual(t, first.HMACAssinatura, second.HMACAssinatura)
}

func TestAcceptFailures(t *testing.T) {
	req := &AcceptTermsRequest{Email: "a@b.co", TermsVersion: "v1"}

	t.Run("unconfigured", func(t *testing.T) {
		svc := NewTermsService(newMockTermsRepo(), nil, nil, "", quietLogger())
		_, err := svc.Accept(context.Background(), req, ClientInfo{})
		assert.Equal(t, http.StatusInternalServerError, apperrors.GetHTTPStatusCode(err))
	})

	t.Run("no terms url", func(t *testing.T) {
		svc := NewTermsService(newMockTermsRepo(), nil, nil, "s", quietLogger())
		_, err := svc.Accept(context.Background(), req, ClientInfo{})
		assert.Equal(t, http.StatusInternalServerError, apperrors.GetHTTPStatusCode(err))
	})

	t.Run("fetch failure is bad gateway", func(t *testing.T) {
		svc := NewTermsService(newMockTermsRepo(), nil, staticFetcher{err: ErrTermsUnavailable}, "s", quietLogger())
		_, err := svc.Accept(context.Background(), req, ClientInfo{})
		assert.Equal(t, http.StatusBadGateway, apperrors.GetHTTPStatusCode(err))
		assert.Equal(t, "Could not fetch terms", apperrors.Categorize(err).Message)
	})

	t.Run("fetched text is hashed", func(t *testing.T) {
		repo := newMockTermsRepo()
		svc := NewTermsService(repo, nil, staticFetcher{text: "publicado"}, "s", quietLogger())
		result, err := svc.Accept(context.Background(), req, ClientInfo{})
		require.NoError(t, err)
		assert.Equal(t, HashTerms("publicado"), repo.records[result.ID].TermsHash)
	})

	t.Run("insert failure", func(t *testing.T) {
		repo := newMockTermsRepo()
		repo.insertErr = errors.New("connection refused")
		svc := NewTermsService(repo, nil, staticFetcher{text: "t"}, "s", quietLogger())
		_, err := svc.Accept(context.Background(), req, ClientInfo{})
		assert.Equal(t, "Failed to insert acceptance", apperrors.Categorize(err).Message)
	})

	t.Run("signing failure leaves row unsigned", func(t *testing.T) {
		repo := newMockTermsRepo()
		repo.signErr = errors.New("timeout")
		audit := &mockAuditRepo{}
		svc := NewTermsService(repo, audit, staticFetcher{text: "t"}, "s", quietLogger())
		_, err := svc.Accept(context.Background(), req, ClientInfo{})
		assert.Equal(t, "Failed to finalize acceptance", apperrors.Categorize(err).Message)
		require.Len(t, repo.records, 1)
		for _, rec := range repo.records {
			assert.Nil(t, rec.HMACAssinatura)
		}
		assert.Empty(t, audit.entries)
	})

	t.Run("audit failure is ignored", func(t *testing.T) {
		svc := NewTermsService(newMockTermsRepo(), &mockAuditRepo{err: errors.New("boom")}, staticFetcher{text: "t"}, "s", quietLogger())
		_, err := svc.Accept(context.Background(), req, ClientInfo{})
		assert.NoError(t, err)
	})
}

func TestVerifyDetectsTampering(t *testing.T) {
	repo := newMockTermsRepo()
	svc := NewTermsService(repo, nil, nil, "s", quietLogger())
	result, err := svc.Accept(context.Background(), &AcceptTermsRequest{Email: "a@b.co", TermsVersion: "v1", TermsText: "original"}, ClientInfo{})
	require.NoError(t, err)

	ok, err := svc.VerifyByID(context.Background(), result.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	rec := repo.records[result.ID]
	rec.Email = "other@b.co"
	ok, err = svc.VerifyByID(context.Background(), result.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHTTPTermsFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte("Termos v2"))
	}))
	defer srv.Close()

	text, err := NewHTTPTermsFetcher(srv.URL+"/termos", time.Second).Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Termos v2", text)

	_, err = NewHTTPTermsFetcher(srv.URL+"/missing", time.Second).Fetch(context.Background())
	assert.True(t, errors.Is(err, ErrTermsUnavailable))
}

func TestHTTPTermsFetcher_RetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("Termos v3"))
	}))
	defer srv.Close()

	f := NewHTTPTermsFetcher(srv.URL, time.Second)
	f.retry.InitialDelay = time.Millisecond

	text, err := f.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Termos v3", text)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestHTTPTermsFetcher_ClientErrorIsNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := NewHTTPTermsFetcher(srv.URL, time.Second).Fetch(context.Background())
	assert.ErrorIs(t, err, ErrTermsUnavailable)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestTermsHashAndSignatureProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)
	createdAt := time.Date(2026, 1, 2, 3, 4, 5, 123456000, time.UTC)

	properties.Property("hash is deterministic and hex sha-256 sized", prop.ForAll(
		func(text string) bool {
			h := HashTerms(text)
			return h == HashTerms(text) && len(h) == 64
		},
		gen.AnyString(),
	))

	properties.Property("distinct ids give distinct signatures for the same hash", prop.ForAll(
		func(text string, a, b int) bool {
			if a == b {
				return true
			}
			h := HashTerms(text)
			sa := Sign("secret", fmt.Sprintf("id-%d", a), "a@b.co", h, createdAt)
			sb := Sign("secret", fmt.Sprintf("id-%d", b), "a@b.co", h, createdAt)
			return sa != sb
		},
		gen.AnyString(),
		gen.IntRange(0, 1_000_000),
		gen.IntRange(0, 1_000_000),
	))

	properties.TestingRun(t)
}
