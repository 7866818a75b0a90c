// Package client calls the ClicLoop HTTP API on behalf of a signed-in user.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/clicloop/internal/models"
	"github.com/clicloop/internal/service"
	"github.com/clicloop/internal/session"
	"github.com/clicloop/internal/types"
)

// DefaultTimeout covers a full generation round trip
const DefaultTimeout = 90 * time.Second

// ErrNotSignedIn is returned before any request when the store has no session
var ErrNotSignedIn = errors.New("not signed in")

// APIError is a non-2xx response decoded from the error envelope
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Details    map[string]interface{}
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("api error: status=%d", e.StatusCode)
	}
	return fmt.Sprintf("api error: status=%d code=%s: %s", e.StatusCode, e.Code, e.Message)
}

// Violations returns the field violations of a 400 validation response
func (e *APIError) Violations() []types.FieldViolation {
	raw, ok := e.Details["fields"]
	if !ok {
		return nil
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return nil
	}
	var out []types.FieldViolation
	if err := json.Unmarshal(b, &out); err != nil {
		return nil
	}
	return out
}

// Config holds client configuration
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client is an authenticated API client. The bearer token is read from the session
// store on every request.
type Client struct {
	baseURL    string
	httpClient *http.Client
	store      *session.Store
}

// New creates a Client
func New(cfg Config, store *session.Store) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: httpClient,
		store:      store,
	}
}

// GenerateRequest is the AI proxy request body
type GenerateRequest struct {
	Prompt string           `json:"prompt"`
	Type   types.ToolKind   `json:"type"`
	Data   service.ToolData `json:"data,omitempty"`
}

// Generate calls the AI proxy
func (c *Client) Generate(ctx context.Context, kind types.ToolKind, prompt string, data service.ToolData) (*service.GenerationResult, error) {
	var out service.GenerationResult
	req := GenerateRequest{Prompt: prompt, Type: kind, Data: data}
	if err := c.do(ctx, http.MethodPost, "/api/ai/generate", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetProfile returns the signed-in user's profile
func (c *Client) GetProfile(ctx context.Context) (*models.Profile, error) {
	var p models.Profile
	if err := c.do(ctx, http.MethodGet, "/api/profile", nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// ProfileFor loads the profile with sess's token rather than the store's current
// one, for use by a session.ProfileResolver.
func (c *Client) ProfileFor(ctx context.Context, sess *session.Session) (*models.Profile, error) {
	var p models.Profile
	if err := c.doWithToken(ctx, sess.AccessToken, http.MethodGet, "/api/profile", nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// EnsureProfile creates the profile if it does not exist yet
func (c *Client) EnsureProfile(ctx context.Context) (*models.Profile, error) {
	var p models.Profile
	if err := c.do(ctx, http.MethodPost, "/api/profile", nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// UpdateProfile saves account settings and refreshes the store's profile
func (c *Client) UpdateProfile(ctx context.Context, upd models.ProfileUpdate) (*models.Profile, error) {
	var p models.Profile
	if err := c.do(ctx, http.MethodPut, "/api/profile", upd, &p); err != nil {
		return nil, err
	}
	c.store.UpdateProfile(&p)
	return &p, nil
}

// CompleteOnboarding submits the onboarding answers
func (c *Client) CompleteOnboarding(ctx context.Context, answers models.OnboardingAnswers) (*models.Profile, error) {
	var p models.Profile
	if err := c.do(ctx, http.MethodPost, "/api/profile/onboarding", answers, &p); err != nil {
		return nil, err
	}
	c.store.UpdateProfile(&p)
	return &p, nil
}

// SaveHistory appends row to the history of kind ("content", "prompts", "campaigns"
// or "chat"). The server echoes the stored row back into row.
func (c *Client) SaveHistory(ctx context.Context, kind string, row interface{}) error {
	return c.do(ctx, http.MethodPost, "/api/history/"+url.PathEscape(kind), row, row)
}

// ListHistory decodes the newest rows of kind into out, which must point to a slice
func (c *Client) ListHistory(ctx context.Context, kind string, limit int, out interface{}) error {
	path := "/api/history/" + url.PathEscape(kind)
	if limit > 0 {
		path += fmt.Sprintf("?limit=%d", limit)
	}

	var envelope struct {
		Items json.RawMessage `json:"items"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &envelope); err != nil {
		return err
	}
	return json.Unmarshal(envelope.Items, out)
}

// Billing returns the plan state
func (c *Client) Billing(ctx context.Context) (*service.Billing, error) {
	var b service.Billing
	if err := c.do(ctx, http.MethodGet, "/api/billing", nil, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// Export downloads the account export. It returns the raw JSON document and the
// file name suggested by the server.
func (c *Client) Export(ctx context.Context) ([]byte, string, error) {
	resp, err := c.send(ctx, c.store.Token(), http.MethodGet, "/api/account/export", nil)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read export: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		return nil, "", decodeAPIError(resp.StatusCode, body)
	}

	filename := ""
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil {
		filename = params["filename"]
	}
	return body, filename, nil
}

// DeleteAccount permanently deletes the account and signs out
func (c *Client) DeleteAccount(ctx context.Context) error {
	if err := c.do(ctx, http.MethodDelete, "/api/account", nil, nil); err != nil {
		return err
	}
	c.store.Clear()
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	return c.doWithToken(ctx, c.store.Token(), method, path, in, out)
}

func (c *Client) doWithToken(ctx context.Context, token, method, path string, in, out interface{}) error {
	resp, err := c.send(ctx, token, method, path, in)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode/100 != 2 {
		return decodeAPIError(resp.StatusCode, body)
	}

	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, token, method, path string, in interface{}) (*http.Response, error) {
	if token == "" {
		return nil, ErrNotSignedIn
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s %s failed: %w", method, path, err)
	}
	return resp, nil
}

func decodeAPIError(status int, body []byte) error {
	var envelope struct {
		Error types.ServiceError `json:"error"`
	}
	apiErr := &APIError{StatusCode: status}
	if err := json.Unmarshal(body, &envelope); err == nil {
		apiErr.Code = envelope.Error.Code
		apiErr.Message = envelope.Error.Message
		apiErr.Details = envelope.Error.Details
	}
	return apiErr
}
