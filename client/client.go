package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// ErrNotLoggedIn is returned by calls that need a session when the store
// holds no live credential.
var ErrNotLoggedIn = errors.New("not logged in")

// APIError is a failure answered by the server.
type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"error"`
	Field      string `json:"field,omitempty"`
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("ydns: HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("ydns: %s (%s)", e.Message, e.Code)
}

// Domain is a domain as the API presents it.
type Domain struct {
	Name        string    `json:"name"`
	AccessType  string    `json:"access_type"`
	Owner       string    `json:"owner,omitempty"`
	OwnerOnly   bool      `json:"owner_only"`
	Permissions string    `json:"permissions"`
	CreatedAt   time.Time `json:"created_at"`
}

// DomainRequest is the input of CreateDomain.
type DomainRequest struct {
	Name        string `json:"name"`
	AccessType  string `json:"access_type,omitempty"`
	PublicOwner bool   `json:"public_owner,omitempty"`
	OwnerOnly   bool   `json:"owner_only,omitempty"`
}

type JournalEntry struct {
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient copies the timeout and cookie jar of c. Its transport, if
// any, becomes the base transport.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c == nil {
			return
		}
		if c.Transport != nil {
			cl.baseTransport = c.Transport
		}
		cl.httpClient.Timeout = c.Timeout
		cl.httpClient.Jar = c.Jar
	}
}

// WithTransport sets the base transport requests go through.
func WithTransport(rt http.RoundTripper) Option {
	return func(cl *Client) {
		cl.baseTransport = rt
	}
}

// WithClock overrides the time source used for credential expiry.
func WithClock(now func() time.Time) Option {
	return func(cl *Client) {
		cl.now = now
	}
}

// Client talks to one accounts server.
type Client struct {
	mu            sync.Mutex
	serverURL     string
	store         CredentialStore
	httpClient    *http.Client
	baseTransport http.RoundTripper
	now           func() time.Time
}

// New creates a client for serverURL. Only the scheme and host of serverURL
// are kept; credentials are stored under that origin.
func New(serverURL string, store CredentialStore, opts ...Option) *Client {
	if u, err := url.Parse(serverURL); err == nil && u.Scheme != "" && u.Host != "" {
		serverURL = u.Scheme + "://" + u.Host
	}
	if store == nil {
		store = NewMemoryStore()
	}
	c := &Client{
		serverURL:     strings.TrimSuffix(serverURL, "/"),
		store:         store,
		httpClient:    &http.Client{},
		baseTransport: http.DefaultTransport,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.httpClient.Transport = &bearerTransport{client: c, base: c.baseTransport}
	return c
}

// HTTPClient returns an http.Client that authenticates as the logged in
// account.
func (c *Client) HTTPClient() *http.Client { return c.httpClient }

func (c *Client) ServerURL() string { return c.serverURL }

// Token returns the live session token, or "" when there is none.
func (c *Client) Token() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cred, err := c.store.GetCredential(c.serverURL)
	if err != nil || cred == nil {
		return "", err
	}
	if cred.IsExpired(c.now()) {
		return "", nil
	}
	return cred.Token, nil
}

// Credential returns the stored credential, expired or not.
func (c *Client) Credential() (*Credential, error) {
	return c.store.GetCredential(c.serverURL)
}

func (c *Client) IsLoggedIn() bool {
	token, err := c.Token()
	return err == nil && token != ""
}

type loginResponse struct {
	AccountID string    `json:"account_id"`
	Alias     string    `json:"alias"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Login checks email and password with the server and stores the session
// token it answers.
func (c *Client) Login(ctx context.Context, email, password string) (*Credential, error) {
	var resp loginResponse
	err := c.call(ctx, c.unauthenticated(), http.MethodPost, "/accounts/login",
		map[string]string{"email": email, "password": password}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.Token == "" {
		return nil, errors.New("ydns: server did not issue a session token")
	}
	cred := &Credential{
		Token:     resp.Token,
		AccountID: resp.AccountID,
		Alias:     resp.Alias,
		Email:     email,
		ExpiresAt: resp.ExpiresAt,
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.store.SetCredential(c.serverURL, cred); err != nil {
		return nil, fmt.Errorf("failed to store credential: %w", err)
	}
	if err := c.store.Save(); err != nil {
		return nil, fmt.Errorf("failed to save credentials: %w", err)
	}
	return cred, nil
}

// Logout forgets the stored credential.
func (c *Client) Logout() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.store.RemoveCredential(c.serverURL); err != nil {
		return err
	}
	return c.store.Save()
}

func (c *Client) forget() {
	if err := c.Logout(); err != nil {
		slog.Warn("failed to drop rejected credential", "server", c.serverURL, "error", err)
	}
}

// Signup registers a local account. The account stays inactive until the
// mailed activation link is followed.
func (c *Client) Signup(ctx context.Context, email, password string) error {
	return c.call(ctx, c.unauthenticated(), http.MethodPost, "/accounts/signup",
		map[string]string{"email": email, "password": password, "repeat": password}, nil)
}

// RequestPasswordReset asks the server to mail a reset link to email.
func (c *Client) RequestPasswordReset(ctx context.Context, email string) error {
	return c.call(ctx, c.unauthenticated(), http.MethodPost, "/accounts/reset-password",
		map[string]string{"email": email}, nil)
}

func (c *Client) ListDomains(ctx context.Context) ([]Domain, error) {
	if !c.IsLoggedIn() {
		return nil, ErrNotLoggedIn
	}
	var out struct {
		Domains []Domain `json:"domains"`
	}
	if err := c.call(ctx, c.httpClient, http.MethodGet, "/domains", nil, &out); err != nil {
		return nil, err
	}
	return out.Domains, nil
}

// GetDomain works anonymously too; the answered permissions reflect the
// requester.
func (c *Client) GetDomain(ctx context.Context, name string) (*Domain, error) {
	var out Domain
	if err := c.call(ctx, c.httpClient, http.MethodGet, "/domains/"+url.PathEscape(name), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreateDomain(ctx context.Context, req DomainRequest) (*Domain, error) {
	if !c.IsLoggedIn() {
		return nil, ErrNotLoggedIn
	}
	var out Domain
	if err := c.call(ctx, c.httpClient, http.MethodPost, "/domains", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteDomain(ctx context.Context, name string) error {
	if !c.IsLoggedIn() {
		return ErrNotLoggedIn
	}
	return c.call(ctx, c.httpClient, http.MethodPost, "/domains/"+url.PathEscape(name)+"/delete", nil, nil)
}

// Journal returns the account's journal, newest first.
func (c *Client) Journal(ctx context.Context) ([]JournalEntry, error) {
	if !c.IsLoggedIn() {
		return nil, ErrNotLoggedIn
	}
	var out struct {
		Entries []JournalEntry `json:"entries"`
	}
	if err := c.call(ctx, c.httpClient, http.MethodGet, "/accounts/settings/journal", nil, &out); err != nil {
		return nil, err
	}
	return out.Entries, nil
}

func (c *Client) unauthenticated() *http.Client {
	return &http.Client{Transport: c.baseTransport, Timeout: c.httpClient.Timeout}
}

// call sends body as JSON and decodes a 2xx answer into out. Other answers
// become an *APIError.
func (c *Client) call(ctx context.Context, hc *http.Client, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.serverURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		_ = json.Unmarshal(data, apiErr)
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("invalid response from server: %w", err)
	}
	return nil
}
