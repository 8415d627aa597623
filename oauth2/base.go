// Package oauth2 implements the authorization-code flow against the
// supported identity providers. Each provider exchanges a code for an access
// token and extracts the account holder's email from its profile endpoint.
package oauth2

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

// ErrNoEmail is returned by FetchEmail when the profile carries no usable
// account email.
var ErrNoEmail = errors.New("no account email in provider profile")

// DefaultTimeout bounds each provider call when no HTTPClient is set.
const DefaultTimeout = 10 * time.Second

// Provider is one identity provider variant.
type Provider interface {
	// Name is the provider's path name: "facebook", "github" or "google".
	Name() string

	// AuthCodeURL returns the provider authorization URL carrying state.
	AuthCodeURL(state string) string

	// Exchange trades an authorization code for an access token.
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)

	// FetchEmail loads the profile with token and returns the account email.
	FetchEmail(ctx context.Context, token *oauth2.Token) (string, error)
}

type BaseOAuth2 struct {
	ClientId     string
	ClientSecret string
	CallbackURL  string

	// ProfileURL is fetched with the access token. Can be overridden for
	// testing.
	ProfileURL string

	// HTTPClient is used for the exchange and the profile fetch. Defaults to
	// a client with Timeout.
	HTTPClient *http.Client

	// Timeout applies to the default client. Zero means DefaultTimeout.
	Timeout time.Duration

	oauthConfig oauth2.Config
}

func NewBaseOAuth2(clientId, clientSecret, callbackUrl string, endpoint oauth2.Endpoint, scopes ...string) *BaseOAuth2 {
	return &BaseOAuth2{
		ClientId:     clientId,
		ClientSecret: clientSecret,
		CallbackURL:  callbackUrl,
		oauthConfig: oauth2.Config{
			ClientID:     clientId,
			ClientSecret: clientSecret,
			RedirectURL:  callbackUrl,
			Scopes:       scopes,
			Endpoint:     endpoint,
		},
	}
}

// SetEndpoint replaces the provider's authorization and token URLs.
func (b *BaseOAuth2) SetEndpoint(endpoint oauth2.Endpoint) {
	b.oauthConfig.Endpoint = endpoint
}

// Scopes returns the scopes requested at authorization.
func (b *BaseOAuth2) Scopes() []string {
	return b.oauthConfig.Scopes
}

func (b *BaseOAuth2) AuthCodeURL(state string) string {
	return b.oauthConfig.AuthCodeURL(state)
}

func (b *BaseOAuth2) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	tok, err := b.oauthConfig.Exchange(b.exchangeContext(ctx), code)
	if err != nil {
		return nil, fmt.Errorf("code exchange failed: %w", err)
	}
	return tok, nil
}

func (b *BaseOAuth2) exchangeContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, b.httpClient())
}

func (b *BaseOAuth2) httpClient() *http.Client {
	if b.HTTPClient != nil {
		return b.HTTPClient
	}
	timeout := b.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

// fetchProfile GETs ProfileURL with the access token and decodes the JSON
// body into out.
func (b *BaseOAuth2) fetchProfile(ctx context.Context, token *oauth2.Token, out any) error {
	if token == nil || token.AccessToken == "" {
		return errors.New("missing access token")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.ProfileURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := b.httpClient().Do(req)
	if err != nil {
		return fmt.Errorf("failed getting profile: %w", err)
	}
	defer resp.Body.Close()

	contents, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("profile request failed with status %d", resp.StatusCode)
	}
	if err := json.Unmarshal(contents, out); err != nil {
		return fmt.Errorf("failed to parse profile: %w", err)
	}
	return nil
}

var (
	_ Provider = (*FacebookOAuth2)(nil)
	_ Provider = (*GithubOAuth2)(nil)
	_ Provider = (*GoogleOAuth2)(nil)
)
