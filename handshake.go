package accounts

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"

	"github.com/ydns/accounts/oauth2"
)

// providerAccountTypes maps a provider's path name to the account type it
// creates and signs into.
var providerAccountTypes = map[string]AccountType{
	"facebook": AccountTypeFacebook,
	"github":   AccountTypeGitHub,
	"google":   AccountTypeGoogle,
}

// Handshake runs the provider round trip: Begin stores a fresh state in the
// session and redirects, Complete checks it and yields the verified email.
type Handshake struct {
	Session   SessionStore
	Providers map[string]oauth2.Provider
}

// NewHandshake registers providers under their Name().
func NewHandshake(session SessionStore, providers ...oauth2.Provider) *Handshake {
	h := &Handshake{Session: session, Providers: make(map[string]oauth2.Provider)}
	for _, p := range providers {
		h.Providers[p.Name()] = p
	}
	return h
}

func stateKey(provider string) string {
	return "oauth_state:" + provider
}

// Provider looks up a registered provider and the account type it maps to.
func (h *Handshake) Provider(name string) (oauth2.Provider, AccountType, error) {
	p, ok := h.Providers[name]
	if !ok {
		return nil, "", ErrUnknownProvider
	}
	accountType, ok := providerAccountTypes[name]
	if !ok {
		return nil, "", ErrUnknownProvider
	}
	return p, accountType, nil
}

// Begin returns the provider authorization URL after storing a new state for
// provider in the session. A previous unfinished round trip is superseded.
func (h *Handshake) Begin(ctx context.Context, provider string) (string, error) {
	p, _, err := h.Provider(provider)
	if err != nil {
		return "", err
	}
	state, err := oauth2.GenerateState()
	if err != nil {
		return "", err
	}
	h.Session.Put(ctx, stateKey(provider), state)
	return p.AuthCodeURL(state), nil
}

// Complete validates a provider callback and returns the account email and
// the account type of the channel. The stored state is removed before
// anything else is checked, so every state is good for one callback only.
func (h *Handshake) Complete(ctx context.Context, provider, state, code string) (string, AccountType, error) {
	p, accountType, err := h.Provider(provider)
	if err != nil {
		return "", "", err
	}
	stored := h.Session.PopString(ctx, stateKey(provider))

	if state == "" || code == "" {
		return "", "", ErrMissingParameter
	}
	if stored == "" || subtle.ConstantTimeCompare([]byte(stored), []byte(state)) != 1 {
		slog.Warn("oauth state mismatch", "provider", provider)
		return "", "", ErrStateMismatch
	}

	token, err := p.Exchange(ctx, code)
	if err != nil {
		slog.Warn("oauth code exchange failed", "provider", provider, "error", err)
		return "", "", errors.Join(ErrProvider, err)
	}
	email, err := p.FetchEmail(ctx, token)
	if errors.Is(err, oauth2.ErrNoEmail) {
		slog.Info("oauth profile has no account email", "provider", provider)
		return "", "", ErrNoVerifiedEmail
	}
	if err != nil {
		slog.Warn("oauth profile fetch failed", "provider", provider, "error", err)
		return "", "", errors.Join(ErrProvider, err)
	}
	return NormalizeEmail(email), accountType, nil
}
