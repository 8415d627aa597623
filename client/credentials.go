// Package client is a Go client for the YDNS accounts HTTP API. It logs in
// with an email and password, keeps the session token in a CredentialStore
// and sends it as a bearer token on later calls.
package client

import (
	"sync"
	"time"
)

// Credential is a session token for one server.
type Credential struct {
	Token     string    `json:"token"`
	AccountID string    `json:"account_id"`
	Alias     string    `json:"alias,omitempty"`
	Email     string    `json:"email,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IsExpired reports whether the token is past its expiry at now. A zero
// expiry never expires.
func (c *Credential) IsExpired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}

// CredentialStore keeps credentials per server URL.
type CredentialStore interface {
	// GetCredential returns nil, nil when the server has no credential.
	GetCredential(serverURL string) (*Credential, error)
	SetCredential(serverURL string, cred *Credential) error
	RemoveCredential(serverURL string) error
	ListServers() ([]string, error)

	// Save persists pending changes, for stores that batch writes.
	Save() error
}

// MemoryStore is a CredentialStore that lives as long as the process.
type MemoryStore struct {
	mu      sync.RWMutex
	servers map[string]*Credential
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{servers: make(map[string]*Credential)}
}

func (s *MemoryStore) GetCredential(serverURL string) (*Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.servers[serverURL], nil
}

func (s *MemoryStore) SetCredential(serverURL string, cred *Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.servers[serverURL] = cred
	return nil
}

func (s *MemoryStore) RemoveCredential(serverURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.servers, serverURL)
	return nil
}

func (s *MemoryStore) ListServers() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.servers))
	for k := range s.servers {
		out = append(out, k)
	}
	return out, nil
}

func (s *MemoryStore) Save() error { return nil }
