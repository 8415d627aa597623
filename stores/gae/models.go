//go:build !wasm
// +build !wasm

package gae

import (
	"time"

	"cloud.google.com/go/datastore"
	oa "github.com/ydns/accounts"
)

// AccountEntity is the Datastore entity for accounts, keyed by account id.
type AccountEntity struct {
	Key            *datastore.Key `datastore:"__key__"`
	Alias          string         `datastore:"alias"`
	Email          string         `datastore:"email"`
	CredentialHash string         `datastore:"credential_hash,noindex"`
	Type           string         `datastore:"type"`
	IsActive       bool           `datastore:"is_active"`
	Timezone       string         `datastore:"timezone,noindex"`
	CreatedAt      time.Time      `datastore:"created_at"`
	UpdatedAt      time.Time      `datastore:"updated_at"`
}

func (e *AccountEntity) ToAccount() *oa.Account {
	return &oa.Account{
		ID:             e.Key.Name,
		Alias:          e.Alias,
		Email:          e.Email,
		CredentialHash: e.CredentialHash,
		Type:           oa.AccountType(e.Type),
		IsActive:       e.IsActive,
		Timezone:       e.Timezone,
		CreatedAt:      e.CreatedAt.UTC(),
		UpdatedAt:      e.UpdatedAt.UTC(),
	}
}

func AccountToEntity(a *oa.Account, key *datastore.Key) *AccountEntity {
	return &AccountEntity{
		Key:            key,
		Alias:          a.Alias,
		Email:          oa.NormalizeEmail(a.Email),
		CredentialHash: a.CredentialHash,
		Type:           string(a.Type),
		IsActive:       a.IsActive,
		Timezone:       a.Timezone,
		CreatedAt:      a.CreatedAt.UTC(),
		UpdatedAt:      a.UpdatedAt.UTC(),
	}
}

// MarkerEntity reserves a unique value (email or alias) for one account.
// Key format: the reserved value itself.
type MarkerEntity struct {
	AccountID string `datastore:"account_id"`
}

// TokenEntity is the Datastore entity for tokens. Tokens are children of
// their account so that per-account queries can run inside a transaction.
type TokenEntity struct {
	Key       *datastore.Key `datastore:"__key__"`
	Kind      string         `datastore:"kind"`
	CreatedAt time.Time      `datastore:"created_at"`
}

func (e *TokenEntity) ToToken() *oa.Token {
	return &oa.Token{
		AccountID: e.Key.Parent.Name,
		Value:     e.Key.Name,
		Kind:      oa.TokenKind(e.Kind),
		CreatedAt: e.CreatedAt.UTC(),
	}
}

// JournalEntity is one journal line, a child of its account.
type JournalEntity struct {
	Message   string    `datastore:"message,noindex"`
	CreatedAt time.Time `datastore:"created_at"`
}

// DomainEntity is the Datastore entity for domains, keyed by name.
type DomainEntity struct {
	Key         *datastore.Key `datastore:"__key__"`
	OwnerID     string         `datastore:"owner_id"`
	Access      string         `datastore:"access,noindex"`
	PublicOwner bool           `datastore:"public_owner,noindex"`
	OwnerOnly   bool           `datastore:"owner_only,noindex"`
	CreatedAt   time.Time      `datastore:"created_at"`
	UpdatedAt   time.Time      `datastore:"updated_at"`
}

func (e *DomainEntity) ToDomain() *oa.Domain {
	return &oa.Domain{
		Name:        e.Key.Name,
		OwnerID:     e.OwnerID,
		Access:      oa.AccessPolicy(e.Access),
		PublicOwner: e.PublicOwner,
		OwnerOnly:   e.OwnerOnly,
		CreatedAt:   e.CreatedAt.UTC(),
		UpdatedAt:   e.UpdatedAt.UTC(),
	}
}

func DomainToEntity(d *oa.Domain, key *datastore.Key) *DomainEntity {
	return &DomainEntity{
		Key:         key,
		OwnerID:     d.OwnerID,
		Access:      string(d.Access),
		PublicOwner: d.PublicOwner,
		OwnerOnly:   d.OwnerOnly,
		CreatedAt:   d.CreatedAt.UTC(),
		UpdatedAt:   d.UpdatedAt.UTC(),
	}
}
