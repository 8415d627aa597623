//go:build !wasm
// +build !wasm

package gorm

import (
	"time"

	oa "github.com/ydns/accounts"
)

// AccountModel is the GORM model for accounts
type AccountModel struct {
	ID             string `gorm:"primaryKey;size:64"`
	Alias          string `gorm:"size:16;not null;uniqueIndex:idx_accounts_alias"`
	Email          string `gorm:"size:254;not null;uniqueIndex:idx_accounts_email"`
	CredentialHash string `gorm:"size:128"`
	Type           string `gorm:"size:16;not null"`
	IsActive       bool   `gorm:"not null;default:false"`
	Timezone       string `gorm:"size:64"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (AccountModel) TableName() string {
	return "accounts"
}

func (m *AccountModel) ToAccount() *oa.Account {
	return &oa.Account{
		ID:             m.ID,
		Alias:          m.Alias,
		Email:          m.Email,
		CredentialHash: m.CredentialHash,
		Type:           oa.AccountType(m.Type),
		IsActive:       m.IsActive,
		Timezone:       m.Timezone,
		CreatedAt:      m.CreatedAt.UTC(),
		UpdatedAt:      m.UpdatedAt.UTC(),
	}
}

func AccountToModel(a *oa.Account) *AccountModel {
	return &AccountModel{
		ID:             a.ID,
		Alias:          a.Alias,
		Email:          a.Email,
		CredentialHash: a.CredentialHash,
		Type:           string(a.Type),
		IsActive:       a.IsActive,
		Timezone:       a.Timezone,
		CreatedAt:      a.CreatedAt.UTC(),
		UpdatedAt:      a.UpdatedAt.UTC(),
	}
}

// TokenModel is the GORM model for activation and password reset tokens
type TokenModel struct {
	Value     string    `gorm:"primaryKey;size:64"`
	AccountID string    `gorm:"size:64;not null;index:idx_tokens_account_kind"`
	Kind      string    `gorm:"size:32;not null;index:idx_tokens_account_kind"`
	CreatedAt time.Time `gorm:"not null;index"`
}

func (TokenModel) TableName() string {
	return "tokens"
}

func (m *TokenModel) ToToken() *oa.Token {
	return &oa.Token{
		AccountID: m.AccountID,
		Value:     m.Value,
		Kind:      oa.TokenKind(m.Kind),
		CreatedAt: m.CreatedAt.UTC(),
	}
}

func TokenToModel(t *oa.Token) *TokenModel {
	return &TokenModel{
		Value:     t.Value,
		AccountID: t.AccountID,
		Kind:      string(t.Kind),
		CreatedAt: t.CreatedAt.UTC(),
	}
}

// JournalEntryModel is the GORM model for journal entries
type JournalEntryModel struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement"`
	AccountID string    `gorm:"size:64;not null;index"`
	Message   string    `gorm:"size:255;not null"`
	CreatedAt time.Time `gorm:"not null"`
}

func (JournalEntryModel) TableName() string {
	return "journal_entries"
}

func (m *JournalEntryModel) ToJournalEntry() *oa.JournalEntry {
	return &oa.JournalEntry{
		AccountID: m.AccountID,
		Message:   m.Message,
		CreatedAt: m.CreatedAt.UTC(),
	}
}

// DomainModel is the GORM model for domains
type DomainModel struct {
	Name        string `gorm:"primaryKey;size:253"`
	OwnerID     string `gorm:"size:64;not null;index"`
	Access      string `gorm:"size:16;not null"`
	PublicOwner bool   `gorm:"not null;default:false"`
	OwnerOnly   bool   `gorm:"not null;default:false"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (DomainModel) TableName() string {
	return "domains"
}

func (m *DomainModel) ToDomain() *oa.Domain {
	return &oa.Domain{
		Name:        m.Name,
		OwnerID:     m.OwnerID,
		Access:      oa.AccessPolicy(m.Access),
		PublicOwner: m.PublicOwner,
		OwnerOnly:   m.OwnerOnly,
		CreatedAt:   m.CreatedAt.UTC(),
		UpdatedAt:   m.UpdatedAt.UTC(),
	}
}

func DomainToModel(d *oa.Domain) *DomainModel {
	return &DomainModel{
		Name:        d.Name,
		OwnerID:     d.OwnerID,
		Access:      string(d.Access),
		PublicOwner: d.PublicOwner,
		OwnerOnly:   d.OwnerOnly,
		CreatedAt:   d.CreatedAt.UTC(),
		UpdatedAt:   d.UpdatedAt.UTC(),
	}
}
