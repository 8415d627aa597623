//go:build !wasm

package gae_test

import (
	"context"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/datastore"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	oa "github.com/ydns/accounts"
	"github.com/ydns/accounts/stores/gae"
)

// These tests run against the Datastore emulator:
//
//	gcloud beta emulators datastore start --no-store-on-disk
//	$(gcloud beta emulators datastore env-init)
func newTestStore(t *testing.T) *gae.Store {
	t.Helper()
	if os.Getenv("DATASTORE_EMULATOR_HOST") == "" {
		t.Skip("DATASTORE_EMULATOR_HOST not set")
	}
	ctx := context.Background()
	client, err := datastore.NewClient(ctx, "ydns-test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	// A fresh namespace per test keeps runs independent.
	return gae.New(client, "t"+strings.ReplaceAll(uuid.NewString(), "-", ""))
}

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newAccount(email, alias string) *oa.Account {
	return &oa.Account{
		ID:        uuid.NewString(),
		Alias:     alias,
		Email:     email,
		Type:      oa.AccountTypeGitHub,
		IsActive:  true,
		CreatedAt: t0,
		UpdatedAt: t0,
	}
}

func TestAccountMarkers(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	a := newAccount("Bob@Example.com", "bobAlias00000001")
	require.NoError(t, store.CreateAccount(ctx, a, nil))

	got, err := store.GetAccountByEmail(ctx, "bob@example.com")
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)
	assert.Equal(t, "bob@example.com", got.Email)
	assert.Equal(t, oa.AccountTypeGitHub, got.Type)

	err = store.CreateAccount(ctx, newAccount("BOB@example.com", "otherAlias000001"), nil)
	assert.ErrorIs(t, err, oa.ErrEmailTaken)

	err = store.CreateAccount(ctx, newAccount("carol@example.com", "bobAlias00000001"), nil)
	assert.ErrorIs(t, err, oa.ErrAliasTaken)

	require.NoError(t, store.CreateDomain(ctx, &oa.Domain{Name: "bob.ydns.io", OwnerID: a.ID, Access: oa.AccessPrivate}))

	require.NoError(t, store.DeleteAccount(ctx, a.ID))
	_, err = store.GetAccountByEmail(ctx, "bob@example.com")
	assert.ErrorIs(t, err, oa.ErrNotFound)
	_, err = store.GetDomain(ctx, "bob.ydns.io")
	assert.ErrorIs(t, err, oa.ErrNotFound)
	// Markers are released with the account.
	require.NoError(t, store.CreateAccount(ctx, newAccount("bob@example.com", "bobAlias00000001"), nil))
}

func TestConcurrentCreateSameEmail(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	const n = 5
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a := newAccount("race@example.com", uuid.NewString()[:16])
			errs[i] = store.CreateAccount(ctx, a, nil)
		}()
	}
	wg.Wait()

	created := 0
	for _, err := range errs {
		if err == nil {
			created++
		}
	}
	assert.Equal(t, 1, created)
}

func TestTokensLifecycle(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	a := newAccount("dave@example.com", "daveAlias0000001")
	a.Type = oa.AccountTypeLocal
	a.IsActive = false
	activation := &oa.Token{AccountID: a.ID, Value: "act-1", Kind: oa.TokenKindActivation, CreatedAt: t0}
	require.NoError(t, store.CreateAccount(ctx, a, activation))

	since := t0.Add(-oa.TokenValidity)
	_, err := store.GetToken(ctx, oa.TokenKindPasswordReset, a.Alias, "act-1", since)
	assert.ErrorIs(t, err, oa.ErrNotFound, "kind must match")

	tok, err := store.GetToken(ctx, oa.TokenKindActivation, a.Alias, "act-1", since)
	require.NoError(t, err)
	assert.Equal(t, a.ID, tok.AccountID)

	got, err := store.ConsumeToken(ctx, oa.TokenKindActivation, a.Alias, "act-1", since, func(acc *oa.Account) error {
		acc.IsActive = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, got.IsActive)

	_, err = store.ConsumeToken(ctx, oa.TokenKindActivation, a.Alias, "act-1", since, func(*oa.Account) error { return nil })
	assert.ErrorIs(t, err, oa.ErrNotFound)

	reset := &oa.Token{AccountID: a.ID, Value: "reset-1", Kind: oa.TokenKindPasswordReset, CreatedAt: t0}
	require.NoError(t, store.CreateExclusiveToken(ctx, reset, since))
	again := &oa.Token{AccountID: a.ID, Value: "reset-2", Kind: oa.TokenKindPasswordReset, CreatedAt: t0.Add(time.Hour)}
	assert.ErrorIs(t, store.CreateExclusiveToken(ctx, again, t0.Add(time.Hour-oa.TokenValidity)), oa.ErrRequestAlreadyPending)

	later := t0.Add(25 * time.Hour)
	require.NoError(t, store.CreateExclusiveToken(ctx, again, later.Add(-oa.TokenValidity)))

	n, err := store.DeleteExpiredTokens(ctx, t0.Add(time.Minute))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestJournalAndDomains(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	a := newAccount("erin@example.com", "erinAlias0000001")
	require.NoError(t, store.CreateAccount(ctx, a, nil))

	for i, msg := range []string{"first", "second", "third"} {
		require.NoError(t, store.AddJournalEntry(ctx, &oa.JournalEntry{
			AccountID: a.ID, Message: msg, CreatedAt: t0.Add(time.Duration(i) * time.Minute),
		}))
	}
	entries, err := store.ListJournal(ctx, a.ID, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "third", entries[0].Message)

	require.NoError(t, store.ClearJournal(ctx, a.ID))
	entries, err = store.ListJournal(ctx, a.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, entries)

	for _, name := range []string{"b.ydns.io", "a.ydns.io"} {
		require.NoError(t, store.CreateDomain(ctx, &oa.Domain{
			Name: name, OwnerID: a.ID, Access: oa.AccessPrivate, CreatedAt: t0, UpdatedAt: t0,
		}))
	}
	assert.ErrorIs(t, store.CreateDomain(ctx, &oa.Domain{Name: "a.ydns.io", OwnerID: "x"}), oa.ErrDomainExists)

	domains, err := store.ListDomainsByOwner(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, domains, 2)
	assert.Equal(t, "a.ydns.io", domains[0].Name)

	require.NoError(t, store.DeleteDomain(ctx, "a.ydns.io"))
	assert.ErrorIs(t, store.DeleteDomain(ctx, "a.ydns.io"), oa.ErrNotFound)
}
