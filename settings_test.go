package accounts_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	oa "github.com/ydns/accounts"
)

func TestChangePassword(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	account := e.activeLocal(t, "alice@example.com", "p@ss1")

	err := e.settings.ChangePassword(ctx, account, "wrong", "n3wpass", "n3wpass")
	assert.ErrorIs(t, err, oa.ErrValidation)

	err = e.settings.ChangePassword(ctx, account, "p@ss1", "n3wpass", "n3wpas")
	assert.ErrorIs(t, err, oa.ErrValidation)

	require.NoError(t, e.settings.ChangePassword(ctx, account, "p@ss1", "n3wpass", "n3wpass"))
	_, err = e.auth.Login(e.sessionCtx(t), "alice@example.com", "n3wpass")
	require.NoError(t, err)
	_, err = e.auth.Login(e.sessionCtx(t), "alice@example.com", "p@ss1")
	assert.ErrorIs(t, err, oa.ErrInvalidCredentials)

	assert.Contains(t, e.journal(t, account.ID), "Password changed")

	oauth, err := e.reconciler.ResolveOrCreate(ctx, "bob@example.com", oa.AccountTypeGoogle)
	require.NoError(t, err)
	err = e.settings.ChangePassword(ctx, oauth, "", "n3wpass", "n3wpass")
	assert.ErrorIs(t, err, oa.ErrValidation)
}

func TestSetTimezone(t *testing.T) {
	e := newEnv(t)
	account := e.activeLocal(t, "alice@example.com", "p@ss1")
	ctx := e.sessionCtx(t)

	require.NoError(t, e.settings.SetTimezone(ctx, account, "America/New_York"))
	assert.Equal(t, "America/New_York", e.session.GetString(ctx, oa.SessionKeyTimezone))
	stored, err := e.store.GetAccountByID(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, "America/New_York", stored.Timezone)

	for _, tz := range []string{"Mars/Olympus", "Local"} {
		err := e.settings.SetTimezone(ctx, account, tz)
		assert.ErrorIs(t, err, oa.ErrValidation, tz)
	}

	require.NoError(t, e.settings.SetTimezone(ctx, account, ""))
	assert.Equal(t, "", e.session.GetString(ctx, oa.SessionKeyTimezone))
}

func TestJournal(t *testing.T) {
	e := newEnv(t)
	account := e.activeLocal(t, "alice@example.com", "p@ss1")
	ctx := context.Background()

	entries, err := e.settings.Journal(ctx, account)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "Activation", entries[0].Message)

	require.NoError(t, e.settings.ClearJournal(ctx, account))
	entries, err = e.settings.Journal(ctx, account)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDeleteAccount(t *testing.T) {
	e := newEnv(t)
	ctx := e.sessionCtx(t)
	account, token := e.register(t, "alice@example.com", "p@ss1")
	_, err := e.domains.Create(ctx, account, oa.DomainRequest{Name: "alice.ydns.io"})
	require.NoError(t, err)

	require.NoError(t, e.settings.DeleteAccount(ctx, account))

	_, err = e.store.GetAccountByEmail(ctx, "alice@example.com")
	assert.ErrorIs(t, err, oa.ErrNotFound)
	_, err = e.ledger.Activate(ctx, account.Alias, token)
	assert.ErrorIs(t, err, oa.ErrTokenInvalidOrExpired)
	assert.Empty(t, e.journal(t, account.ID))

	bob, err := e.reconciler.ResolveOrCreate(ctx, "bob@example.com", oa.AccountTypeGitHub)
	require.NoError(t, err)
	_, _, err = e.domains.Get(ctx, bob, "alice.ydns.io")
	assert.ErrorIs(t, err, oa.ErrNotFound)
	taken, err := e.domains.Create(ctx, bob, oa.DomainRequest{Name: "alice.ydns.io"})
	require.NoError(t, err, "the name is free once its owner is gone")
	assert.Equal(t, bob.ID, taken.OwnerID)

	// Deleting twice is harmless, and the email is free again.
	require.NoError(t, e.settings.DeleteAccount(e.sessionCtx(t), account))
	_, _ = e.register(t, "alice@example.com", "p@ss1")
}
