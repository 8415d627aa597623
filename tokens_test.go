package accounts_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	oa "github.com/ydns/accounts"
)

func TestGenerateSecureToken(t *testing.T) {
	seen := make(map[string]bool)
	for range 50 {
		tok, err := oa.GenerateSecureToken()
		require.NoError(t, err)
		assert.Len(t, tok, oa.TokenLength)
		assert.Regexp(t, `^[a-zA-Z0-9]+$`, tok)
		assert.False(t, seen[tok])
		seen[tok] = true
	}

	alias, err := oa.GenerateAlias()
	require.NoError(t, err)
	assert.Len(t, alias, oa.AliasLength)
	assert.Regexp(t, `^[a-zA-Z0-9]+$`, alias)
}

func TestActivationWindow(t *testing.T) {
	tests := []struct {
		name    string
		elapsed time.Duration
		wantErr error
	}{
		{"fresh", 0, nil},
		{"just inside the window", 23*time.Hour + 59*time.Minute, nil},
		{"exactly at the boundary", oa.TokenValidity, nil},
		{"just past the window", 24*time.Hour + time.Minute, oa.ErrTokenInvalidOrExpired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			account, token := e.register(t, "alice@example.com", "p@ss1")
			e.clock.Advance(tt.elapsed)

			got, err := e.ledger.Activate(context.Background(), account.Alias, token)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				stored, err := e.store.GetAccountByID(context.Background(), account.ID)
				require.NoError(t, err)
				assert.False(t, stored.IsActive)
				return
			}
			require.NoError(t, err)
			assert.True(t, got.IsActive)
		})
	}
}

func TestActivateIsSingleUse(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	account, token := e.register(t, "alice@example.com", "p@ss1")

	_, err := e.ledger.Activate(ctx, account.Alias, token)
	require.NoError(t, err)
	_, err = e.ledger.Activate(ctx, account.Alias, token)
	assert.ErrorIs(t, err, oa.ErrTokenInvalidOrExpired)

	assert.Equal(t, []string{"Activation", "User account created"}, e.journal(t, account.ID))
}

func TestActivateRejectsWrongLocator(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	account, token := e.register(t, "alice@example.com", "p@ss1")
	other, _ := e.register(t, "bob@example.com", "p@ss2")

	tests := []struct {
		name, alias, token string
	}{
		{"empty alias", "", token},
		{"empty token", account.Alias, ""},
		{"other account's alias", other.Alias, token},
		{"unknown alias", "nobodyAlias00000", token},
		{"unknown token", account.Alias, "x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.ledger.Activate(ctx, tt.alias, tt.token)
			assert.ErrorIs(t, err, oa.ErrTokenInvalidOrExpired)
		})
	}
	// A reset with the activation token is the wrong kind.
	_, err := e.ledger.ResetPassword(ctx, account.Alias, token, "n3wpass")
	assert.ErrorIs(t, err, oa.ErrTokenInvalidOrExpired)
}

func TestConcurrentActivation(t *testing.T) {
	e := newEnv(t)
	account, token := e.register(t, "alice@example.com", "p@ss1")

	var ok atomic.Int32
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := e.ledger.Activate(context.Background(), account.Alias, token); err == nil {
				ok.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, ok.Load())
}

func TestPasswordReset(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	account := e.activeLocal(t, "alice@example.com", "p@ss1")

	require.NoError(t, e.reconciler.RequestPasswordReset(ctx, "Alice@Example.com"))
	mail := e.mailer.next(t)
	assert.Equal(t, oa.TemplateResetPassword, mail.Template)
	assert.Equal(t, []string{"alice@example.com"}, mail.To)
	token := mail.Data["token"].(string)
	assert.Equal(t, "https://ydns.io/accounts/reset-password/"+account.Alias+"/"+token, mail.Data["url"])

	t.Run("second request within the window is refused", func(t *testing.T) {
		e.clock.Advance(time.Hour)
		err := e.reconciler.RequestPasswordReset(ctx, "alice@example.com")
		assert.ErrorIs(t, err, oa.ErrRequestAlreadyPending)
		e.mailer.none(t)
	})

	t.Run("validate does not consume", func(t *testing.T) {
		require.NoError(t, e.ledger.Validate(ctx, oa.TokenKindPasswordReset, account.Alias, token))
		require.NoError(t, e.ledger.Validate(ctx, oa.TokenKindPasswordReset, account.Alias, token))
		assert.ErrorIs(t, e.ledger.Validate(ctx, oa.TokenKindActivation, account.Alias, token), oa.ErrTokenInvalidOrExpired)
	})

	t.Run("short password leaves the token usable", func(t *testing.T) {
		_, err := e.ledger.ResetPassword(ctx, account.Alias, token, "abc")
		assert.ErrorIs(t, err, oa.ErrValidation)
		require.NoError(t, e.ledger.Validate(ctx, oa.TokenKindPasswordReset, account.Alias, token))
	})

	t.Run("reset installs the new password once", func(t *testing.T) {
		_, err := e.ledger.ResetPassword(ctx, account.Alias, token, "n3wpass")
		require.NoError(t, err)

		stored, err := e.store.GetAccountByID(ctx, account.ID)
		require.NoError(t, err)
		assert.True(t, oa.CheckPassword(stored, "n3wpass"))
		assert.False(t, oa.CheckPassword(stored, "p@ss1"))

		_, err = e.ledger.ResetPassword(ctx, account.Alias, token, "another1")
		assert.ErrorIs(t, err, oa.ErrTokenInvalidOrExpired)
	})

	t.Run("a request after the window is accepted", func(t *testing.T) {
		e.clock.Advance(oa.TokenValidity)
		require.NoError(t, e.reconciler.RequestPasswordReset(ctx, "alice@example.com"))
		e.mailer.next(t)
	})

	assert.Contains(t, e.journal(t, account.ID), "Password reset request")
	assert.Contains(t, e.journal(t, account.ID), "Password changed")
}

func TestRequestPasswordResetUnknownEmail(t *testing.T) {
	e := newEnv(t)
	err := e.reconciler.RequestPasswordReset(context.Background(), "nobody@example.com")
	require.ErrorIs(t, err, oa.ErrValidation)
	authErr, status := oa.PublicError(err)
	assert.Equal(t, 400, status)
	assert.Equal(t, "email", authErr.Field)

	err = e.reconciler.RequestPasswordReset(context.Background(), "not-an-email")
	assert.ErrorIs(t, err, oa.ErrValidation)
}

func TestPasswordResetIsLocalOnly(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	oauth, err := e.reconciler.ResolveOrCreate(ctx, "bob@example.com", oa.AccountTypeGoogle)
	require.NoError(t, err)
	e.mailer.next(t)

	err = e.reconciler.RequestPasswordReset(ctx, "bob@example.com")
	require.ErrorIs(t, err, oa.ErrValidation)
	unknown := e.reconciler.RequestPasswordReset(ctx, "nobody@example.com")
	got, _ := oa.PublicError(err)
	want, _ := oa.PublicError(unknown)
	assert.Equal(t, want, got, "OAuth accounts look like unknown emails")
	e.mailer.none(t)

	tok, err := e.ledger.Issue(ctx, oa.TokenKindPasswordReset, oauth)
	require.NoError(t, err)
	_, err = e.ledger.ResetPassword(ctx, oauth.Alias, tok.Value, "n3wpass")
	assert.ErrorIs(t, err, oa.ErrTokenInvalidOrExpired)
	stored, err := e.store.GetAccountByID(ctx, oauth.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.CredentialHash)
}

func TestExpiredResetStopsBlocking(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	account := e.activeLocal(t, "alice@example.com", "p@ss1")

	require.NoError(t, e.reconciler.RequestPasswordReset(ctx, "alice@example.com"))
	stale := e.mailer.next(t).Data["token"].(string)

	e.clock.Advance(oa.TokenValidity - time.Second)
	assert.ErrorIs(t, e.reconciler.RequestPasswordReset(ctx, "alice@example.com"), oa.ErrRequestAlreadyPending)

	e.clock.Advance(2 * time.Second)
	require.NoError(t, e.reconciler.RequestPasswordReset(ctx, "alice@example.com"))
	fresh := e.mailer.next(t).Data["token"].(string)
	assert.NotEqual(t, stale, fresh)

	assert.ErrorIs(t, e.ledger.Validate(ctx, oa.TokenKindPasswordReset, account.Alias, stale), oa.ErrTokenInvalidOrExpired)
	require.NoError(t, e.ledger.Validate(ctx, oa.TokenKindPasswordReset, account.Alias, fresh))
}

func TestReap(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	_, _ = e.register(t, "alice@example.com", "p@ss1")
	e.clock.Advance(oa.TokenValidity + time.Second)
	account, token := e.register(t, "bob@example.com", "p@ss2")

	n, err := e.ledger.Reap(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	_, err = e.ledger.Activate(ctx, account.Alias, token)
	assert.NoError(t, err)
}
