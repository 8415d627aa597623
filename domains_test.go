package accounts_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	oa "github.com/ydns/accounts"
)

func TestNormalizeDomainName(t *testing.T) {
	tests := []struct {
		in, want string
		ok       bool
	}{
		{"Home.YDNS.io", "home.ydns.io", true},
		{"home.ydns.io.", "home.ydns.io", true},
		{"  münchen.ydns.io ", "xn--mnchen-3ya.ydns.io", true},
		{"", "", false},
		{"localhost", "", false},
		{"bad_name.ydns.io", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := oa.NormalizeDomainName(tt.in)
			if !tt.ok {
				assert.ErrorIs(t, err, oa.ErrValidation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDomains(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	owner := e.activeLocal(t, "alice@example.com", "p@ss1")
	other, err := e.reconciler.ResolveOrCreate(ctx, "bob@example.com", oa.AccountTypeGitHub)
	require.NoError(t, err)

	_, err = e.domains.Create(ctx, nil, oa.DomainRequest{Name: "x.ydns.io"})
	assert.ErrorIs(t, err, oa.ErrNotAuthenticated)

	private, err := e.domains.Create(ctx, owner, oa.DomainRequest{Name: "Home.ydns.io"})
	require.NoError(t, err)
	assert.Equal(t, "home.ydns.io", private.Name)
	assert.Equal(t, oa.AccessPrivate, private.Access)

	_, err = e.domains.Create(ctx, other, oa.DomainRequest{Name: "home.ydns.io."})
	assert.ErrorIs(t, err, oa.ErrDomainExists)

	_, err = e.domains.Create(ctx, owner, oa.DomainRequest{Name: "y.ydns.io", Access: "secret"})
	assert.ErrorIs(t, err, oa.ErrValidation)

	_, err = e.domains.Create(ctx, owner, oa.DomainRequest{Name: "shared.ydns.io", Access: oa.AccessRestricted, PublicOwner: true})
	require.NoError(t, err)

	t.Run("get", func(t *testing.T) {
		d, caps, err := e.domains.Get(ctx, owner, "HOME.ydns.io")
		require.NoError(t, err)
		assert.Equal(t, private.Name, d.Name)
		assert.Equal(t, oa.CapsAll, caps)

		_, _, err = e.domains.Get(ctx, other, "home.ydns.io")
		assert.ErrorIs(t, err, oa.ErrInsufficientPrivilege)
		_, _, err = e.domains.Get(ctx, nil, "home.ydns.io")
		assert.ErrorIs(t, err, oa.ErrNotFound)

		_, caps, err = e.domains.Get(ctx, nil, "shared.ydns.io")
		require.NoError(t, err)
		assert.Equal(t, oa.CapsRead, caps)

		_, _, err = e.domains.Get(ctx, owner, "missing.ydns.io")
		assert.ErrorIs(t, err, oa.ErrNotFound)
		_, _, err = e.domains.Get(ctx, owner, "not a domain")
		assert.ErrorIs(t, err, oa.ErrNotFound)
	})

	t.Run("list", func(t *testing.T) {
		list, err := e.domains.List(ctx, owner)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, "home.ydns.io", list[0].Name)

		list, err = e.domains.List(ctx, other)
		require.NoError(t, err)
		assert.Empty(t, list)
	})

	t.Run("delete", func(t *testing.T) {
		assert.ErrorIs(t, e.domains.Delete(ctx, other, "shared.ydns.io"), oa.ErrInsufficientPrivilege)
		assert.ErrorIs(t, e.domains.Delete(ctx, nil, "home.ydns.io"), oa.ErrNotFound)

		require.NoError(t, e.domains.Delete(ctx, owner, "shared.ydns.io"))
		_, _, err := e.domains.Get(ctx, owner, "shared.ydns.io")
		assert.ErrorIs(t, err, oa.ErrNotFound)
		assert.Contains(t, e.journal(t, owner.ID), "Deleted domain shared.ydns.io")
	})
}
