package main

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	accounts "github.com/ydns/accounts"
	"github.com/ydns/accounts/config"
	gormstore "github.com/ydns/accounts/stores/gorm"
)

func TestRemoteCommands(t *testing.T) {
	accounts.PasswordCost = bcrypt.MinCost
	ctx := context.Background()
	cfg, err := config.LoadFrom(map[string]string{
		"YDNS_DB_DSN":     "file:" + filepath.Join(t.TempDir(), "accounts.db"),
		"YDNS_JWT_SECRET": "cli-secret",
	})
	require.NoError(t, err)
	store, closer, err := openStore(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = closer.Close() })
	require.NoError(t, store.(*gormstore.Store).AutoMigrate())

	hash, err := accounts.HashPassword("p@ss1")
	require.NoError(t, err)
	now := time.Now().UTC()
	id := uuid.NewString()
	require.NoError(t, store.CreateAccount(ctx, &accounts.Account{
		ID:             id,
		Alias:          "AbCdEfGh12345678",
		Email:          "alice@example.com",
		CredentialHash: hash,
		Type:           accounts.AccountTypeLocal,
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil))
	require.NoError(t, store.CreateDomain(ctx, &accounts.Domain{
		Name:      "home.ydns.io",
		OwnerID:   id,
		Access:    accounts.AccessRestricted,
		CreatedAt: now,
	}))

	srv := httptest.NewServer(newService(cfg, store, prometheus.NewRegistry()).Handler())
	t.Cleanup(srv.Close)
	creds := filepath.Join(t.TempDir(), "credentials.json")
	remote := []string{"--server", srv.URL, "--credentials", creds}

	_, err = run(t, append([]string{"domains"}, remote...)...)
	assert.ErrorContains(t, err, "not logged in")

	t.Setenv("YDNS_PASSWORD", "wrong")
	_, err = run(t, append([]string{"login", "--email", "alice@example.com"}, remote...)...)
	assert.ErrorContains(t, err, "invalid_credentials")

	t.Setenv("YDNS_PASSWORD", "p@ss1")
	out, err := run(t, append([]string{"login", "--email", "alice@example.com"}, remote...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "Logged in as alice@example.com (AbCdEfGh12345678)")

	out, err = run(t, append([]string{"domains"}, remote...)...)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "NAME")
	assert.Contains(t, lines[1], "home.ydns.io")
	assert.Contains(t, lines[1], "restricted")

	out, err = run(t, append([]string{"logout"}, remote...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "Logged out")
	_, err = run(t, append([]string{"domains"}, remote...)...)
	assert.ErrorContains(t, err, "not logged in")
}
