package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	accounts "github.com/ydns/accounts"
	gormstore "github.com/ydns/accounts/stores/gorm"
)

// NewMigrateCmd creates the migrate subcommand.
func NewMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the relational schema",
		Long: `Run GORM auto-migration for the account, token, journal and domain
tables. Datastore needs no migration.`,
		RunE: runMigrate,
	}
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, closer, err := openStore(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer closer.Close()

	s, ok := store.(*gormstore.Store)
	if !ok {
		return errors.New("migrate only applies to the postgres and sqlite drivers")
	}
	cmd.Println("Running migrations...")
	if err := s.AutoMigrate(); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	cmd.Println("Migrations completed successfully")
	return nil
}

// NewReapTokensCmd creates the reap-tokens subcommand.
func NewReapTokensCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reap-tokens",
		Short: "Delete activation and reset tokens past their validity window",
		Long: `Delete tokens older than the validity window. Expired tokens are
already rejected on use; this only reclaims storage.`,
		RunE: runReapTokens,
	}
}

func runReapTokens(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, closer, err := openStore(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer closer.Close()

	ledger := &accounts.Ledger{Tokens: store}
	n, err := ledger.Reap(cmd.Context())
	if err != nil {
		return err
	}
	cmd.Printf("Deleted %d expired tokens\n", n)
	return nil
}
