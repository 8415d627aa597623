package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ydns/accounts/client"
	"github.com/ydns/accounts/client/stores/fs"
)

type remoteFlags struct {
	server      string
	credentials string
}

func (f *remoteFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.server, "server", "http://localhost:8080", "accounts server URL")
	cmd.Flags().StringVar(&f.credentials, "credentials", "", "credentials file (default: user config dir)")
}

func (f *remoteFlags) client() (*client.Client, *fs.Store, error) {
	store, err := fs.Open(f.credentials)
	if err != nil {
		return nil, nil, err
	}
	return client.New(f.server, store), store, nil
}

// NewLoginCmd creates the login subcommand.
func NewLoginCmd() *cobra.Command {
	var flags remoteFlags
	var email string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in to an accounts server and store the session token",
		Long: `Log in with an email and password. The password is read from
YDNS_PASSWORD or, when unset, from the first line of stdin.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if email == "" {
				return errors.New("--email is required")
			}
			password := os.Getenv("YDNS_PASSWORD")
			if password == "" {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read password: %w", err)
				}
				password = strings.TrimRight(line, "\r\n")
			}
			c, store, err := flags.client()
			if err != nil {
				return err
			}
			cred, err := c.Login(cmd.Context(), email, password)
			if err != nil {
				return err
			}
			cmd.Printf("Logged in as %s (%s), credentials saved to %s\n", email, cred.Alias, store.Path())
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&email, "email", "", "account email")
	return cmd
}

// NewLogoutCmd creates the logout subcommand.
func NewLogoutCmd() *cobra.Command {
	var flags remoteFlags
	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session token for a server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, _, err := flags.client()
			if err != nil {
				return err
			}
			if err := c.Logout(); err != nil {
				return err
			}
			cmd.Println("Logged out")
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

// NewDomainsCmd creates the domains subcommand.
func NewDomainsCmd() *cobra.Command {
	var flags remoteFlags
	cmd := &cobra.Command{
		Use:   "domains",
		Short: "List the domains owned by the logged in account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, _, err := flags.client()
			if err != nil {
				return err
			}
			domains, err := c.ListDomains(cmd.Context())
			if errors.Is(err, client.ErrNotLoggedIn) {
				return errors.New("not logged in, run ydns-accounts login first")
			}
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tACCESS\tCREATED")
			for _, d := range domains {
				fmt.Fprintf(w, "%s\t%s\t%s\n", d.Name, d.AccessType, d.CreatedAt.Format("2006-01-02"))
			}
			return w.Flush()
		},
	}
	flags.register(cmd)
	return cmd
}
