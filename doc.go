// Package accounts is the account and access-control core of the YDNS hosted
// dynamic DNS service.
//
// Identities arrive through four channels: a local email and password, and
// Facebook, GitHub and Google OAuth2. Each email maps to exactly one Account,
// and an account can only ever be signed into through the channel that
// created it.
//
// # Components
//
// Reconciler resolves a verified email to its account or provisions one.
// Local signups start inactive and receive an activation token; OAuth signups
// are active immediately.
//
// Ledger issues and consumes the single-use activation and password reset
// tokens. Tokens are valid for TokenValidity after creation, and consuming a
// token commits together with its effect on the account.
//
// Handshake runs the OAuth2 round trip, keeping a single-use state per
// provider in the caller's session.
//
// Authenticator admits an account into a session. Every channel ends there.
//
// CapabilitiesFor and Authorize evaluate what a (possibly anonymous)
// requester may do with an owned resource such as a Domain.
//
// # Basic Usage
//
//	db, _ := gorm.Open(postgres.Open(dsn), &gorm.Config{})
//	store := gormstore.New(db)
//	_ = store.AutoMigrate()
//
//	svc := (&accounts.Service{
//	    Store:        store,
//	    Session:      scs.New(),
//	    Mailer:       &accounts.ConsoleMailer{},
//	    BaseURL:      "https://ydns.io",
//	    JWTSecretKey: secret,
//	    Providers: []oauth2.Provider{
//	        oauth2.NewGithubOAuth2(id, secret, "https://ydns.io/accounts/oauth/github"),
//	    },
//	}).EnsureDefaults()
//	http.ListenAndServe(":8080", svc.Handler())
//
// # Stores
//
// Store is implemented by stores/gorm (PostgreSQL, or SQLite in tests) and
// stores/gae (Google Cloud Datastore). Both enforce email and alias
// uniqueness themselves and run every token consumption in one transaction.
package accounts
