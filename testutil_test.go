package accounts_test

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	xoauth2 "golang.org/x/oauth2"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	oa "github.com/ydns/accounts"
	gormstore "github.com/ydns/accounts/stores/gorm"
)

func TestMain(m *testing.M) {
	oa.PasswordCost = bcrypt.MinCost
	os.Exit(m.Run())
}

func newStore(t *testing.T) *gormstore.Store {
	t.Helper()
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	store := gormstore.New(db)
	require.NoError(t, store.AutoMigrate())
	return store
}

type sentMail struct {
	Template string
	Data     map[string]any
	To       []string
}

// recordingMailer hands every mail to a channel so tests can wait for the
// asynchronous send.
type recordingMailer struct {
	sent chan sentMail
	err  error
}

func newMailer() *recordingMailer {
	return &recordingMailer{sent: make(chan sentMail, 32)}
}

func (m *recordingMailer) Send(_ context.Context, templateID string, data map[string]any, recipients []string) error {
	m.sent <- sentMail{Template: templateID, Data: data, To: recipients}
	return m.err
}

func (m *recordingMailer) next(t *testing.T) sentMail {
	t.Helper()
	select {
	case s := <-m.sent:
		return s
	case <-time.After(5 * time.Second):
		t.Fatal("no mail sent")
	}
	return sentMail{}
}

func (m *recordingMailer) none(t *testing.T) {
	t.Helper()
	select {
	case s := <-m.sent:
		t.Fatalf("unexpected mail %s to %v", s.Template, s.To)
	case <-time.After(50 * time.Millisecond):
	}
}

// clock is a settable time source.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// testEnv wires the core components over one SQLite store.
type testEnv struct {
	store      *gormstore.Store
	mailer     *recordingMailer
	clock      *clock
	session    *scs.SessionManager
	ledger     *oa.Ledger
	reconciler *oa.Reconciler
	auth       *oa.Authenticator
	settings   *oa.Settings
	domains    *oa.Domains
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	e := &testEnv{
		store:   newStore(t),
		mailer:  newMailer(),
		clock:   newClock(),
		session: scs.New(),
	}
	e.ledger = &oa.Ledger{Tokens: e.store, Journal: e.store, Now: e.clock.Now}
	e.reconciler = &oa.Reconciler{
		Store:   e.store,
		Ledger:  e.ledger,
		Mailer:  e.mailer,
		BaseURL: "https://ydns.io",
		Now:     e.clock.Now,
	}
	e.auth = &oa.Authenticator{
		Store:        e.store,
		Session:      e.session,
		JWTSecretKey: "test-secret",
		Now:          e.clock.Now,
	}
	e.settings = &oa.Settings{Store: e.store, Auth: e.auth, Now: e.clock.Now}
	e.domains = &oa.Domains{Store: e.store, Now: e.clock.Now}
	return e
}

// sessionCtx returns a context carrying a fresh, loaded session.
func (e *testEnv) sessionCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, err := e.session.Load(context.Background(), "")
	require.NoError(t, err)
	return ctx
}

// register signs up a local account and returns it with its activation
// token value, taken from the welcome mail.
func (e *testEnv) register(t *testing.T, email, password string) (*oa.Account, string) {
	t.Helper()
	account, err := e.reconciler.Register(context.Background(), &oa.Credentials{
		Email: email, Password: password, Repeat: password,
	})
	require.NoError(t, err)
	mail := e.mailer.next(t)
	require.Equal(t, oa.TemplateWelcome, mail.Template)
	return account, mail.Data["token"].(string)
}

// activeLocal registers and activates a local account.
func (e *testEnv) activeLocal(t *testing.T, email, password string) *oa.Account {
	t.Helper()
	account, token := e.register(t, email, password)
	activated, err := e.ledger.Activate(context.Background(), account.Alias, token)
	require.NoError(t, err)
	return activated
}

func (e *testEnv) journal(t *testing.T, accountID string) []string {
	t.Helper()
	entries, err := e.store.ListJournal(context.Background(), accountID, 0)
	require.NoError(t, err)
	out := make([]string, len(entries))
	for i, entry := range entries {
		out[i] = entry.Message
	}
	return out
}

// fakeProvider is an in-process identity provider.
type fakeProvider struct {
	name        string
	email       string
	exchangeErr error
	fetchErr    error
	codes       []string
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) AuthCodeURL(state string) string {
	return "https://idp.example/" + p.name + "/authorize?state=" + state
}

func (p *fakeProvider) Exchange(_ context.Context, code string) (*xoauth2.Token, error) {
	p.codes = append(p.codes, code)
	if p.exchangeErr != nil {
		return nil, p.exchangeErr
	}
	return &xoauth2.Token{AccessToken: "at-" + code}, nil
}

func (p *fakeProvider) FetchEmail(_ context.Context, _ *xoauth2.Token) (string, error) {
	if p.fetchErr != nil {
		return "", p.fetchErr
	}
	return p.email, nil
}

var errBoom = errors.New("boom")
