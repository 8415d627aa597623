package accounts

import (
	"context"
	"log"
	"log/slog"
	"sort"
	"strings"
	"time"
)

// Mail template identifiers. Bodies are rendered by the mail service.
const (
	TemplateWelcome         = "accounts/welcome.mail"
	TemplateWelcomeFacebook = "accounts/welcome_facebook.mail"
	TemplateWelcomeGitHub   = "accounts/welcome_github.mail"
	TemplateWelcomeGoogle   = "accounts/welcome_google.mail"
	TemplateResetPassword   = "accounts/reset_password.mail"
)

// Mailer sends a templated transactional mail. Implementations are free to
// queue; the core never waits on delivery.
type Mailer interface {
	Send(ctx context.Context, templateID string, data map[string]any, recipients []string) error
}

// welcomeTemplate returns the welcome template for an account type.
func welcomeTemplate(t AccountType) string {
	switch t {
	case AccountTypeFacebook:
		return TemplateWelcomeFacebook
	case AccountTypeGitHub:
		return TemplateWelcomeGitHub
	case AccountTypeGoogle:
		return TemplateWelcomeGoogle
	}
	return TemplateWelcome
}

// sendAsync hands a mail to m without blocking the caller. The send gets its
// own context so that the request finishing does not cancel it, and a failure
// is only logged: a welcome mail that cannot be sent must never undo the
// account it welcomes.
func sendAsync(m Mailer, templateID string, data map[string]any, recipients ...string) <-chan error {
	done := make(chan error, 1)
	if m == nil {
		done <- nil
		close(done)
		return done
	}
	go func() {
		defer close(done)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		err := m.Send(ctx, templateID, data, recipients)
		if err != nil {
			slog.Error("failed to send mail", "template", templateID, "error", err)
		}
		done <- err
	}()
	return done
}

// ConsoleMailer is a development implementation that logs mails to the
// console.
type ConsoleMailer struct{}

func (c *ConsoleMailer) Send(ctx context.Context, templateID string, data map[string]any, recipients []string) error {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	log.Printf("\n=== EMAIL: %s ===", templateID)
	log.Printf("To: %s", strings.Join(recipients, ", "))
	for _, k := range keys {
		log.Printf("%s: %v", k, data[k])
	}
	log.Printf("===========================\n")
	return nil
}
