package oauth2

import (
	"context"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

type GoogleOAuth2 struct {
	*BaseOAuth2
}

func NewGoogleOAuth2(clientId, clientSecret, callbackUrl string) *GoogleOAuth2 {
	out := &GoogleOAuth2{
		BaseOAuth2: NewBaseOAuth2(clientId, clientSecret, callbackUrl, google.Endpoint, "email"),
	}
	out.ProfileURL = "https://www.googleapis.com/plus/v1/people/me"
	return out
}

func (g *GoogleOAuth2) Name() string { return "google" }

// FetchEmail returns the email entry marked as the account address. Other
// entries (aliases, recovery addresses) are ignored.
func (g *GoogleOAuth2) FetchEmail(ctx context.Context, token *oauth2.Token) (string, error) {
	var profile struct {
		Emails []struct {
			Value string `json:"value"`
			Type  string `json:"type"`
		} `json:"emails"`
	}
	if err := g.fetchProfile(ctx, token, &profile); err != nil {
		return "", err
	}
	for _, e := range profile.Emails {
		if e.Type == "account" && strings.TrimSpace(e.Value) != "" {
			return strings.TrimSpace(e.Value), nil
		}
	}
	return "", ErrNoEmail
}
