package client

import (
	"net/http"
)

// bearerTransport adds the stored session token to every request that does
// not carry an Authorization header already.
type bearerTransport struct {
	client *Client
	base   http.RoundTripper
}

func (t *bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("Authorization") != "" {
		return t.base.RoundTrip(req)
	}
	token, err := t.client.Token()
	if err != nil {
		return nil, err
	}
	if token != "" {
		// RoundTrippers must not modify the caller's request.
		req = req.Clone(req.Context())
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	// The server no longer accepts the token; forget it.
	if resp.StatusCode == http.StatusUnauthorized && token != "" {
		t.client.forget()
	}
	return resp, nil
}
