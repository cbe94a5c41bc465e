package resilience

import (
	"context"
	"net/http"
)

// TokenStore is the credential source consulted on every request.
type TokenStore interface {
	Token() string
	Evict(ctx context.Context) error
}

// CredentialTransport attaches the bearer token to every outbound request
// and evicts it as soon as any response reports 401.
type CredentialTransport struct {
	Base   http.RoundTripper
	Tokens TokenStore
	// OnUnauthorized runs after eviction, with the request that was rejected.
	OnUnauthorized func(req *http.Request)
	// OnEvictError receives storage failures from eviction; the in-memory
	// token is already gone when it runs.
	OnEvictError func(err error)
}

func (t *CredentialTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	out := req
	if t.Tokens != nil {
		if tok := t.Tokens.Token(); tok != "" {
			out = req.Clone(req.Context())
			out.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	res, err := base.RoundTrip(out)
	if err != nil {
		return nil, err
	}
	if res.StatusCode == http.StatusUnauthorized && t.Tokens != nil {
		// Eviction runs even when the request context is already done.
		if evictErr := t.Tokens.Evict(context.WithoutCancel(req.Context())); evictErr != nil && t.OnEvictError != nil {
			t.OnEvictError(evictErr)
		}
		if t.OnUnauthorized != nil {
			t.OnUnauthorized(req)
		}
	}
	return res, nil
}
