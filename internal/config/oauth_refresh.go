package config

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
)

// TokenSource builds a golang.org/x/oauth2.TokenSource from an
// OAuthCredential, refreshing access tokens as they expire rather than
// requiring the caller to hold a long-lived static API key. Providers
// configured with a static APIKey never call this; it exists for
// entries (Gemini service accounts, Bedrock-via-STS style setups) that
// hand back a refresh token instead.
func (c *OAuthCredential) TokenSource(ctx context.Context) (oauth2.TokenSource, error) {
	if c == nil {
		return nil, fmt.Errorf("oauth: nil credential")
	}
	if c.RefreshToken == "" {
		return nil, fmt.Errorf("oauth: refresh_token is required")
	}
	if c.TokenURL == "" {
		return nil, fmt.Errorf("oauth: token_url is required")
	}

	cfg := &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		Scopes:       c.Scopes,
		Endpoint: oauth2.Endpoint{
			TokenURL: c.TokenURL,
		},
	}

	seed := &oauth2.Token{RefreshToken: c.RefreshToken}
	return cfg.TokenSource(ctx, seed), nil
}

// ResolveAPIKey returns a bearer token for the provider entry: the
// static APIKey if set, otherwise a freshly refreshed OAuth access
// token. Callers use the returned string as the Authorization header
// value regardless of which path produced it.
func (p *ProviderEntry) ResolveAPIKey(ctx context.Context) (string, error) {
	if p.APIKey != "" {
		return p.APIKey, nil
	}
	if p.OAuth == nil {
		return "", fmt.Errorf("provider %q: no api_key or oauth credential configured", p.Type)
	}
	src, err := p.OAuth.TokenSource(ctx)
	if err != nil {
		return "", fmt.Errorf("provider %q: %w", p.Type, err)
	}
	tok, err := src.Token()
	if err != nil {
		return "", fmt.Errorf("provider %q: oauth refresh failed: %w", p.Type, err)
	}
	return tok.AccessToken, nil
}
