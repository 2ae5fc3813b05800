package config

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
)

// OAuth holds what is needed to trade a refresh token for an XOAUTH2
// access token.
type OAuth struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	TokenURL     string
}

func refreshAccessToken(ctx context.Context, o OAuth) (string, error) {
	if o.TokenURL == "" {
		return "", missing("oauth_token_url")
	}
	if o.ClientID == "" {
		return "", missing("oauth_client_id")
	}

	cfg := &oauth2.Config{
		ClientID:     o.ClientID,
		ClientSecret: o.ClientSecret,
		Endpoint:     oauth2.Endpoint{TokenURL: o.TokenURL},
	}
	tok, err := cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: o.RefreshToken}).Token()
	if err != nil {
		return "", fmt.Errorf("%w: refreshing OAuth token: %w", ErrInvalid, err)
	}
	return tok.AccessToken, nil
}
