package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"filedrop/internal/application/auth"
	"filedrop/internal/logging"
)

// OIDCConfig holds OpenID Connect provider configuration.
type OIDCConfig struct {
	IssuerURL    string
	ClientID     string
	ClientSecret string
}

// OIDC authenticates users against any OpenID Connect issuer.
type OIDC struct {
	oauth    oauth2.Config
	verifier *oidc.IDTokenVerifier
}

// NewOIDC discovers the issuer's endpoints.
func NewOIDC(ctx context.Context, cfg OIDCConfig) (*OIDC, error) {
	if cfg.IssuerURL == "" {
		return nil, errors.New("oidc issuer url required")
	}
	provider, err := oidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("oidc provider init: %w", err)
	}

	logging.Info("OIDC provider initialized",
		zap.String("issuer", cfg.IssuerURL),
		zap.String("client_id", cfg.ClientID))

	return &OIDC{
		oauth: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     provider.Endpoint(),
			Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
		},
		verifier: provider.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
	}, nil
}

func (o *OIDC) Name() string { return "oidc" }

func (o *OIDC) AuthCodeURL(state, redirectURL string) string {
	cfg := o.oauth
	cfg.RedirectURL = redirectURL
	return cfg.AuthCodeURL(state)
}

// Authenticate exchanges the code and verifies the returned ID token.
func (o *OIDC) Authenticate(ctx context.Context, creds auth.Credentials) (auth.Principal, error) {
	cfg := o.oauth
	cfg.RedirectURL = creds.RedirectURL

	token, err := cfg.Exchange(ctx, creds.Code)
	if err != nil {
		return auth.Principal{}, fmt.Errorf("oidc: exchange code: %w", err)
	}
	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return auth.Principal{}, errors.New("oidc: token response missing id_token")
	}
	idToken, err := o.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return auth.Principal{}, fmt.Errorf("oidc: verify id_token: %w", err)
	}

	var claims struct {
		Sub               string `json:"sub"`
		PreferredUsername string `json:"preferred_username"`
		Email             string `json:"email"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return auth.Principal{}, fmt.Errorf("parse oidc claims: %w", err)
	}

	// preferred_username, then email, then sub
	username := claims.PreferredUsername
	if username == "" {
		username = claims.Email
	}
	if username == "" {
		username = claims.Sub
	}
	return auth.Principal{ID: claims.Sub, Username: username}, nil
}
