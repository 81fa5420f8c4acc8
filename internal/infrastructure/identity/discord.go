// Package identity holds the OAuth identity providers behind the access
// gateway.
package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/oauth2"

	"filedrop/internal/application/auth"
)

const (
	discordAuthURL  = "https://discord.com/oauth2/authorize"
	discordTokenURL = "https://discord.com/api/oauth2/token"
	discordAPIBase  = "https://discord.com/api"
	maxErrorBody    = int64(1 << 16)
)

// DiscordConfig holds Discord application credentials. The URL fields
// override the public endpoints and are empty in production.
type DiscordConfig struct {
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	APIBase      string
}

// Discord authenticates users with the Discord OAuth2 "identify" scope.
type Discord struct {
	oauth   oauth2.Config
	apiBase string
}

type discordUser struct {
	ID         string `json:"id"`
	Username   string `json:"username"`
	GlobalName string `json:"global_name"`
}

// NewDiscord creates a Discord identity provider.
func NewDiscord(cfg DiscordConfig) *Discord {
	authURL := firstNonEmpty(cfg.AuthURL, discordAuthURL)
	tokenURL := firstNonEmpty(cfg.TokenURL, discordTokenURL)
	return &Discord{
		oauth: oauth2.Config{
			ClientID:     strings.TrimSpace(cfg.ClientID),
			ClientSecret: strings.TrimSpace(cfg.ClientSecret),
			Endpoint: oauth2.Endpoint{
				AuthURL:   authURL,
				TokenURL:  tokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
			Scopes: []string{"identify"},
		},
		apiBase: strings.TrimRight(firstNonEmpty(cfg.APIBase, discordAPIBase), "/"),
	}
}

func (d *Discord) Name() string { return "discord" }

func (d *Discord) AuthCodeURL(state, redirectURL string) string {
	cfg := d.oauth
	cfg.RedirectURL = redirectURL
	return cfg.AuthCodeURL(state)
}

// Authenticate exchanges the code and loads the user profile.
func (d *Discord) Authenticate(ctx context.Context, creds auth.Credentials) (auth.Principal, error) {
	cfg := d.oauth
	cfg.RedirectURL = creds.RedirectURL

	token, err := cfg.Exchange(ctx, creds.Code)
	if err != nil {
		return auth.Principal{}, fmt.Errorf("discord: exchange code: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.apiBase+"/users/@me", nil)
	if err != nil {
		return auth.Principal{}, err
	}
	resp, err := cfg.Client(ctx, token).Do(req)
	if err != nil {
		return auth.Principal{}, fmt.Errorf("discord: user request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return auth.Principal{}, fmt.Errorf("discord: user request failed: status=%d body=%s",
			resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var user discordUser
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return auth.Principal{}, fmt.Errorf("discord: decode user: %w", err)
	}
	if user.ID == "" || user.Username == "" {
		return auth.Principal{}, fmt.Errorf("discord: user response missing id or username")
	}
	return auth.Principal{ID: user.ID, Username: user.Username}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
