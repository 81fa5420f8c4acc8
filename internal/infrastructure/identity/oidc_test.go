package identity

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"filedrop/internal/application/auth"
)

type fakeIssuer struct {
	srv    *httptest.Server
	key    *rsa.PrivateKey
	claims jwt.MapClaims
}

func newFakeIssuer(t *testing.T) *fakeIssuer {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	iss := &fakeIssuer{key: key}

	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"issuer":                                iss.srv.URL,
			"authorization_endpoint":                iss.srv.URL + "/authorize",
			"token_endpoint":                        iss.srv.URL + "/token",
			"jwks_uri":                              iss.srv.URL + "/keys",
			"id_token_signing_alg_values_supported": []string{"RS256"},
		})
	})
	mux.HandleFunc("/keys", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"keys": []map[string]string{{
				"kty": "RSA",
				"kid": "test-key",
				"alg": "RS256",
				"use": "sig",
				"n":   base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.PublicKey.E)).Bytes()),
			}},
		})
	})
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		token := jwt.NewWithClaims(jwt.SigningMethodRS256, iss.claims)
		token.Header["kid"] = "test-key"
		signed, err := token.SignedString(iss.key)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "access-xyz",
			"token_type":   "Bearer",
			"expires_in":   3600,
			"id_token":     signed,
		})
	})
	iss.srv = httptest.NewServer(mux)
	t.Cleanup(iss.srv.Close)
	return iss
}

func (f *fakeIssuer) setClaims(extra map[string]interface{}) {
	now := time.Now()
	claims := jwt.MapClaims{
		"iss": f.srv.URL,
		"aud": "filedrop",
		"sub": "user-1",
		"iat": now.Unix(),
		"exp": now.Add(time.Hour).Unix(),
	}
	for k, v := range extra {
		claims[k] = v
	}
	f.claims = claims
}

func newTestOIDC(t *testing.T, iss *fakeIssuer) *OIDC {
	t.Helper()
	o, err := NewOIDC(context.Background(), OIDCConfig{
		IssuerURL:    iss.srv.URL,
		ClientID:     "filedrop",
		ClientSecret: "secret",
	})
	require.NoError(t, err)
	return o
}

func TestNewOIDC_RequiresIssuer(t *testing.T) {
	_, err := NewOIDC(context.Background(), OIDCConfig{})
	require.Error(t, err)
}

func TestOIDC_AuthCodeURL(t *testing.T) {
	iss := newFakeIssuer(t)
	o := newTestOIDC(t, iss)

	u, err := url.Parse(o.AuthCodeURL("nonce", "http://localhost:3001/auth/oidc/callback"))
	require.NoError(t, err)
	assert.Equal(t, "/authorize", u.Path)
	assert.Equal(t, "nonce", u.Query().Get("state"))
	assert.Equal(t, "openid profile email", u.Query().Get("scope"))
	assert.Equal(t, "oidc", o.Name())
}

func TestOIDC_UsernameFallbacks(t *testing.T) {
	iss := newFakeIssuer(t)
	o := newTestOIDC(t, iss)
	creds := auth.Credentials{Code: "code", RedirectURL: "http://localhost:3001/auth/oidc/callback"}

	iss.setClaims(map[string]interface{}{"preferred_username": "alice", "email": "alice@example.com"})
	p, err := o.Authenticate(context.Background(), creds)
	require.NoError(t, err)
	assert.Equal(t, auth.Principal{ID: "user-1", Username: "alice"}, p)

	iss.setClaims(map[string]interface{}{"email": "alice@example.com"})
	p, err = o.Authenticate(context.Background(), creds)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", p.Username)

	iss.setClaims(nil)
	p, err = o.Authenticate(context.Background(), creds)
	require.NoError(t, err)
	assert.Equal(t, "user-1", p.Username)
}

func TestOIDC_RejectsWrongAudience(t *testing.T) {
	iss := newFakeIssuer(t)
	o := newTestOIDC(t, iss)

	iss.setClaims(map[string]interface{}{"aud": "someone-else"})
	_, err := o.Authenticate(context.Background(), auth.Credentials{Code: "code"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "verify id_token")
}
