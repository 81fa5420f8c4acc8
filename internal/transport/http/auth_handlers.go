package http

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"filedrop/internal/application/auth"
	"filedrop/internal/logging"
)

const (
	sessionCookie = "filedrop_session"
	stateCookie   = "filedrop_oauth_state"
)

// AuthStatus handles GET /auth-status.
func (h *Handler) AuthStatus(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFrom(r.Context())
	if !ok {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"isAuthenticated": false,
			"loginUrl":        h.loginPath(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"isAuthenticated": true,
		"username":        principal.Username,
	})
}

// Login handles GET /auth/{provider}.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	authURL, state, err := h.auth.BeginLogin(r.RemoteAddr)
	if err != nil {
		logging.WithContext(r.Context()).Error("begin login", zap.Error(err))
		http.Error(w, "Something went wrong!", http.StatusInternalServerError)
		return
	}
	h.setCookie(w, stateCookie, state, int(h.auth.StateTTL().Seconds()))
	http.Redirect(w, r, authURL, http.StatusFound)
}

// Callback handles GET /auth/{provider}/callback.
func (h *Handler) Callback(w http.ResponseWriter, r *http.Request) {
	logger := logging.WithContext(r.Context())
	h.clearCookie(w, stateCookie)

	var stateToken string
	if c, err := r.Cookie(stateCookie); err == nil {
		stateToken = c.Value
	}

	q := r.URL.Query()
	if q.Get("error") != "" {
		logger.Warn("identity provider returned an error", zap.String("error", q.Get("error")))
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	principal, session, err := h.auth.CompleteLogin(r.Context(), q.Get("code"), q.Get("state"), stateToken)
	switch {
	case err == nil:
		logger.Info("user whitelisted, redirecting to home", zap.String("username", principal.Username))
		h.setCookie(w, sessionCookie, session, int(h.auth.SessionTTL().Seconds()))
		http.Redirect(w, r, "/", http.StatusFound)
	case errors.Is(err, auth.ErrNotWhitelisted):
		h.clearCookie(w, sessionCookie)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
	case errors.Is(err, auth.ErrInvalidState):
		logger.Warn("oauth state rejected", zap.Error(err))
		http.Redirect(w, r, "/", http.StatusFound)
	default:
		logger.Error("authentication failed", zap.Error(err))
		http.Redirect(w, r, "/", http.StatusFound)
	}
}

// Logout handles GET /logout.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	h.clearCookie(w, sessionCookie)
	http.Redirect(w, r, "/", http.StatusFound)
}

func (h *Handler) loginPath() string {
	return "/auth/" + h.auth.ProviderName()
}

func (h *Handler) setCookie(w http.ResponseWriter, name, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) clearCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
}
