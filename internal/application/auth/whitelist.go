package auth

import "strings"

// Whitelist is the static set of usernames allowed in after authentication.
// Names are compared exactly.
type Whitelist map[string]struct{}

// NewWhitelist builds a whitelist, ignoring blank entries.
func NewWhitelist(usernames []string) Whitelist {
	wl := make(Whitelist, len(usernames))
	for _, name := range usernames {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		wl[name] = struct{}{}
	}
	return wl
}

// Allows reports whether username is whitelisted.
func (w Whitelist) Allows(username string) bool {
	if username == "" {
		return false
	}
	_, ok := w[username]
	return ok
}
