package auth

import (
	"fmt"
	"net"
	"net/netip"
	"strings"
)

// CallbackHosts are the hosts advertised in the OAuth redirect URL, chosen by
// where the client connects from.
type CallbackHosts struct {
	Dev    string // loopback clients
	Local  string // private network clients
	Remote string // everyone else
}

// HostFor picks the callback host for a request's remote address.
func (h CallbackHosts) HostFor(remoteAddr string) string {
	host := strings.TrimSpace(remoteAddr)
	if splitHost, _, err := net.SplitHostPort(host); err == nil {
		host = splitHost
	}
	addr, err := netip.ParseAddr(strings.Trim(host, "[]"))
	if err != nil {
		return h.Remote
	}
	addr = addr.Unmap()
	switch {
	case addr.IsLoopback():
		return h.Dev
	case addr.IsPrivate():
		return h.Local
	default:
		return h.Remote
	}
}

// CallbackURL builds the provider callback URL for a client address.
func (h CallbackHosts) CallbackURL(remoteAddr string, port int, provider string) string {
	return fmt.Sprintf("http://%s/auth/%s/callback",
		net.JoinHostPort(h.HostFor(remoteAddr), fmt.Sprint(port)), provider)
}
