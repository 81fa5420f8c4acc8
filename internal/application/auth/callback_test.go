package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCallbackHosts_HostFor(t *testing.T) {
	hosts := CallbackHosts{Dev: "localhost", Local: "192.168.1.10", Remote: "files.example.com"}

	cases := []struct {
		remoteAddr string
		want       string
	}{
		{"127.0.0.1:5000", "localhost"},
		{"[::1]:5000", "localhost"},
		{"[::ffff:127.0.0.1]:5000", "localhost"},
		{"192.168.1.23:40000", "192.168.1.10"},
		{"[::ffff:192.168.0.5]:40000", "192.168.1.10"},
		{"10.0.0.8:40000", "192.168.1.10"},
		{"203.0.113.7:443", "files.example.com"},
		{"[2001:db8::1]:443", "files.example.com"},
		{"not-an-ip", "files.example.com"},
		{"", "files.example.com"},
		{"127.0.0.1", "localhost"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, hosts.HostFor(tc.remoteAddr), tc.remoteAddr)
	}
}

func TestCallbackHosts_CallbackURL(t *testing.T) {
	hosts := CallbackHosts{Dev: "localhost", Local: "192.168.1.10", Remote: "files.example.com"}
	assert.Equal(t, "http://files.example.com:3001/auth/oidc/callback",
		hosts.CallbackURL("198.51.100.2:1000", 3001, "oidc"))
	assert.Equal(t, "http://192.168.1.10:8080/auth/discord/callback",
		hosts.CallbackURL("192.168.1.99:1000", 8080, "discord"))
}
