// Package fingerprint builds HTTP transports whose TLS handshake resembles a
// real browser, so plain HTTP probes see what a browser would see.
package fingerprint

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	utls "github.com/refraction-networking/utls"
)

// Profile names a TLS ClientHello to imitate.
type Profile string

const (
	ProfileChrome  Profile = "chrome"
	ProfileFirefox Profile = "firefox"
	ProfileSafari  Profile = "safari"
	// ProfileGo uses the standard library handshake with browser-like
	// cipher preferences and default headers.
	ProfileGo     Profile = "go"
	ProfileRandom Profile = "random"
)

// Profiles lists every supported profile.
var Profiles = []Profile{ProfileChrome, ProfileFirefox, ProfileSafari, ProfileGo, ProfileRandom}

// ParseProfile maps a config value to a Profile. Empty selects Chrome.
func ParseProfile(s string) (Profile, error) {
	if strings.TrimSpace(s) == "" {
		return ProfileChrome, nil
	}
	p := Profile(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Profiles {
		if p == known {
			return p, nil
		}
	}
	return "", fmt.Errorf("fingerprint: unknown profile %q", s)
}

// Options tune the transport.
type Options struct {
	// Proxy selects a proxy per request. Nil uses no proxy.
	Proxy func(*http.Request) (*url.URL, error)
	// InsecureSkipVerify disables certificate checks. Tests only.
	InsecureSkipVerify bool
}

func helloID(p Profile) (utls.ClientHelloID, error) {
	switch p {
	case ProfileChrome:
		return utls.HelloChrome_Auto, nil
	case ProfileFirefox:
		return utls.HelloFirefox_Auto, nil
	case ProfileSafari:
		return utls.HelloIOS_Auto, nil
	case ProfileRandom:
		return utls.HelloRandomizedALPN, nil
	default:
		return utls.ClientHelloID{}, fmt.Errorf("fingerprint: unknown profile %q", p)
	}
}

// Transport returns a RoundTripper for profile p. Browser profiles dial TLS
// through uTLS; ProfileGo wraps the standard transport with cloudflare-bp.
func Transport(p Profile, opts Options) (http.RoundTripper, error) {
	base := http.DefaultTransport.(*http.Transport).Clone()
	base.Proxy = opts.Proxy

	if p == ProfileGo {
		base.TLSClientConfig = &tls.Config{InsecureSkipVerify: opts.InsecureSkipVerify}
		return cloudflarebp.AddCloudFlareByPass(base), nil
	}

	id, err := helloID(p)
	if err != nil {
		return nil, err
	}

	// uTLS does not negotiate HTTP/2 for net/http, so keep the connection
	// on HTTP/1.1.
	base.ForceAttemptHTTP2 = false
	dial := base.DialContext
	base.DialTLSContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := dial(ctx, network, addr)
		if err != nil {
			return nil, err
		}

		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			host = addr
		}

		uconn := utls.UClient(conn, &utls.Config{
			ServerName:         host,
			InsecureSkipVerify: opts.InsecureSkipVerify,
			NextProtos:         []string{"http/1.1"},
		}, id)
		if err := uconn.HandshakeContext(ctx); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("fingerprint: %s handshake with %s: %w", p, host, err)
		}
		return uconn, nil
	}

	return base, nil
}
