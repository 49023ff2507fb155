// Package credential loads the stored session token used to authenticate
// browser sessions.
package credential

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/Cryonoid/TwitLysis/internal/browser"
)

// DefaultPath is the credential file read when none is configured.
const DefaultPath = "twitter_cookies.json"

// CookieName is the session cookie the token is applied as.
const CookieName = "auth_token"

type file struct {
	AuthToken string `json:"auth_token"`
}

// Load reads the token from a JSON file of the form {"auth_token": "..."}.
// A missing file or empty token is not an error: ok is false.
func Load(path string) (token string, ok bool, err error) {
	if path == "" {
		path = DefaultPath
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("credential: read %s: %w", path, err)
	}

	var f file
	if err := json.Unmarshal(data, &f); err != nil {
		return "", false, fmt.Errorf("credential: parse %s: %w", path, err)
	}
	token = strings.TrimSpace(f.AuthToken)
	return token, token != "", nil
}

// Cookie builds the session cookie for token on domain.
func Cookie(token, domain string) browser.Cookie {
	return browser.Cookie{
		Name:     CookieName,
		Value:    token,
		Domain:   domain,
		Path:     "/",
		Secure:   true,
		HTTPOnly: true,
	}
}
