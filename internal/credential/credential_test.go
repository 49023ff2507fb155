package credential

import (
	"os"
	"path/filepath"
	"testing"
)

func write(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cookies.json")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	token, ok, err := Load(write(t, `{"auth_token": " abc123 "}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok || token != "abc123" {
		t.Errorf("expected abc123, got %q (ok=%v)", token, ok)
	}
}

func TestLoad_Missing(t *testing.T) {
	_, ok, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("missing file should not be an error: %v", err)
	}
	if ok {
		t.Errorf("expected no token")
	}
}

func TestLoad_EmptyToken(t *testing.T) {
	_, ok, err := Load(write(t, `{"auth_token": ""}`))
	if err != nil || ok {
		t.Errorf("expected absent token, got ok=%v err=%v", ok, err)
	}
}

func TestLoad_Malformed(t *testing.T) {
	if _, _, err := Load(write(t, `{auth_token`)); err == nil {
		t.Errorf("expected parse error")
	}
}

func TestCookie(t *testing.T) {
	c := Cookie("tok", ".x.com")
	if c.Name != CookieName || c.Value != "tok" || c.Domain != ".x.com" || c.Path != "/" || !c.Secure || !c.HTTPOnly {
		t.Errorf("unexpected cookie: %+v", c)
	}
}
