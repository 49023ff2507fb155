package proxy

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestPool_AddAndNext(t *testing.T) {
	pool := NewPool(Config{})

	if err := pool.Add("127.0.0.1:8080", "http://127.0.0.1:8081", "socks5://127.0.0.1:9050"); err != nil {
		t.Fatalf("unexpected error adding proxies: %v", err)
	}

	want := []string{
		"http://127.0.0.1:8080",
		"http://127.0.0.1:8081",
		"socks5://127.0.0.1:9050",
		"http://127.0.0.1:8080",
	}
	for i, w := range want {
		got, ok := pool.Next()
		if !ok || got != w {
			t.Errorf("call %d: expected %s, got %q (ok=%v)", i, w, got, ok)
		}
	}
}

func TestPool_Benching(t *testing.T) {
	now := time.Now()
	pool := NewPool(Config{Strikes: 2, Cooldown: time.Minute})
	pool.now = func() time.Time { return now }

	if err := pool.Add("http://a", "http://b"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	a, _ := pool.Next()
	if a != "http://a" {
		t.Fatalf("expected http://a, got %s", a)
	}
	_ = pool.Report(a, false)
	_ = pool.Report(a, false)

	for i := 0; i < 2; i++ {
		if got, _ := pool.Next(); got != "http://b" {
			t.Fatalf("expected http://b while a is benched, got %s", got)
		}
	}

	now = now.Add(2 * time.Minute)
	if got, _ := pool.Next(); got != "http://a" {
		t.Fatalf("expected http://a after cooldown, got %s", got)
	}
}

func TestPool_AllBenched(t *testing.T) {
	pool := NewPool(Config{Strikes: 1, Cooldown: time.Hour})
	_ = pool.Add("http://a")

	a, _ := pool.Next()
	_ = pool.Report(a, false)

	if got, ok := pool.Next(); ok {
		t.Errorf("expected no endpoint when all are benched, got %s", got)
	}
}

func TestPool_SuccessForgivesStrike(t *testing.T) {
	pool := NewPool(Config{Strikes: 2, Cooldown: time.Hour})
	_ = pool.Add("http://a")

	_ = pool.Report("http://a", false)
	_ = pool.Report("http://a", true)
	_ = pool.Report("http://a", false)

	if _, ok := pool.Next(); !ok {
		t.Errorf("expected endpoint to remain in rotation")
	}
}

func TestPool_Load(t *testing.T) {
	path := filepath.Join(t.TempDir(), "proxies.txt")
	content := `
# residential
http://proxy1.com
proxy2.com:80

socks5://proxy3.com:1080
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write proxy file: %v", err)
	}

	pool := NewPool(Config{})
	if err := pool.Load(path); err != nil {
		t.Fatalf("failed to load file: %v", err)
	}
	if pool.Len() != 3 {
		t.Fatalf("expected 3 endpoints, got %d", pool.Len())
	}

	expected := []string{"http://proxy1.com", "http://proxy2.com:80", "socks5://proxy3.com:1080"}
	for i, e := range expected {
		if got, _ := pool.Next(); got != e {
			t.Errorf("entry %d: expected %s, got %s", i, e, got)
		}
	}
}

func TestPool_ReportUnknown(t *testing.T) {
	pool := NewPool(Config{})
	_ = pool.Add("http://a")

	if err := pool.Report("http://unknown", true); !errors.Is(err, ErrUnknown) {
		t.Errorf("expected ErrUnknown, got %v", err)
	}
}

func TestPool_Empty(t *testing.T) {
	pool := NewPool(Config{})
	if got, ok := pool.Next(); ok {
		t.Errorf("expected nothing from empty pool, got %s", got)
	}
}

func TestPool_AddRejectsMissingHost(t *testing.T) {
	pool := NewPool(Config{})
	if err := pool.Add("http://"); err == nil {
		t.Errorf("expected error for endpoint without host")
	}
}
