package identity

import (
	"strconv"
	"strings"
	"testing"
)

func TestFromHref(t *testing.T) {
	cases := []struct {
		href string
		want Fingerprint
		ok   bool
	}{
		{"https://x.com/golang/status/1789012345678901234", "1789012345678901234", true},
		{"/golang/status/42?s=20", "42", true},
		{"https://x.com/golang/status/42/photo/1", "42", true},
		{"https://x.com/golang/status/abc", "", false},
		{"https://x.com/golang", "", false},
		{"https://x.com/golang/status/", "", false},
	}

	for _, tc := range cases {
		got, ok := FromHref(tc.href)
		if ok != tc.ok || got != tc.want {
			t.Errorf("FromHref(%q) = %q, %v; want %q, %v", tc.href, got, ok, tc.want, tc.ok)
		}
	}
}

func TestFromText(t *testing.T) {
	a := FromText("Go 1.25 is out")
	b := FromText("  go 1.25 IS OUT ")
	if a != b {
		t.Errorf("expected normalized texts to share a fingerprint: %s vs %s", a, b)
	}
	if a.Native() {
		t.Errorf("content fingerprint must not be native")
	}
	if !strings.HasPrefix(string(a), HashPrefix) {
		t.Errorf("expected %q prefix, got %s", HashPrefix, a)
	}

	c := FromText("something else entirely")
	if a == c {
		t.Errorf("expected distinct texts to differ")
	}
}

func TestFromText_Window(t *testing.T) {
	prefix := strings.Repeat("x", HashWindow)
	if FromText(prefix+" tail one") != FromText(prefix+" tail two") {
		t.Errorf("only the first %d runes should feed the hash", HashWindow)
	}
}

func TestFingerprint_Native(t *testing.T) {
	if !Fingerprint("12345").Native() {
		t.Errorf("expected numeric id to be native")
	}
	if Fingerprint("").Native() {
		t.Errorf("expected empty fingerprint to be non-native")
	}
}

func TestFromText_FixedWidthHex(t *testing.T) {
	// Across this many inputs some sums have leading zero nibbles.
	for i := 0; i < 2000; i++ {
		fp := string(FromText("post number " + strconv.Itoa(i)))
		hex := strings.TrimPrefix(fp, HashPrefix)
		if len(hex) != 16 {
			t.Fatalf("FromText(%d) = %q, want 16 hex digits", i, fp)
		}
		if strings.Trim(hex, "0123456789abcdef") != "" {
			t.Fatalf("FromText(%d) = %q, want lower-case hex", i, fp)
		}
	}
}
