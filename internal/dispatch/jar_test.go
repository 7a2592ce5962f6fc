package dispatch

import (
	"testing"
	"time"
)

func TestJar_StoreAndHeader(t *testing.T) {
	jar := NewJar()
	jar.Store("api.example.com", []string{"session=abc123; Path=/", "theme=dark"})

	header := jar.Header("api.example.com")
	if header != "session=abc123; theme=dark" {
		t.Errorf("unexpected cookie header: %q", header)
	}
}

func TestJar_HostIsolation(t *testing.T) {
	jar := NewJar()
	jar.Store("a.example.com", []string{"a=1"})

	if got := jar.Header("b.example.com"); got != "" {
		t.Errorf("cookies must not leak across hosts, got %q", got)
	}
}

func TestJar_ReplaceSameName(t *testing.T) {
	jar := NewJar()
	jar.Store("api.example.com", []string{"session=old"})
	jar.Store("api.example.com", []string{"session=new"})

	if got := jar.Header("api.example.com"); got != "session=new" {
		t.Errorf("expected replacement, got %q", got)
	}
}

func TestJar_MaxAgeZeroDeletes(t *testing.T) {
	jar := NewJar()
	jar.Store("api.example.com", []string{"session=abc"})
	jar.Store("api.example.com", []string{"session=abc; Max-Age=0"})

	if got := jar.Header("api.example.com"); got != "" {
		t.Errorf("Max-Age=0 should delete the cookie, got %q", got)
	}
}

func TestJar_ExpiresInPast(t *testing.T) {
	jar := NewJar()
	past := time.Now().Add(-time.Hour).UTC().Format(time.RFC1123)
	jar.Store("api.example.com", []string{"stale=1; Expires=" + past})

	if got := jar.Header("api.example.com"); got != "" {
		t.Errorf("expired cookie should not be stored, got %q", got)
	}
}

func TestJar_MalformedLineIgnored(t *testing.T) {
	jar := NewJar()
	jar.Store("api.example.com", []string{"", "ok=1"})

	if got := jar.Header("api.example.com"); got != "ok=1" {
		t.Errorf("unexpected header: %q", got)
	}
}

func TestJar_Clear(t *testing.T) {
	jar := NewJar()
	jar.Store("api.example.com", []string{"a=1"})
	jar.Clear()

	if got := jar.Header("api.example.com"); got != "" {
		t.Errorf("expected empty jar after Clear, got %q", got)
	}
}
