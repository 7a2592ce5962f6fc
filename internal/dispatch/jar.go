package dispatch

import (
	"net/http"
	"strings"
	"sync"
	"time"
)

// Jar is the session-wide cookie store, keyed by host. The dispatcher
// is its only writer; runners and pipelines share one Jar per
// session. All methods are safe for concurrent use.
type Jar struct {
	mu      sync.Mutex
	entries map[string][]*http.Cookie
}

// NewJar creates an empty cookie jar.
func NewJar() *Jar {
	return &Jar{entries: make(map[string][]*http.Cookie)}
}

// Store records Set-Cookie lines received from host. A cookie
// replaces an existing one with the same name; cookies expired by
// the directive itself (Max-Age<=0 or a past Expires) remove it.
func (j *Jar) Store(host string, setCookies []string) {
	if len(setCookies) == 0 {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()

	for _, line := range setCookies {
		cookie, err := http.ParseSetCookie(line)
		if err != nil {
			continue
		}
		existing := j.entries[host]
		kept := existing[:0]
		for _, c := range existing {
			if c.Name != cookie.Name {
				kept = append(kept, c)
			}
		}
		if cookie.MaxAge > 0 {
			// Pin relative Max-Age to an absolute deadline at store time.
			cookie.Expires = time.Now().Add(time.Duration(cookie.MaxAge) * time.Second)
		}
		if !expired(cookie, time.Now()) {
			kept = append(kept, cookie)
		}
		j.entries[host] = kept
	}
}

// Header renders the Cookie header value for a request to host,
// skipping entries that have expired since they were stored. Returns
// "" when nothing matches.
func (j *Jar) Header(host string) string {
	j.mu.Lock()
	defer j.mu.Unlock()

	now := time.Now()
	var pairs []string
	kept := j.entries[host][:0]
	for _, c := range j.entries[host] {
		if expired(c, now) {
			continue
		}
		kept = append(kept, c)
		pairs = append(pairs, c.Name+"="+c.Value)
	}
	j.entries[host] = kept
	return strings.Join(pairs, "; ")
}

// Hosts returns the hosts currently holding cookies.
func (j *Jar) Hosts() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]string, 0, len(j.entries))
	for h := range j.entries {
		if len(j.entries[h]) > 0 {
			out = append(out, h)
		}
	}
	return out
}

// Clear drops every stored cookie.
func (j *Jar) Clear() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = make(map[string][]*http.Cookie)
}

func expired(c *http.Cookie, now time.Time) bool {
	if c.MaxAge < 0 {
		return true
	}
	if !c.Expires.IsZero() && c.Expires.Before(now) {
		return true
	}
	return false
}
