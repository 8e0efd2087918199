package memory

import (
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sort"
	"sync"
	"time"

	"golang.org/x/net/publicsuffix"
)

// Jar is a thread-safe in-memory http.CookieJar. Sharing one jar between
// the dialers of several instances keeps the agent cookie the server
// hands out, so every reconnect presents the same identity.
// Cookies are lost on restart; store/file persists them.
type Jar struct {
	mu      sync.RWMutex
	jar     *cookiejar.Jar
	entries map[key]Entry
}

type key struct {
	domain, path, name string
}

// Entry is a cookie together with the URL that set it. Replaying the
// entries of one jar into another reproduces its contents.
type Entry struct {
	URL    string       `json:"url"`
	Cookie *http.Cookie `json:"cookie"`
}

// New creates an empty jar that refuses cookies for public suffixes.
func New() *Jar {
	j := &Jar{}
	j.reset()
	return j
}

func (j *Jar) reset() {
	// cookiejar.New never fails.
	jar, _ := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	j.jar = jar
	j.entries = make(map[key]Entry)
}

// Cookies satisfies http.CookieJar.
func (j *Jar) Cookies(u *url.URL) []*http.Cookie {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.jar.Cookies(u)
}

// SetCookies satisfies http.CookieJar.
func (j *Jar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.setLocked(u, cookies, time.Now())
}

func (j *Jar) setLocked(u *url.URL, cookies []*http.Cookie, now time.Time) {
	j.jar.SetCookies(u, cookies)

	for _, c := range cookies {
		k := key{domain: c.Domain, path: c.Path, name: c.Name}
		if k.domain == "" {
			k.domain = u.Hostname()
		}
		if expired(c, now) || !j.accepted(u, c) {
			delete(j.entries, k)
			continue
		}

		// Pin a relative lifetime to an absolute one so a replayed entry
		// expires when the original would have.
		cp := *c
		if cp.MaxAge > 0 {
			cp.Expires = now.Add(time.Duration(cp.MaxAge) * time.Second)
			cp.MaxAge = 0
		}
		j.entries[k] = Entry{URL: u.String(), Cookie: &cp}
	}
}

// accepted reports whether the underlying jar kept c.
func (j *Jar) accepted(u *url.URL, c *http.Cookie) bool {
	probe := *u
	if c.Path != "" {
		probe.Path = c.Path
	}
	for _, got := range j.jar.Cookies(&probe) {
		if got.Name == c.Name && got.Value == c.Value {
			return true
		}
	}
	return false
}

func expired(c *http.Cookie, now time.Time) bool {
	return c.MaxAge < 0 || (!c.Expires.IsZero() && !c.Expires.After(now))
}

// Entries returns the live cookies in a stable order.
func (j *Jar) Entries() []Entry {
	j.mu.RLock()
	defer j.mu.RUnlock()

	now := time.Now()
	out := make([]Entry, 0, len(j.entries))
	for _, e := range j.entries {
		if !expired(e.Cookie, now) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].URL != out[b].URL {
			return out[a].URL < out[b].URL
		}
		return out[a].Cookie.Name < out[b].Cookie.Name
	})
	return out
}

// Restore replays entries into the jar. Expired entries and entries with
// an unparsable URL are skipped.
func (j *Jar) Restore(entries []Entry) {
	j.mu.Lock()
	defer j.mu.Unlock()

	now := time.Now()
	for _, e := range entries {
		if e.Cookie == nil || expired(e.Cookie, now) {
			continue
		}
		u, err := url.Parse(e.URL)
		if err != nil {
			continue
		}
		j.setLocked(u, []*http.Cookie{e.Cookie}, now)
	}
}

// Count returns the number of cookies currently held.
func (j *Jar) Count() int {
	return len(j.Entries())
}

// Clear forgets every cookie, giving the next connection a fresh identity.
func (j *Jar) Clear() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.reset()
}
