package file

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"sync"

	"github.com/rs/zerolog"

	"github.com/risa-org/euph/store/memory"
)

// Jar is a file-backed http.CookieJar. Cookies are written to a JSON file
// whenever the server sets one and survive restarts, so a bot keeps its
// agent identity. Not suitable for several processes sharing one file.
type Jar struct {
	mem  *memory.Jar
	log  zerolog.Logger
	path string

	mu sync.Mutex // serialises flushes
}

// New creates a jar persisted at path. If the file exists its cookies are
// loaded; otherwise it is created on the first write. A nil logger
// discards flush failures.
func New(path string, log *zerolog.Logger) (*Jar, error) {
	j := &Jar{mem: memory.New(), path: path, log: zerolog.Nop()}
	if log != nil {
		j.log = log.With().Str("cookies", path).Logger()
	}

	if err := j.load(); err != nil {
		return nil, fmt.Errorf("failed to load cookies from %s: %w", path, err)
	}
	return j, nil
}

// Cookies satisfies http.CookieJar.
func (j *Jar) Cookies(u *url.URL) []*http.Cookie {
	return j.mem.Cookies(u)
}

// SetCookies satisfies http.CookieJar. The file is rewritten right away;
// a failed write is logged and retried on the next change.
func (j *Jar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.mem.SetCookies(u, cookies)
	if err := j.Flush(); err != nil {
		j.log.Warn().Err(err).Msg("failed to persist cookies")
	}
}

// Count returns the number of cookies currently held.
func (j *Jar) Count() int {
	return j.mem.Count()
}

// Clear forgets every cookie and truncates the file.
func (j *Jar) Clear() error {
	j.mem.Clear()
	return j.Flush()
}

// load reads the file into memory. A missing file is an empty jar.
func (j *Jar) load() error {
	data, err := os.ReadFile(j.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	var entries []memory.Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return err
	}
	j.mem.Restore(entries)
	return nil
}

// Flush writes the live cookies to the file.
func (j *Jar) Flush() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	data, err := json.MarshalIndent(j.mem.Entries(), "", "  ")
	if err != nil {
		return err
	}

	// write to a temp file then rename so a crash never leaves a
	// truncated jar behind
	tmp := j.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, j.path)
}
