package file

import (
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// tempPath returns a path in a fresh temp dir with no file at it yet.
func tempPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "cookies.json")
}

var room = &url.URL{Scheme: "https", Host: "euphoria.leet.nu", Path: "/room/test/ws"}

func TestNewWithoutFile(t *testing.T) {
	jar, err := New(tempPath(t), nil)
	if err != nil {
		t.Fatalf("failed to create jar: %v", err)
	}
	if jar.Count() != 0 {
		t.Errorf("expected empty jar, got %d cookies", jar.Count())
	}
}

func TestPersistenceAcrossRestart(t *testing.T) {
	path := tempPath(t)

	jar1, err := New(path, nil)
	if err != nil {
		t.Fatalf("failed to create jar1: %v", err)
	}
	jar1.SetCookies(room, []*http.Cookie{{Name: "a", Value: "agent1", Path: "/", MaxAge: 3600}})

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected cookie file to exist: %v", err)
	}

	// simulate restart
	jar2, err := New(path, nil)
	if err != nil {
		t.Fatalf("failed to create jar2: %v", err)
	}

	got := jar2.Cookies(room)
	if len(got) != 1 || got[0].Value != "agent1" {
		t.Fatalf("expected agent cookie after restart, got %v", got)
	}
}

func TestExpiredNotRestored(t *testing.T) {
	path := tempPath(t)
	data := `[{"url":"https://euphoria.leet.nu/","cookie":{"Name":"a","Value":"old","Path":"/","Expires":"` +
		time.Now().Add(-time.Hour).UTC().Format(time.RFC3339) + `"}}]`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	jar, err := New(path, nil)
	if err != nil {
		t.Fatalf("failed to create jar: %v", err)
	}
	if jar.Count() != 0 {
		t.Errorf("expected expired cookie to be dropped, got %d", jar.Count())
	}
}

func TestDeleteIsPersisted(t *testing.T) {
	path := tempPath(t)

	jar1, _ := New(path, nil)
	jar1.SetCookies(room, []*http.Cookie{{Name: "a", Value: "1", Path: "/"}})
	jar1.SetCookies(room, []*http.Cookie{{Name: "a", MaxAge: -1, Path: "/"}})

	jar2, err := New(path, nil)
	if err != nil {
		t.Fatalf("failed to create jar2: %v", err)
	}
	if jar2.Count() != 0 {
		t.Errorf("expected deletion to survive restart, got %d cookies", jar2.Count())
	}
}

func TestClearTruncates(t *testing.T) {
	path := tempPath(t)

	jar1, _ := New(path, nil)
	jar1.SetCookies(room, []*http.Cookie{{Name: "a", Value: "1", Path: "/"}})
	if err := jar1.Clear(); err != nil {
		t.Fatalf("clear failed: %v", err)
	}

	jar2, _ := New(path, nil)
	if jar2.Count() != 0 {
		t.Errorf("expected empty jar after clear, got %d", jar2.Count())
	}
}

func TestCorruptFile(t *testing.T) {
	path := tempPath(t)
	if err := os.WriteFile(path, []byte("not json"), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := New(path, nil); err == nil {
		t.Error("expected error for corrupt cookie file")
	}
}

func TestNoTempFileLeft(t *testing.T) {
	path := tempPath(t)
	jar, _ := New(path, nil)
	jar.SetCookies(room, []*http.Cookie{{Name: "a", Value: "1", Path: "/"}})

	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Errorf("expected temp file to be renamed away, stat err: %v", err)
	}
}
