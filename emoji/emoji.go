// Package emoji knows the colon-delimited emoji names a Euphoria client
// renders, such as :x: or :waning_crescent_moon:, and can find, replace or
// strip them in message text and nicks.
package emoji

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"
)

//go:embed emoji.json
var tableJSON []byte

// Table maps emoji names to their unicode representation. Some emoji are
// images only and have no representation.
type Table struct {
	m map[string]string // "" for image-only emoji
}

var (
	loadOnce sync.Once
	builtin  *Table
)

// Load returns the table compiled into the package.
func Load() *Table {
	loadOnce.Do(func() {
		t, err := LoadFromJSON(tableJSON)
		if err != nil {
			panic(fmt.Sprintf("emoji: embedded table: %v", err))
		}
		builtin = t
	})
	return builtin
}

// LoadFromJSON builds a table from a JSON object whose keys are emoji names
// without colons and whose values are dash separated hexadecimal code
// points, e.g. "34-fe0f-20e3". A value not of that form marks an emoji
// with no unicode representation.
func LoadFromJSON(data []byte) (*Table, error) {
	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	t := &Table{m: make(map[string]string, len(raw))}
	for name, points := range raw {
		t.m[name] = parseCodePoints(points)
	}
	return t, nil
}

func parseCodePoints(s string) string {
	var b strings.Builder
	for _, hex := range strings.Split(s, "-") {
		n, err := strconv.ParseUint(hex, 16, 32)
		if err != nil || !utf8.ValidRune(rune(n)) {
			return ""
		}
		b.WriteRune(rune(n))
	}
	return b.String()
}

// Len is the number of known emoji.
func (t *Table) Len() int {
	return len(t.m)
}

// Get returns the unicode representation of the named emoji. known is false
// if the name is not an emoji at all; repl is empty for image-only emoji.
func (t *Table) Get(name string) (repl string, known bool) {
	repl, known = t.m[name]
	return repl, known
}

// Match is one emoji found in a text. Start and End are byte offsets of
// the surrounding colons, End exclusive.
type Match struct {
	Start, End  int
	Name        string
	Replacement string // empty for image-only emoji
}

// Find returns the emoji in text from left to right. A colon closes at
// most one emoji, so in ":x:o:" only :x: is found.
func (t *Table) Find(text string) []Match {
	var out []Match
	prev := -1
	for i := 0; i < len(text); i++ {
		if text[i] != ':' {
			continue
		}
		if prev >= 0 {
			name := text[prev+1 : i]
			if repl, ok := t.m[name]; ok {
				out = append(out, Match{Start: prev, End: i + 1, Name: name, Replacement: repl})
				prev = -1
				continue
			}
		}
		prev = i
	}
	return out
}

// Replace substitutes every emoji that has a unicode representation.
// Image-only emoji are left as they are.
func (t *Table) Replace(text string) string {
	return t.rewrite(text, func(m Match) (string, bool) {
		return m.Replacement, m.Replacement != ""
	})
}

// Remove deletes every emoji, with or without a representation.
func (t *Table) Remove(text string) string {
	return t.rewrite(text, func(Match) (string, bool) {
		return "", true
	})
}

func (t *Table) rewrite(text string, with func(Match) (string, bool)) string {
	matches := t.Find(text)
	if len(matches) == 0 {
		return text
	}

	var b strings.Builder
	last := 0
	for _, m := range matches {
		repl, ok := with(m)
		if !ok {
			continue
		}
		b.WriteString(text[last:m.Start])
		b.WriteString(repl)
		last = m.End
	}
	b.WriteString(text[last:])
	return b.String()
}
