// Package nick implements the nick handling of the Euphoria web client:
// the hue a nick is coloured with, comparison of nicks and @mentions.
package nick

import (
	"strings"
	"unicode"
	"unicode/utf16"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/risa-org/euph/emoji"
)

// greenieOffset makes "greenie" hash to 148.
const greenieOffset = 148 - 192

// Hue returns the hue in [0, 255) the web client colours nick with. Emoji
// are removed first.
func Hue(e *emoji.Table, nick string) uint8 {
	return HueWithoutRemovingEmoji(e.Remove(nick))
}

// HueWithoutRemovingEmoji is Hue for a nick known to contain no emoji. It
// gives a different result than Hue if the nick does contain any.
func HueWithoutRemovingEmoji(nick string) uint8 {
	if normalized := hueNormalize(nick); normalized != "" {
		return hueHash(normalized, greenieOffset)
	}
	return hueHash(nick, greenieOffset)
}

// hueNormalize keeps ASCII letters, digits, '_' and '-', lowercased.
func hueNormalize(text string) string {
	var b strings.Builder
	for _, r := range text {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r + 'a' - 'A')
		}
	}
	return b.String()
}

// hueHash hashes the UTF-16 encoding of text the way the web client does,
// including its 32-bit overflow.
func hueHash(text string, offset int64) uint8 {
	var val int32
	for _, unit := range utf16.Encode([]rune(text)) {
		charVal := int32(unit) * 439 % 256
		val = val*33 + charVal
	}
	return uint8((int64(val) + 1<<31 + offset) % 255)
}

func delimitsMention(r rune) bool {
	switch r {
	case ',', '.', '!', '?', ';', '&', '<', '>', '\'', '"':
		return true
	}
	return unicode.IsSpace(r)
}

// Mention returns nick with every character that ends an @mention
// removed. "@" followed by the result pings the nick's owner.
func Mention(nick string) string {
	return strings.Map(func(r rune) rune {
		if delimitsMention(r) {
			return -1
		}
		return r
	}, nick)
}

// Normalize returns a form of nick for comparing nicks with each other. A
// nick and its Mention normalize to the same string. The steps are
// Mention, NFKC and case folding.
//
// Two nicks the web client considers the same for pings may still
// normalize differently.
func Normalize(nick string) string {
	return cases.Fold().String(norm.NFKC.String(Mention(nick)))
}
