package bot

import (
	"context"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/risa-org/euph/nick"
	"github.com/risa-org/euph/packet"
)

// DefaultPrefix starts bang commands.
const DefaultPrefix = "!"

// ParsePrefixInitiated parses leading whitespace followed by prefix and a
// command name. rest is what follows the name with one whitespace
// character removed, and may be empty.
func ParsePrefixInitiated(text, prefix string) (name, rest string, ok bool) {
	text, ok = strings.CutPrefix(strings.TrimLeftFunc(text, unicode.IsSpace), prefix)
	if !ok {
		return "", "", false
	}

	name = text
	if i := strings.IndexFunc(text, unicode.IsSpace); i >= 0 {
		_, size := utf8.DecodeRuneInString(text[i:])
		name, rest = text[:i], text[i+size:]
	}
	if name == "" {
		return "", "", false
	}
	return name, rest, true
}

// Global is a command every bot in the room answers, like !help.
type Global struct {
	Prefix string // DefaultPrefix if empty
	Name   string
	Inner  Command
}

func (g *Global) Info(c *Context) Info {
	return g.Inner.Info(c).WithPrependedTrigger(prefixOr(g.Prefix) + g.Name)
}

func (g *Global) Execute(ctx context.Context, arg string, msg *packet.Message, c *Context) (bool, error) {
	name, rest, ok := ParsePrefixInitiated(arg, prefixOr(g.Prefix))
	if !ok || name != g.Name {
		return false, nil
	}
	return g.Inner.Execute(ctx, rest, msg, c)
}

// General is like Global but stays silent when the command is addressed to
// a specific bot, so another bot's !help @them is not taken for !help.
type General struct {
	Prefix string
	Name   string
	Inner  Command
}

func (g *General) Info(c *Context) Info {
	return g.Inner.Info(c).WithPrependedTrigger(prefixOr(g.Prefix) + g.Name)
}

func (g *General) Execute(ctx context.Context, arg string, msg *packet.Message, c *Context) (bool, error) {
	name, rest, ok := ParsePrefixInitiated(arg, prefixOr(g.Prefix))
	if !ok || name != g.Name {
		return false, nil
	}
	if _, _, specific := ParsePrefixInitiated(rest, "@"); specific {
		return false, nil
	}
	return g.Inner.Execute(ctx, rest, msg, c)
}

// Specific is a command addressed to this bot by nick, like !help @bot.
type Specific struct {
	Prefix string
	Name   string
	Inner  Command
}

func (s *Specific) Info(c *Context) Info {
	trigger := prefixOr(s.Prefix) + s.Name + " @" + nick.Mention(c.Joined.Session.Name)
	return s.Inner.Info(c).WithPrependedTrigger(trigger)
}

func (s *Specific) Execute(ctx context.Context, arg string, msg *packet.Message, c *Context) (bool, error) {
	name, rest, ok := ParsePrefixInitiated(arg, prefixOr(s.Prefix))
	if !ok || name != s.Name {
		return false, nil
	}
	target, rest, ok := ParsePrefixInitiated(rest, "@")
	if !ok || nick.Normalize(target) != nick.Normalize(c.Joined.Session.Name) {
		return false, nil
	}
	return s.Inner.Execute(ctx, rest, msg, c)
}

func prefixOr(p string) string {
	if p == "" {
		return DefaultPrefix
	}
	return p
}
