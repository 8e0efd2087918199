package bot

import (
	"context"
	"strings"
	"unicode"

	"github.com/risa-org/euph/packet"
)

// Described overrides the help entry of Inner. Nil fields keep Inner's.
type Described struct {
	Inner       Command
	Trigger     *string
	Description *string
}

// Describe gives inner a description.
func Describe(inner Command, description string) *Described {
	return &Described{Inner: inner, Description: &description}
}

// Hidden keeps inner out of the help output.
func Hidden(inner Command) *Described {
	empty := ""
	return &Described{Inner: inner, Trigger: &empty, Description: &empty}
}

func (d *Described) Info(c *Context) Info {
	info := d.Inner.Info(c)
	if d.Trigger != nil {
		info.Trigger = *d.Trigger
	}
	if d.Description != nil {
		info.Description = *d.Description
	}
	return info
}

func (d *Described) Execute(ctx context.Context, arg string, msg *packet.Message, c *Context) (bool, error) {
	return d.Inner.Execute(ctx, arg, msg, c)
}

// Prefixed passes on messages starting with Prefix, after leading
// whitespace, with the prefix cut off.
type Prefixed struct {
	Prefix string
	Inner  Command
}

func (p *Prefixed) Info(c *Context) Info {
	return p.Inner.Info(c).WithPrependedTrigger(p.Prefix)
}

func (p *Prefixed) Execute(ctx context.Context, arg string, msg *packet.Message, c *Context) (bool, error) {
	rest, ok := strings.CutPrefix(strings.TrimLeftFunc(arg, unicode.IsSpace), p.Prefix)
	if !ok {
		return false, nil
	}
	return p.Inner.Execute(ctx, rest, msg, c)
}
