package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/risa-org/euph/packet"
)

// The commands below implement the botrulez conventions for Euphoria bots.
// Each handles a message only when it is given no argument.

// Ping replies with Reply, "Pong!" if empty.
type Ping struct {
	Reply string
}

func (p *Ping) Info(*Context) Info {
	return Info{Description: "Trigger a short reply."}
}

func (p *Ping) Execute(ctx context.Context, arg string, msg *packet.Message, c *Context) (bool, error) {
	if !blank(arg) {
		return false, nil
	}
	reply := p.Reply
	if reply == "" {
		reply = "Pong!"
	}
	_, err := c.Reply(ctx, msg.ID, reply)
	return true, err
}

// ShortHelp replies with a one-line description of the bot.
type ShortHelp struct {
	Text string
}

func (h *ShortHelp) Info(*Context) Info {
	return Info{Description: "Show short bot help."}
}

func (h *ShortHelp) Execute(ctx context.Context, arg string, msg *packet.Message, c *Context) (bool, error) {
	if !blank(arg) {
		return false, nil
	}
	_, err := c.Reply(ctx, msg.ID, h.Text)
	return true, err
}

// FullHelp replies with the trigger and description of every visible
// command, framed by Before and After.
type FullHelp struct {
	Before string
	After  string
}

func (h *FullHelp) Info(*Context) Info {
	return Info{Description: "Show full bot help."}
}

func (h *FullHelp) Execute(ctx context.Context, arg string, msg *packet.Message, c *Context) (bool, error) {
	if !blank(arg) {
		return false, nil
	}
	_, err := c.Reply(ctx, msg.ID, h.text(c))
	return true, err
}

func (h *FullHelp) text(c *Context) string {
	var b strings.Builder
	if h.Before != "" {
		b.WriteString(h.Before)
		b.WriteByte('\n')
	}
	for _, info := range c.Commands.Infos(c) {
		if info.Trigger == "" {
			continue
		}
		b.WriteString(info.Trigger)
		if info.Description != "" {
			b.WriteString(" - ")
			b.WriteString(info.Description)
		}
		b.WriteByte('\n')
	}
	if h.After != "" {
		b.WriteString(h.After)
		b.WriteByte('\n')
	}
	return b.String()
}

// Uptime replies with how long the bot has been running. Present adds how
// long the instance has been running, Connected how long the current
// session has been in the room.
type Uptime struct {
	Present   bool
	Connected bool
}

func (u *Uptime) Info(*Context) Info {
	return Info{Description: "Show how long the bot has been online."}
}

func (u *Uptime) Execute(ctx context.Context, arg string, msg *packet.Message, c *Context) (bool, error) {
	if !blank(arg) {
		return false, nil
	}
	_, err := c.Reply(ctx, msg.ID, u.text(c, time.Now()))
	return true, err
}

func (u *Uptime) text(c *Context, now time.Time) string {
	reply := fmt.Sprintf("/me has been up since %s (%s)",
		FormatTime(c.StartedAt), FormatRelativeTime(c.StartedAt.Sub(now)))

	if u.Present && c.Instance != nil {
		since := c.Instance.StartedAt()
		reply += fmt.Sprintf(", present since %s (%s)", FormatTime(since), FormatRelativeTime(since.Sub(now)))
	}
	if u.Connected && c.Joined != nil {
		since := c.Joined.Since
		reply += fmt.Sprintf(", connected since %s (%s)", FormatTime(since), FormatRelativeTime(since.Sub(now)))
	}
	return reply
}

// FormatTime formats t in UTC the way botrulez replies do.
func FormatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04:05") + " UTC"
}

// FormatRelativeTime formats an offset from now, e.g. "in 5m" or
// "1h 2s ago".
func FormatRelativeTime(d time.Duration) string {
	if d > 0 {
		return "in " + FormatDuration(d)
	}
	return FormatDuration(-d) + " ago"
}

// FormatDuration formats d to the second as days, hours, minutes and
// seconds, leaving out zero parts: "1d 3h 5s".
func FormatDuration(d time.Duration) string {
	sign := ""
	if d < 0 {
		sign, d = "-", -d
	}
	total := int64(d / time.Second)
	parts := []struct {
		n    int64
		unit string
	}{
		{total / 86400, "d"},
		{total / 3600 % 24, "h"},
		{total / 60 % 60, "m"},
		{total % 60, "s"},
	}

	var segs []string
	for _, p := range parts {
		if p.n > 0 {
			segs = append(segs, fmt.Sprintf("%d%s", p.n, p.unit))
		}
	}
	if len(segs) == 0 {
		return "0s"
	}
	return sign + strings.Join(segs, " ")
}
