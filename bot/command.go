// Package bot turns room messages into command invocations.
//
// A Commands registry is fed the events of one or more instances. For
// every send-event received while joined it offers the message to each
// registered Command in order until one reports it handled the message.
package bot

import (
	"context"
	"strings"
	"time"

	"github.com/risa-org/euph/instance"
	"github.com/risa-org/euph/packet"
	"github.com/risa-org/euph/room"
	"github.com/risa-org/euph/session"
)

// Info describes a command for help output. An empty Trigger hides the
// command from FullHelp.
type Info struct {
	Trigger     string
	Description string
}

// WithPrependedTrigger returns i with trigger put in front of its trigger,
// separated by a space.
func (i Info) WithPrependedTrigger(trigger string) Info {
	if i.Trigger == "" {
		i.Trigger = trigger
	} else {
		i.Trigger = trigger + " " + i.Trigger
	}
	return i
}

// Context is what a command knows about where a message came from.
type Context struct {
	// Instance the message arrived on and the session it arrived in.
	// Replies go out on Conn, so a reply to a message from a session that
	// has since closed fails instead of reaching the next one.
	Instance *instance.Instance
	Conn     *session.Session

	Joined   *room.Joined
	Commands *Commands

	// StartedAt is when the bot started, or the instance if there is no bot.
	StartedAt time.Time
}

// Send posts a new top-level message. It does not wait for the reply.
func (c *Context) Send(ctx context.Context, content string) (*session.Pending, error) {
	return c.Conn.Submit(ctx, packet.SendCommand{Content: content})
}

// Reply posts content as a child of parent. It does not wait for the reply.
func (c *Context) Reply(ctx context.Context, parent packet.Snowflake, content string) (*session.Pending, error) {
	return c.Conn.Submit(ctx, packet.SendCommand{Content: content, Parent: &parent})
}

// Command reacts to room messages.
type Command interface {
	Info(c *Context) Info

	// Execute is offered a message whose text, possibly trimmed by a
	// wrapper, is arg. It reports whether it handled the message.
	//
	// Execute runs on the goroutine that drains the instance's events, so
	// it must not block waiting for replies.
	Execute(ctx context.Context, arg string, msg *packet.Message, c *Context) (handled bool, err error)
}

// Func adapts a function to a Command with no help entry.
type Func func(ctx context.Context, arg string, msg *packet.Message, c *Context) (bool, error)

func (f Func) Info(*Context) Info { return Info{} }

func (f Func) Execute(ctx context.Context, arg string, msg *packet.Message, c *Context) (bool, error) {
	return f(ctx, arg, msg, c)
}

// Commands is an ordered registry of commands.
type Commands struct {
	commands []Command

	// Fallthrough, if set, is offered every message no command handled.
	Fallthrough Command
}

// NewCommands returns a registry holding cmds in order.
func NewCommands(cmds ...Command) *Commands {
	return &Commands{commands: cmds}
}

// Add appends cmd and returns the registry for chaining.
func (cs *Commands) Add(cmd Command) *Commands {
	cs.commands = append(cs.commands, cmd)
	return cs
}

// Infos returns the help entries of every command in order.
func (cs *Commands) Infos(c *Context) []Info {
	infos := make([]Info, 0, len(cs.commands))
	for _, cmd := range cs.commands {
		infos = append(infos, cmd.Info(c))
	}
	return infos
}

// Handle offers the message carried by ev to the commands. Events other
// than a send-event received while joined are ignored. It reports whether
// some command, or the fallthrough, handled the message, and stops at the
// first error.
//
// base supplies Instance and StartedAt; the rest of the Context is filled
// in from ev.
func (cs *Commands) Handle(ctx context.Context, ev instance.Event, base Context) (bool, error) {
	if ev.Kind != instance.EventPacket || ev.Packet == nil || ev.Packet.Type != packet.SendEvent {
		return false, nil
	}
	if ev.State == nil || !ev.State.IsJoined() || ev.Conn == nil {
		return false, nil
	}

	var data packet.SendEventData
	if err := ev.Packet.Into(packet.SendEvent, &data); err != nil {
		return false, nil
	}
	msg := &data.Message

	c := &base
	c.Conn = ev.Conn
	c.Joined = ev.State.Joined
	c.Commands = cs
	if c.StartedAt.IsZero() && c.Instance != nil {
		c.StartedAt = c.Instance.StartedAt()
	}

	for _, cmd := range cs.commands {
		handled, err := cmd.Execute(ctx, msg.Content, msg, c)
		if err != nil || handled {
			return handled, err
		}
	}
	if cs.Fallthrough != nil {
		return cs.Fallthrough.Execute(ctx, msg.Content, msg, c)
	}
	return false, nil
}

// blank reports whether a command was given no argument.
func blank(arg string) bool {
	return strings.TrimSpace(arg) == ""
}
