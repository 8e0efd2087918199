package bot

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/risa-org/euph/instance"
)

var errNoRooms = errors.New("bot has no rooms")

// Config configures a Bot.
type Config struct {
	// Commands handles the messages of every room. Optional.
	Commands *Commands

	// OnEvent, if set, sees every event of every instance before the
	// commands do. It runs on the instance's event goroutine.
	OnEvent func(ctx context.Context, inst *instance.Instance, ev instance.Event)

	// FailFast stops every room as soon as one stops for a reason other
	// than Stop or cancellation, and makes Run return that reason.
	FailFast bool

	Logger *zerolog.Logger
}

// Bot runs one instance per room and dispatches their messages to a
// shared command registry.
type Bot struct {
	cfg       Config
	log       zerolog.Logger
	startedAt time.Time
	rooms     []instance.Config

	mu        sync.Mutex
	instances map[string]*instance.Instance
}

// New creates a bot with no rooms.
func New(cfg Config) *Bot {
	b := &Bot{cfg: cfg, log: zerolog.Nop(), startedAt: time.Now(), instances: make(map[string]*instance.Instance)}
	if cfg.Logger != nil {
		b.log = *cfg.Logger
	}
	return b
}

// Add registers a room to join when Run is called. Instances without a
// logger of their own log through the bot's.
func (b *Bot) Add(cfg instance.Config) {
	if cfg.Logger == nil {
		cfg.Logger = &b.log
	}
	b.rooms = append(b.rooms, cfg)
}

// StartedAt is when the bot was created.
func (b *Bot) StartedAt() time.Time {
	return b.startedAt
}

// Instances returns the running instances ordered by room.
func (b *Bot) Instances() []*instance.Instance {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*instance.Instance, 0, len(b.instances))
	for _, inst := range b.instances {
		out = append(out, inst)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Room() != out[j].Room() {
			return out[i].Room() < out[j].Room()
		}
		return out[i].ID() < out[j].ID()
	})
	return out
}

// Run starts every room and blocks until all of them have stopped.
// Cancelling ctx stops them.
func (b *Bot) Run(ctx context.Context) error {
	if len(b.rooms) == 0 {
		return errNoRooms
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, cfg := range b.rooms {
		inst, err := instance.Start(ctx, cfg)
		if err != nil {
			b.stopAll()
			g.Wait()
			return err
		}
		b.mu.Lock()
		b.instances[inst.ID()] = inst
		b.mu.Unlock()

		g.Go(func() error { return b.serve(ctx, inst) })
	}
	return g.Wait()
}

func (b *Bot) stopAll() {
	for _, inst := range b.Instances() {
		inst.Stop()
	}
}

// serve drains the events of one instance until it stops.
func (b *Bot) serve(ctx context.Context, inst *instance.Instance) error {
	defer func() {
		b.mu.Lock()
		delete(b.instances, inst.ID())
		b.mu.Unlock()
	}()

	log := b.log.With().Str("room", inst.Room()).Logger()
	base := Context{Instance: inst, StartedAt: b.startedAt}

	var reason error
	for ev := range inst.Events() {
		if b.cfg.OnEvent != nil {
			b.cfg.OnEvent(ctx, inst, ev)
		}
		if ev.Kind == instance.EventStopped {
			reason = ev.Err
		}
		if b.cfg.Commands == nil {
			continue
		}
		if _, err := b.cfg.Commands.Handle(ctx, ev, base); err != nil {
			log.Warn().Err(err).Msg("command failed")
		}
	}

	if b.cfg.FailFast && reason != nil && !errors.Is(reason, instance.ErrStopped) {
		return reason
	}
	return nil
}
