package integration

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/risa-org/euph/bot"
	"github.com/risa-org/euph/handshake"
	"github.com/risa-org/euph/instance"
	"github.com/risa-org/euph/packet"
	"github.com/risa-org/euph/store/memory"
	"github.com/risa-org/euph/transport"
	"github.com/risa-org/euph/transport/gorilla"
	"github.com/risa-org/euph/transport/websocket"
)

const timeout = 5 * time.Second

var fastBackoff = instance.BackoffConfig{Initial: 10 * time.Millisecond, Max: 100 * time.Millisecond, Jitter: -1}

// ------------------------------------------------------------
// Helpers
// ------------------------------------------------------------

func connector(h *fakeHeim, room string, d transport.Dialer) *instance.RoomConnector {
	return &instance.RoomConnector{Dialer: d, BaseURL: h.baseURL(), Room: room, Timeout: timeout}
}

// start runs an instance and forwards its events to the returned channel
// so the instance never blocks on an unread event.
func start(t *testing.T, cfg instance.Config) (*instance.Instance, <-chan instance.Event) {
	t.Helper()
	if cfg.Backoff == (instance.BackoffConfig{}) {
		cfg.Backoff = fastBackoff
	}
	inst, err := instance.Start(context.Background(), cfg)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(inst.Stop)

	out := make(chan instance.Event, 256)
	go func() {
		defer close(out)
		for ev := range inst.Events() {
			out <- ev
		}
	}()
	return inst, out
}

// waitFor skips events until one of the given kind arrives.
func waitFor(t *testing.T, events <-chan instance.Event, kind instance.EventKind) instance.Event {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				t.Fatalf("events closed while waiting for %v", kind)
			}
			if ev.Kind == kind {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %v", kind)
		}
	}
}

func recv[T any](t *testing.T, ch chan T, what string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(timeout):
		t.Fatalf("timed out waiting for %s", what)
		var zero T
		return zero
	}
}

func waitStopped(t *testing.T, inst *instance.Instance) error {
	t.Helper()
	select {
	case <-inst.Done():
		return inst.Err()
	case <-time.After(timeout):
		t.Fatal("instance did not stop")
		return nil
	}
}

// ------------------------------------------------------------
// Joining
// ------------------------------------------------------------

func TestJoinSetsNick(t *testing.T) {
	room := newRoom("test")
	h := newFakeHeim(t, room)

	_, events := start(t, instance.Config{
		Connector: connector(h, "test", &websocket.Dialer{Jar: memory.New()}),
		Join:      handshake.Config{Nick: "tester"},
	})

	joined := waitFor(t, events, instance.EventJoined)
	if joined.State == nil || joined.State.Joined == nil {
		t.Fatal("joined event without room state")
	}
	if got := len(joined.State.Joined.Listing); got != 1 {
		t.Fatalf("expected 1 other session in listing, got %d", got)
	}
	if got := recv(t, room.nicks, "nick"); got != "tester" {
		t.Fatalf("expected nick tester, got %q", got)
	}
}

func TestJoinWithGorillaDialer(t *testing.T) {
	room := newRoom("test")
	h := newFakeHeim(t, room)

	_, events := start(t, instance.Config{
		Connector: connector(h, "test", &gorilla.Dialer{Jar: memory.New()}),
		Join:      handshake.Config{Nick: "gopher"},
	})

	waitFor(t, events, instance.EventJoined)
	if got := recv(t, room.nicks, "nick"); got != "gopher" {
		t.Fatalf("expected nick gopher, got %q", got)
	}
}

func TestUnknownRoomStops(t *testing.T) {
	h := newFakeHeim(t, newRoom("test"))

	inst, events := start(t, instance.Config{
		Connector: connector(h, "nowhere", &websocket.Dialer{}),
	})

	stopped := waitFor(t, events, instance.EventStopped)
	code, ok := transport.IsRejected(stopped.Err)
	if !ok || code != transport.CodeRoomNotFound {
		t.Fatalf("expected room_not_found rejection, got %v", stopped.Err)
	}
	if err := waitStopped(t, inst); err == nil {
		t.Fatal("expected stop reason")
	}
	if inst.Snapshot().State != instance.StateStopped {
		t.Fatalf("expected stopped, got %v", inst.Snapshot().State)
	}
}

// ------------------------------------------------------------
// Private rooms
// ------------------------------------------------------------

func TestPasscodeAuth(t *testing.T) {
	room := newRoom("private")
	room.password = "hunter2"
	h := newFakeHeim(t, room)

	_, events := start(t, instance.Config{
		Connector: connector(h, "private", &websocket.Dialer{}),
		Join:      handshake.Config{Password: "hunter2", Nick: "insider"},
	})

	waitFor(t, events, instance.EventJoined)
	if got := recv(t, room.nicks, "nick"); got != "insider" {
		t.Fatalf("expected nick insider, got %q", got)
	}
}

func TestWrongPasscodeStops(t *testing.T) {
	room := newRoom("private")
	room.password = "hunter2"
	h := newFakeHeim(t, room)

	inst, _ := start(t, instance.Config{
		Connector: connector(h, "private", &websocket.Dialer{}),
		Join:      handshake.Config{Password: "guess"},
	})

	err := waitStopped(t, inst)
	code, ok := transport.IsRejected(err)
	if !ok || code != handshake.ReasonInvalidPassword {
		t.Fatalf("expected invalid_password rejection, got %v", err)
	}
}

func TestMissingPasscodeStops(t *testing.T) {
	room := newRoom("private")
	room.password = "hunter2"
	h := newFakeHeim(t, room)

	inst, _ := start(t, instance.Config{
		Connector: connector(h, "private", &websocket.Dialer{}),
	})

	err := waitStopped(t, inst)
	code, ok := transport.IsRejected(err)
	if !ok || code != handshake.ReasonAuthRequired {
		t.Fatalf("expected auth_required rejection, got %v", err)
	}
}

// ------------------------------------------------------------
// Commands and keepalive
// ------------------------------------------------------------

func TestSendThroughInstance(t *testing.T) {
	room := newRoom("test")
	h := newFakeHeim(t, room)

	inst, events := start(t, instance.Config{
		Connector: connector(h, "test", &websocket.Dialer{}),
		Join:      handshake.Config{Nick: "sender"},
	})
	waitFor(t, events, instance.EventJoined)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	reply, err := inst.Send(ctx, packet.SendCommand{Content: "hello"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if reply.Type != packet.SendReply {
		t.Fatalf("expected send-reply, got %s", reply.Type)
	}
	if got := recv(t, room.sent, "message"); got != "hello" {
		t.Fatalf("server got %q", got)
	}
}

func TestUnsupportedCommandFails(t *testing.T) {
	room := newRoom("test")
	h := newFakeHeim(t, room)

	inst, events := start(t, instance.Config{
		Connector: connector(h, "test", &websocket.Dialer{}),
	})
	waitFor(t, events, instance.EventJoined)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	_, err := inst.Send(ctx, packet.LogCommand{N: 10})
	var serr *packet.ServerError
	if !errors.As(err, &serr) {
		t.Fatalf("expected server error, got %v", err)
	}
	if serr.Message != "unsupported" {
		t.Fatalf("unexpected server error %q", serr.Message)
	}
}

func TestServerPingAnswered(t *testing.T) {
	room := newRoom("test")
	h := newFakeHeim(t, room)

	_, events := start(t, instance.Config{
		Connector: connector(h, "test", &websocket.Dialer{}),
	})
	conn := recv(t, room.connected, "connection")
	waitFor(t, events, instance.EventJoined)

	if err := conn.ping(1234); err != nil {
		t.Fatalf("ping: %v", err)
	}
	if got := recv(t, room.pongs, "ping-reply"); got != 1234 {
		t.Fatalf("expected echoed time 1234, got %d", got)
	}
}

// ------------------------------------------------------------
// Reconnects
// ------------------------------------------------------------

func TestReconnectKeepsAgentCookie(t *testing.T) {
	room := newRoom("test")
	h := newFakeHeim(t, room)
	jar := memory.New()

	_, events := start(t, instance.Config{
		Connector: connector(h, "test", &websocket.Dialer{Jar: jar}),
		Join:      handshake.Config{Nick: "stayer"},
	})

	first := recv(t, room.connected, "first connection")
	waitFor(t, events, instance.EventJoined)
	if jar.Count() != 1 {
		t.Fatalf("expected agent cookie in jar, have %d cookies", jar.Count())
	}

	first.drop()
	disc := waitFor(t, events, instance.EventDisconnected)
	if disc.Err == nil {
		t.Fatal("disconnect without reason")
	}

	second := recv(t, room.connected, "second connection")
	rejoined := waitFor(t, events, instance.EventJoined)
	if rejoined.Session <= disc.Session {
		t.Fatalf("expected a newer session, got %d after %d", rejoined.Session, disc.Session)
	}

	cookies := room.presentedCookies()
	if len(cookies) != 2 {
		t.Fatalf("expected 2 connections, got %d", len(cookies))
	}
	if cookies[0] != "" {
		t.Fatalf("first connection should present no cookie, got %q", cookies[0])
	}
	if cookies[1] != first.agent || second.agent != first.agent {
		t.Fatalf("agent changed across reconnect: %q then %q", first.agent, cookies[1])
	}
}

func TestReconnectWithoutJarGetsNewAgent(t *testing.T) {
	room := newRoom("test")
	h := newFakeHeim(t, room)

	_, events := start(t, instance.Config{
		Connector: connector(h, "test", &websocket.Dialer{}),
	})

	first := recv(t, room.connected, "first connection")
	waitFor(t, events, instance.EventJoined)
	first.drop()

	second := recv(t, room.connected, "second connection")
	if second.agent == first.agent {
		t.Fatalf("expected a fresh agent, got %q twice", first.agent)
	}
}

func TestStopDuringSession(t *testing.T) {
	room := newRoom("test")
	h := newFakeHeim(t, room)

	inst, events := start(t, instance.Config{
		Connector: connector(h, "test", &websocket.Dialer{}),
	})
	waitFor(t, events, instance.EventJoined)

	inst.Stop()
	if err := inst.Err(); !errors.Is(err, instance.ErrStopped) {
		t.Fatalf("expected ErrStopped, got %v", err)
	}
	waitFor(t, events, instance.EventStopped)
}

// ------------------------------------------------------------
// Bot
// ------------------------------------------------------------

func TestBotAnswersPing(t *testing.T) {
	room := newRoom("test")
	h := newFakeHeim(t, room)

	b := bot.New(bot.Config{
		Commands: bot.NewCommands(
			&bot.General{Name: "ping", Inner: &bot.Ping{}},
			&bot.Specific{Name: "ping", Inner: &bot.Ping{Reply: "Pong, specifically!"}},
		),
	})
	b.Add(instance.Config{
		Connector: connector(h, "test", &websocket.Dialer{Jar: memory.New()}),
		Join:      handshake.Config{Nick: "pingbot"},
		Backoff:   fastBackoff,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	conn := recv(t, room.connected, "connection")
	if got := recv(t, room.nicks, "nick"); got != "pingbot" {
		t.Fatalf("expected nick pingbot, got %q", got)
	}

	if err := conn.say("!ping"); err != nil {
		t.Fatalf("say: %v", err)
	}
	if got := recv(t, room.sent, "general pong"); got != "Pong!" {
		t.Fatalf("expected Pong!, got %q", got)
	}

	if err := conn.say("!ping @PingBot"); err != nil {
		t.Fatalf("say: %v", err)
	}
	if got := recv(t, room.sent, "specific pong"); got != "Pong, specifically!" {
		t.Fatalf("unexpected specific reply %q", got)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(timeout):
		t.Fatal("bot did not stop")
	}
}

func TestBotFailFastOnUnknownRoom(t *testing.T) {
	h := newFakeHeim(t, newRoom("test"))

	b := bot.New(bot.Config{FailFast: true})
	b.Add(instance.Config{
		Connector: connector(h, "gone", &websocket.Dialer{}),
		Backoff:   fastBackoff,
	})

	done := make(chan error, 1)
	go func() { done <- b.Run(context.Background()) }()

	select {
	case err := <-done:
		if code, ok := transport.IsRejected(err); !ok || code != transport.CodeRoomNotFound {
			t.Fatalf("expected room_not_found, got %v", err)
		}
	case <-time.After(timeout):
		t.Fatal("bot did not stop")
	}
}
