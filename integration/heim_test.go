package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/risa-org/euph/packet"
)

// ------------------------------------------------------------
// A fake heim server: enough of the room protocol to join, change nick,
// send messages and keep alive.
// ------------------------------------------------------------

type fakeHeim struct {
	t     *testing.T
	srv   *httptest.Server
	rooms map[string]*fakeRoom

	mu     sync.Mutex
	agents int
}

type fakeRoom struct {
	name     string
	password string

	mu      sync.Mutex
	cookies []string // agent cookie presented by each connection, "" if none
	conns   []*fakeConn

	connected chan *fakeConn
	nicks     chan string
	sent      chan string
	pongs     chan packet.Time
}

type fakeConn struct {
	ws        *websocket.Conn
	agent     string
	sessionID string
}

func newRoom(name string) *fakeRoom {
	return &fakeRoom{
		name:      name,
		connected: make(chan *fakeConn, 16),
		nicks:     make(chan string, 16),
		sent:      make(chan string, 16),
		pongs:     make(chan packet.Time, 16),
	}
}

func newFakeHeim(t *testing.T, rooms ...*fakeRoom) *fakeHeim {
	t.Helper()
	h := &fakeHeim{t: t, rooms: make(map[string]*fakeRoom)}
	for _, r := range rooms {
		h.rooms[r.name] = r
	}
	h.srv = httptest.NewServer(h)
	t.Cleanup(h.srv.Close)
	return h
}

// baseURL is the ws:// root to hand to a RoomConnector.
func (h *fakeHeim) baseURL() string {
	return "ws" + strings.TrimPrefix(h.srv.URL, "http")
}

func (h *fakeHeim) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name, ok := strings.CutPrefix(r.URL.Path, "/room/")
	name, ok2 := strings.CutSuffix(name, "/ws")
	room := h.rooms[name]
	if !ok || !ok2 || room == nil {
		http.NotFound(w, r)
		return
	}

	presented := ""
	agent := ""
	if c, err := r.Cookie("a"); err == nil {
		presented, agent = c.Value, c.Value
	} else {
		h.mu.Lock()
		h.agents++
		agent = fmt.Sprintf("agent%d", h.agents)
		h.mu.Unlock()
		http.SetCookie(w, &http.Cookie{Name: "a", Value: agent, Path: "/", MaxAge: 3600})
	}

	ws, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.t.Errorf("accept: %v", err)
		return
	}
	defer ws.CloseNow()

	room.mu.Lock()
	room.cookies = append(room.cookies, presented)
	conn := &fakeConn{ws: ws, agent: agent, sessionID: fmt.Sprintf("%s-%d", agent, len(room.cookies))}
	room.conns = append(room.conns, conn)
	room.mu.Unlock()

	room.serve(context.Background(), conn)
}

func (r *fakeRoom) presentedCookies() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.cookies...)
}

func (c *fakeConn) write(ctx context.Context, id string, typ packet.Type, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return wsjson.Write(ctx, c.ws, packet.Packet{ID: id, Type: typ, Data: raw})
}

func (c *fakeConn) view(name string) packet.SessionView {
	return packet.SessionView{ID: "agent:" + c.agent, Name: name, SessionID: c.sessionID, ServerID: "heim", ServerEra: "era"}
}

// say posts a message from another user.
func (c *fakeConn) say(content string) error {
	msg := packet.Message{ID: 1000, Content: content, Sender: packet.SessionView{ID: "agent:other", Name: "someone", SessionID: "other"}}
	return c.write(context.Background(), "", packet.SendEvent, packet.SendEventData{Message: msg})
}

func (c *fakeConn) ping(t packet.Time) error {
	return c.write(context.Background(), "", packet.PingEvent, packet.PingEventData{Time: t, Next: t + 30})
}

// drop hangs up on the client.
func (c *fakeConn) drop() {
	c.ws.Close(websocket.StatusGoingAway, "server restart")
}

func (r *fakeRoom) serve(ctx context.Context, c *fakeConn) {
	if r.password != "" && !r.authenticate(ctx, c) {
		return
	}

	if c.write(ctx, "", packet.HelloEvent, packet.HelloEventData{Session: c.view(""), Version: "fake"}) != nil {
		return
	}
	others := []packet.SessionView{{ID: "agent:other", Name: "someone", SessionID: "other", ServerID: "heim", ServerEra: "era"}}
	if c.write(ctx, "", packet.SnapshotEvent, packet.SnapshotEventData{SessionID: c.sessionID, Version: "fake", Listing: others}) != nil {
		return
	}
	r.connected <- c

	name := ""
	for {
		var p packet.Packet
		if err := wsjson.Read(ctx, c.ws, &p); err != nil {
			return
		}

		var err error
		switch p.Type {
		case packet.Nick:
			var cmd packet.NickCommand
			_ = json.Unmarshal(p.Data, &cmd)
			err = c.write(ctx, p.ID, packet.NickReply, packet.NickReplyData{SessionID: c.sessionID, ID: "agent:" + c.agent, From: name, To: cmd.Name})
			name = cmd.Name
			offer(r.nicks, cmd.Name)
		case packet.Send:
			var cmd packet.SendCommand
			_ = json.Unmarshal(p.Data, &cmd)
			msg := packet.Message{ID: 2000, Parent: cmd.Parent, Content: cmd.Content, Sender: c.view(name)}
			err = c.write(ctx, p.ID, packet.SendReply, packet.SendReplyData{Message: msg})
			offer(r.sent, cmd.Content)
		case packet.Ping:
			var cmd packet.PingCommand
			_ = json.Unmarshal(p.Data, &cmd)
			err = c.write(ctx, p.ID, packet.PingReply, packet.PingReplyData{Time: &cmd.Time})
		case packet.PingReply:
			var reply packet.PingReplyData
			_ = json.Unmarshal(p.Data, &reply)
			if reply.Time != nil {
				offer(r.pongs, *reply.Time)
			}
		case packet.Who:
			err = c.write(ctx, p.ID, packet.WhoReply, packet.WhoReplyData{Listing: others})
		default:
			err = wsjson.Write(ctx, c.ws, packet.Packet{ID: p.ID, Type: p.Type.Reply(), Error: "unsupported"})
		}
		if err != nil {
			return
		}
	}
}

// authenticate bounces the client and checks its passcode.
func (r *fakeRoom) authenticate(ctx context.Context, c *fakeConn) bool {
	bounce := packet.BounceEventData{Reason: "authentication required", AuthOptions: []packet.AuthOption{packet.AuthPasscode}}
	if c.write(ctx, "", packet.BounceEvent, bounce) != nil {
		return false
	}
	for {
		var p packet.Packet
		if err := wsjson.Read(ctx, c.ws, &p); err != nil {
			return false
		}
		if p.Type != packet.Auth {
			continue
		}
		var cmd packet.AuthCommand
		_ = json.Unmarshal(p.Data, &cmd)
		ok := cmd.Passcode == r.password
		reply := packet.AuthReplyData{Success: ok}
		if !ok {
			reply.Reason = "bad passcode"
		}
		if c.write(ctx, p.ID, packet.AuthReply, reply) != nil || !ok {
			// heim keeps the connection open; wait for the client to leave
			_ = wsjson.Read(ctx, c.ws, &p)
			return false
		}
		return true
	}
}

func offer[T any](ch chan T, v T) {
	select {
	case ch <- v:
	default:
	}
}
