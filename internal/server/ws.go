package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/sceneloom/costumier/internal/engine"
)

// ackTimeout bounds how long a switch command waits for the host's ack
// before counting as failed.
const ackTimeout = 10 * time.Second

// streamInbound is a message from the host: generation lifecycle events
// plus acks for previously issued switch commands.
type streamInbound struct {
	// Type is "start", "token", "end", or "ack".
	Type string `json:"type"`

	// Generation keys the message being streamed. Optional on start; the
	// server mints one when absent.
	Generation string `json:"generation,omitempty"`

	// Text is the streamed token ("token" only).
	Text string `json:"text,omitempty"`

	// ID correlates an ack with its switch command.
	ID string `json:"id,omitempty"`

	// OK reports whether the host executed the switch ("ack" only).
	OK bool `json:"ok,omitempty"`

	// Error carries the host's failure description when OK is false.
	Error string `json:"error,omitempty"`
}

// streamOutbound is a message to the host. "switch" is the costume
// command and must be acked; "event" reports a scan outcome; "started"
// echoes the generation key in use.
type streamOutbound struct {
	Type       string        `json:"type"`
	ID         string        `json:"id,omitempty"`
	Generation string        `json:"generation,omitempty"`
	Folder     string        `json:"folder,omitempty"`
	Event      *engine.Event `json:"event,omitempty"`
	Error      string        `json:"error,omitempty"`
}

// streamConn wraps a websocket connection with serialized writes.
type streamConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *streamConn) writeJSON(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("server: encode stream message: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.Write(ctx, websocket.MessageText, data)
}

// Hub relays switch commands to the connected stream client and matches
// the host's acks back to the issuing call. Its Switch method is the
// engine's switch command: the ack outcome feeds the success/failure
// cooldown bookkeeping.
type Hub struct {
	mu      sync.Mutex
	conn    *streamConn
	pending map[string]chan error

	// switchMu serializes commands so at most one ack is outstanding.
	switchMu sync.Mutex
}

// NewHub returns a hub with no connected client. Switches issued before a
// client attaches fail, which is the correct outcome: there is no host to
// execute them.
func NewHub() *Hub {
	return &Hub{pending: make(map[string]chan error)}
}

// Switch implements [engine.SwitchFunc]: it sends the costume command to
// the attached stream client and blocks until the host acks, the context
// ends, or the ack times out.
func (h *Hub) Switch(ctx context.Context, folder string) error {
	h.switchMu.Lock()
	defer h.switchMu.Unlock()

	h.mu.Lock()
	c := h.conn
	h.mu.Unlock()
	if c == nil {
		return fmt.Errorf("server: no stream client connected")
	}

	id := uuid.NewString()
	ch := make(chan error, 1)
	h.mu.Lock()
	h.pending[id] = ch
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		delete(h.pending, id)
		h.mu.Unlock()
	}()

	if err := c.writeJSON(ctx, streamOutbound{Type: "switch", ID: id, Folder: folder}); err != nil {
		return fmt.Errorf("server: send switch command: %w", err)
	}

	timer := time.NewTimer(ackTimeout)
	defer timer.Stop()
	select {
	case err := <-ch:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("server: switch command not acked within %s", ackTimeout)
	}
}

// resolveAck completes the pending switch identified by id. Unknown ids
// are dropped; the command may already have timed out.
func (h *Hub) resolveAck(id string, ok bool, msg string) {
	h.mu.Lock()
	ch := h.pending[id]
	h.mu.Unlock()
	if ch == nil {
		return
	}
	var err error
	if !ok {
		if msg == "" {
			msg = "host rejected switch"
		}
		err = fmt.Errorf("server: %s", msg)
	}
	select {
	case ch <- err:
	default:
	}
}

func (h *Hub) attach(c *streamConn) {
	h.mu.Lock()
	h.conn = c
	h.mu.Unlock()
}

func (h *Hub) detach(c *streamConn) {
	h.mu.Lock()
	if h.conn == c {
		h.conn = nil
	}
	h.mu.Unlock()
}

// handleStream is the websocket endpoint the host streams generations
// into. One connection at a time acts as the switch sink; a second
// connection displaces the first as sink but both keep receiving their
// own scan events.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.log.Warn("websocket accept failed", "err", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream aborted")

	c := &streamConn{conn: conn}
	s.hub.attach(c)
	defer s.hub.detach(c)

	ctx := r.Context()
	msgs := make(chan streamInbound, 64)
	readErr := make(chan error, 1)

	// Reader goroutine: acks must be routed to the hub even while a
	// switch command issued mid-token is blocking the processing loop.
	go func() {
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				readErr <- err
				return
			}
			var in streamInbound
			if err := json.Unmarshal(data, &in); err != nil {
				_ = c.writeJSON(ctx, streamOutbound{Type: "error", Error: "malformed message"})
				continue
			}
			if in.Type == "ack" {
				s.hub.resolveAck(in.ID, in.OK, in.Error)
				continue
			}
			select {
			case msgs <- in:
			case <-ctx.Done():
				return
			}
		}
	}()

	var gen string
	for {
		select {
		case err := <-readErr:
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				conn.Close(websocket.StatusNormalClosure, "")
			} else {
				s.log.Debug("stream connection closed", "err", err)
			}
			return
		case <-ctx.Done():
			return
		case in := <-msgs:
			switch in.Type {
			case "start":
				gen = in.Generation
				if gen == "" {
					gen = uuid.NewString()
				}
				s.engine.StartMessage(gen)
				_ = c.writeJSON(ctx, streamOutbound{Type: "started", Generation: gen})
			case "token":
				key := in.Generation
				if key == "" {
					key = gen
				}
				if key == "" {
					continue
				}
				s.forward(ctx, c, s.engine.Token(ctx, key, in.Text))
			case "end":
				key := in.Generation
				if key == "" {
					key = gen
				}
				if key == "" {
					continue
				}
				s.forward(ctx, c, s.engine.EndMessage(ctx, key))
				if key == gen {
					gen = ""
				}
			default:
				_ = c.writeJSON(ctx, streamOutbound{Type: "error", Error: "unknown message type " + in.Type})
			}
		}
	}
}

// forward reports a scan outcome to the stream client and appends switch
// outcomes to the audit log.
func (s *Server) forward(ctx context.Context, c *streamConn, ev *engine.Event) {
	if ev == nil {
		return
	}
	s.recordEvent(ctx, ev)
	if err := c.writeJSON(ctx, streamOutbound{Type: "event", Event: ev}); err != nil {
		s.log.Debug("stream event write failed", "err", err)
	}
}
