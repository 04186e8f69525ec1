// Package bus connects the daemon to a presentation hub over a websocket. It
// publishes assistant events as JSON and accepts hub commands addressed to
// this shard.
package bus

import (
	"context"
	"encoding/json"
	log "log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	ws "github.com/gorilla/websocket"

	"jarvis/internal/types"
)

type EventKind string

const (
	EventState   EventKind = "state"
	EventMessage EventKind = "message"
	EventError   EventKind = "error"
)

type Event struct {
	ID      string             `json:"id"`
	Session string             `json:"session"`
	Kind    EventKind          `json:"kind"`
	Time    time.Time          `json:"time"`
	State   string             `json:"state,omitempty"`
	Message *types.ChatMessage `json:"message,omitempty"`
	Error   string             `json:"error,omitempty"`
}

// CommandHandler answers a hub command with a reply line, or ok=false for none.
type CommandHandler func(ctx context.Context, cmd Command) (reply Command, ok bool)

type Options struct {
	URL     string
	Shard   string        // name commands must be addressed to
	Reconn  time.Duration // delay between dial attempts
	Buffer  int           // pending events before new ones are dropped
	Handler CommandHandler
}

type Client struct {
	url     string
	shard   string
	reconn  time.Duration
	handler CommandHandler
	session string

	out chan []byte

	writeMu sync.Mutex
}

func New(opts Options) *Client {
	if opts.Reconn <= 0 {
		opts.Reconn = time.Second
	}
	if opts.Buffer <= 0 {
		opts.Buffer = 256
	}
	if opts.Shard == "" {
		opts.Shard = "jarvis"
	}

	return &Client{
		url:     opts.URL,
		shard:   opts.Shard,
		reconn:  opts.Reconn,
		handler: opts.Handler,
		session: uuid.NewString(),
		out:     make(chan []byte, opts.Buffer),
	}
}

func (c *Client) Session() string { return c.session }

// Publish queues ev without blocking. Events are dropped while the queue is full.
func (c *Client) Publish(ev Event) {
	ev.ID = uuid.NewString()
	ev.Session = c.session
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		log.Error("Failed to encode bus event", "err", err)
		return
	}

	select {
	case c.out <- payload:
	default:
		log.Warn("Bus queue full, dropping event", "kind", ev.Kind)
	}
}

// Run keeps a connection to the hub until ctx is done, reconnecting on failure.
func (c *Client) Run(ctx context.Context) {
	log.Debug("Starting bus", "url", c.url, "session", c.session)

	for {
		conn, _, err := ws.DefaultDialer.DialContext(ctx, c.url, nil)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Debug("Failed to dial hub", "url", c.url, "err", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.reconn):
			}
			continue
		}

		log.Info("Connected to hub", "url", c.url)
		c.serve(ctx, conn)

		if ctx.Err() != nil {
			return
		}
		log.Warn("Lost hub connection, reconnecting", "url", c.url)
	}
}

// serve pumps one connection until it fails or ctx is done.
func (c *Client) serve(ctx context.Context, conn *ws.Conn) {
	defer conn.Close()

	readErr := make(chan error, 1)
	go func() {
		readErr <- c.readLoop(ctx, conn)
	}()

	for {
		select {
		case <-ctx.Done():
			_ = c.write(conn, ws.CloseMessage, ws.FormatCloseMessage(ws.CloseNormalClosure, ""))
			return
		case err := <-readErr:
			if err != nil && !isClosed(err) {
				log.Error("Failed to read from hub", "err", err)
			}
			return
		case payload := <-c.out:
			if err := c.write(conn, ws.TextMessage, payload); err != nil {
				log.Error("Failed to write to hub", "err", err)
				return
			}
		}
	}
}

func (c *Client) readLoop(ctx context.Context, conn *ws.Conn) error {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		line := string(msg)
		if to, _, _ := strings.Cut(line, ":"); to != c.shard {
			continue
		}

		cmd, err := ParseCommand(line)
		if err != nil {
			log.Warn("Failed to parse hub command", "msg", line, "err", err)
			continue
		}

		if c.handler == nil {
			continue
		}
		if reply, ok := c.handler(ctx, cmd); ok {
			if err := c.write(conn, ws.TextMessage, []byte(reply.String())); err != nil {
				return err
			}
		}
	}
}

// write serializes writers; gorilla connections allow one concurrent writer.
func (c *Client) write(conn *ws.Conn, kind int, payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(kind, payload)
}

func isClosed(err error) bool {
	return ws.IsCloseError(err,
		ws.CloseNormalClosure,
		ws.CloseGoingAway,
		ws.CloseAbnormalClosure)
}
