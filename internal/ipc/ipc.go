// Package ipc carries control requests from jarvis-ctl to the daemon as one
// JSON request and one JSON reply per unix socket connection.
package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	log "log/slog"
	"net"
	"os"
	"time"

	"jarvis/internal/apps"
	"jarvis/internal/types"
)

const DefaultSocketPath = "/tmp/jarvis.sock"

const (
	CmdListen     = "listen"
	CmdOrb        = "orb"
	CmdStop       = "stop"
	CmdLive       = "live"
	CmdSay        = "say"
	CmdHear       = "hear"
	CmdScreen     = "screen"
	CmdStatus     = "status"
	CmdTranscript = "transcript"
	CmdApps       = "apps"
)

type Request struct {
	Cmd string `json:"cmd"`
	Arg string `json:"arg,omitempty"`
}

type Reply struct {
	OK       bool                `json:"ok"`
	Error    string              `json:"error,omitempty"`
	State    string              `json:"state,omitempty"`
	Live     bool                `json:"live,omitempty"`
	Sharing  bool                `json:"sharing,omitempty"`
	Banner   string              `json:"banner,omitempty"`
	Text     string              `json:"text,omitempty"`
	Messages []types.ChatMessage `json:"messages,omitempty"`
	Apps     []apps.App          `json:"apps,omitempty"`
}

func Fail(err error) Reply {
	return Reply{Error: err.Error()}
}

type Handler func(ctx context.Context, req Request) Reply

type Server struct {
	path    string
	ln      net.Listener
	handler Handler
}

// Listen binds the socket, replacing a stale one left by a previous run.
func Listen(path string, handler Handler) (*Server, error) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("remove stale socket: %w", err)
	}

	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen: %w", err)
	}

	return &Server{path: path, ln: ln, handler: handler}, nil
}

// Serve accepts connections until ctx is done or the server is closed.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.ln.Close()
	}()

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			log.Warn("Failed to accept control connection", "err", err)
			continue
		}
		go s.handleConn(ctx, conn)
	}
}

func (s *Server) Close() error {
	err := s.ln.Close()
	os.Remove(s.path)
	return err
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	var req Request
	if err := json.NewDecoder(conn).Decode(&req); err != nil {
		log.Warn("Malformed control request", "err", err)
		_ = json.NewEncoder(conn).Encode(Fail(fmt.Errorf("malformed request: %w", err)))
		return
	}

	log.Debug("Control request", "cmd", req.Cmd, "arg", req.Arg)

	if err := json.NewEncoder(conn).Encode(s.handler(ctx, req)); err != nil {
		log.Warn("Failed to write control reply", "err", err)
	}
}

// Send performs one request against the daemon socket.
func Send(ctx context.Context, path string, req Request) (Reply, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		return Reply{}, err
	}
	defer conn.Close()

	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(dl)
	} else {
		_ = conn.SetDeadline(time.Now().Add(2 * time.Minute))
	}

	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return Reply{}, fmt.Errorf("write request: %w", err)
	}

	var reply Reply
	if err := json.NewDecoder(conn).Decode(&reply); err != nil {
		return Reply{}, fmt.Errorf("read reply: %w", err)
	}
	return reply, nil
}
