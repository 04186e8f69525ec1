package ipc

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"jarvis/internal/types"
)

func TestRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jarvis.sock")

	srv, err := Listen(path, func(_ context.Context, req Request) Reply {
		switch req.Cmd {
		case CmdStatus:
			return Reply{OK: true, State: "IDLE"}
		case CmdTranscript:
			return Reply{OK: true, Messages: []types.ChatMessage{{Role: types.RoleUser, Content: req.Arg}}}
		}
		return Reply{Error: "unknown command"}
	})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	reqCtx, reqCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer reqCancel()

	reply, err := Send(reqCtx, path, Request{Cmd: CmdStatus})
	if err != nil {
		t.Fatal(err)
	}
	if !reply.OK || reply.State != "IDLE" {
		t.Errorf("status reply = %+v", reply)
	}

	reply, err = Send(reqCtx, path, Request{Cmd: CmdTranscript, Arg: "hello"})
	if err != nil {
		t.Fatal(err)
	}
	if len(reply.Messages) != 1 || reply.Messages[0].Content != "hello" {
		t.Errorf("transcript reply = %+v", reply)
	}

	reply, err = Send(reqCtx, path, Request{Cmd: "bogus"})
	if err != nil {
		t.Fatal(err)
	}
	if reply.OK || reply.Error == "" {
		t.Errorf("bogus reply = %+v", reply)
	}
}

func TestMalformedRequest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jarvis.sock")
	srv, err := Listen(path, func(context.Context, Request) Reply { return Reply{OK: true} })
	if err != nil {
		t.Fatal(err)
	}
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.Serve(ctx)

	conn, err := net.Dial("unix", path)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(2 * time.Second))

	if _, err := conn.Write([]byte("not json\n")); err != nil {
		t.Fatal(err)
	}

	buf := make([]byte, 256)
	n, _ := conn.Read(buf)
	if n == 0 {
		t.Fatal("no reply to malformed request")
	}
}

func TestSendNoDaemon(t *testing.T) {
	_, err := Send(context.Background(), filepath.Join(t.TempDir(), "missing.sock"), Request{Cmd: CmdStatus})
	if err == nil {
		t.Fatal("expected dial error")
	}
}

func TestListenReplacesStaleSocket(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jarvis.sock")

	first, err := Listen(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	first.ln.Close()

	second, err := Listen(path, nil)
	if err != nil {
		t.Fatalf("second Listen: %v", err)
	}
	second.Close()
}
