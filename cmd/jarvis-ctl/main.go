package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	cli "github.com/spf13/pflag"

	"jarvis/internal/ipc"
)

const usage = `Usage: jarvis-ctl [flags] <command> [arg]

Commands:
  orb                press the orb: listen when idle, stop when speaking
  listen             listen for one command without the wake word
  say <text>         send a typed command
  stop               stop speaking
  live [on|off]      set or toggle live mode
  hear <file>        transcribe an audio file as if it was spoken
  screen             toggle screen sharing
  status             show state, live mode and the error banner
  transcript         print the conversation
  apps               list launchable applications

Flags:
`

func main() {
	socket := cli.StringP("socket", "s", ipc.DefaultSocketPath, "Control socket path")
	timeout := cli.DurationP("timeout", "t", 2*time.Minute, "Request timeout")
	cli.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		cli.PrintDefaults()
	}
	cli.Parse()

	if cli.NArg() == 0 {
		cli.Usage()
		os.Exit(2)
	}

	req := ipc.Request{Cmd: cli.Arg(0), Arg: strings.Join(cli.Args()[1:], " ")}
	if req.Cmd == ipc.CmdHear && req.Arg != "" {
		if abs, err := filepath.Abs(req.Arg); err == nil {
			req.Arg = abs
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	reply, err := ipc.Send(ctx, *socket, req)
	if err != nil {
		fmt.Fprintln(os.Stderr, "jarvis not running:", err)
		os.Exit(1)
	}

	if !reply.OK {
		fmt.Fprintln(os.Stderr, "error:", reply.Error)
		os.Exit(1)
	}

	printReply(req.Cmd, reply)
}

func printReply(cmd string, r ipc.Reply) {
	switch cmd {
	case ipc.CmdTranscript:
		for _, m := range r.Messages {
			fmt.Printf("%-5s %s\n", m.Role+":", m.Content)
			for _, s := range m.Sources {
				fmt.Printf("      - %s (%s)\n", s.Title, s.URI)
			}
		}
		return
	case ipc.CmdApps:
		for _, a := range r.Apps {
			fmt.Printf("%-20s %s\n", a.Name, a.Scheme)
		}
		return
	case ipc.CmdHear:
		fmt.Printf("heard: %q\n", r.Text)
	}

	fmt.Printf("state: %s  live: %v  sharing: %v\n", r.State, r.Live, r.Sharing)
	if r.Banner != "" {
		fmt.Println("error:", r.Banner)
	}
}
