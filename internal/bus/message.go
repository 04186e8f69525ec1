package bus

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Command is an inbound hub line of the form TO:VERB:NOUN[:ARG...]:FROM,
// e.g. "jarvis:SET:LIVE:ON:ui".
type Command struct {
	To   string
	Verb string
	Noun string
	Args []string
	From string
}

var tokenRe = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

func ParseCommand(line string) (Command, error) {
	s := strings.TrimSpace(line)
	if s == "" {
		return Command{}, errors.New("empty command")
	}
	if strings.ContainsAny(s, " \t\r\n") {
		return Command{}, errors.New("whitespace in command")
	}

	parts := strings.Split(s, ":")
	if len(parts) < 4 {
		return Command{}, fmt.Errorf("too few fields: got %d, want >= 4", len(parts))
	}

	for i, p := range parts {
		if !tokenRe.MatchString(p) {
			return Command{}, fmt.Errorf("invalid token %d: %q", i, p)
		}
	}

	return Command{
		To:   parts[0],
		Verb: strings.ToUpper(parts[1]),
		Noun: strings.ToUpper(parts[2]),
		Args: append([]string(nil), parts[3:len(parts)-1]...),
		From: parts[len(parts)-1],
	}, nil
}

func (c Command) String() string {
	parts := make([]string, 0, 4+len(c.Args))
	parts = append(parts, c.To, c.Verb, c.Noun)
	parts = append(parts, c.Args...)
	parts = append(parts, c.From)
	return strings.Join(parts, ":")
}

// Reply addresses an OK or ERR line back to the sender.
func (c Command) Reply(shard string, ok bool, reason string, args ...string) Command {
	verb := "OK"
	if !ok {
		verb = "ERR"
	}
	return Command{To: c.From, Verb: verb, Noun: reason, Args: args, From: shard}
}
