package terminal

import (
	"bufio"
	"context"
	"io"
	"strings"
)

// Reader reads lines of user input. Reads can be abandoned through a
// context; the underlying read keeps going in the background.
type Reader struct {
	lines chan string
	err   error
}

// NewReader starts reading lines from r
func NewReader(r io.Reader) *Reader {
	rd := &Reader{lines: make(chan string)}
	go func() {
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			rd.lines <- scanner.Text()
		}
		rd.err = scanner.Err()
		close(rd.lines)
	}()
	return rd
}

// ReadLine returns the next line with surrounding whitespace trimmed. It
// returns io.EOF once the input is exhausted.
func (r *Reader) ReadLine(ctx context.Context) (string, error) {
	select {
	case line, ok := <-r.lines:
		if !ok {
			if r.err != nil {
				return "", r.err
			}
			return "", io.EOF
		}
		return strings.TrimSpace(line), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

type command struct {
	name    string
	aliases []string
	help    string
}

var commands = []command{
	{name: "/new", aliases: []string{"/clear"}, help: "start a new conversation"},
	{name: "/history", help: "show the whole conversation"},
	{name: "/show", help: "expand the query results of the last answer"},
	{name: "/info N", help: "show details of movie [N] from the last answer"},
	{name: "/help", help: "list commands"},
	{name: "/exit", aliases: []string{"/quit"}, help: "quit"},
}

// parseCommand splits a slash command into its canonical name and argument.
// ok is false for ordinary messages.
func parseCommand(line string) (name, arg string, ok bool) {
	if !strings.HasPrefix(line, "/") {
		return "", "", false
	}
	name, arg, _ = strings.Cut(line, " ")
	name = strings.ToLower(name)
	for _, c := range commands {
		canonical, _, _ := strings.Cut(c.name, " ")
		if name == canonical {
			return canonical, strings.TrimSpace(arg), true
		}
		for _, a := range c.aliases {
			if name == a {
				return canonical, strings.TrimSpace(arg), true
			}
		}
	}
	return name, strings.TrimSpace(arg), true
}
