package emulation

import (
	"fmt"
	"strconv"
	"strings"
)

// Command is a program invocation kept as data. It is never passed through
// a shell, so arguments need no quoting.
type Command struct {
	Name string
	Args []string
}

// Cmd builds a Command.
func Cmd(name string, args ...string) Command {
	return Command{Name: name, Args: args}
}

// String renders the command for logs.
func (c Command) String() string {
	parts := make([]string, 0, len(c.Args)+1)
	parts = append(parts, quote(c.Name))
	for _, a := range c.Args {
		parts = append(parts, quote(a))
	}
	return strings.Join(parts, " ")
}

// Prefix returns a command running c as the trailing arguments of name/args.
func (c Command) Prefix(name string, args ...string) Command {
	out := make([]string, 0, len(args)+len(c.Args)+1)
	out = append(out, args...)
	out = append(out, c.Name)
	out = append(out, c.Args...)
	return Command{Name: name, Args: out}
}

func quote(s string) string {
	if s == "" || strings.ContainsAny(s, " \t\n\"'\\$`|&;<>()") {
		return strconv.Quote(s)
	}
	return s
}

// ExternalToolError reports a failed external command.
type ExternalToolError struct {
	Cmd    Command
	Output string
	Err    error
}

func (e *ExternalToolError) Error() string {
	out := strings.TrimSpace(e.Output)
	if out == "" {
		return fmt.Sprintf("%s: %v", e.Cmd, e.Err)
	}
	return fmt.Sprintf("%s: %v: %s", e.Cmd, e.Err, out)
}

func (e *ExternalToolError) Unwrap() error { return e.Err }
