// Package remote executes shell commands on testbed hosts, either over SSH or
// on the local machine, and captures stdout, stderr and exit status.
package remote

import (
	"context"
	"fmt"
	"strings"
)

// Result is the captured outcome of one command.
type Result struct {
	Command    string
	Stdout     string
	Stderr     string
	ExitStatus int
}

// Output returns stdout with surrounding whitespace removed.
func (r *Result) Output() string {
	return strings.TrimSpace(r.Stdout)
}

// Lines splits trimmed stdout into lines. Empty output yields no lines.
func (r *Result) Lines() []string {
	out := r.Output()
	if out == "" {
		return nil
	}
	return strings.Split(out, "\n")
}

// ExitError is returned alongside a populated Result when the command ran
// but exited non-zero.
type ExitError struct {
	Command string
	Status  int
	Stderr  string
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("command %q exited %d", e.Command, e.Status)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}

// Commander runs a shell command on some host.
//
// A transport failure returns a nil Result. A command that ran but exited
// non-zero returns both the Result and an *ExitError.
type Commander interface {
	Run(ctx context.Context, cmd string) (*Result, error)
}

// Host is a Commander with a name, used for log context.
type Host interface {
	Commander
	Name() string
}
