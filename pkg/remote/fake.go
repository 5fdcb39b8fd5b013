package remote

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Fake is a scripted Commander for tests. Responses are matched by the
// longest registered command prefix; unmatched commands succeed with empty
// output. Every command is recorded.
type Fake struct {
	HostName string

	mu        sync.Mutex
	responses map[string][]fakeResponse
	commands  []string
}

type fakeResponse struct {
	res *Result
	err error
}

// NewFake returns an empty Fake.
func NewFake(name string) *Fake {
	return &Fake{HostName: name, responses: map[string][]fakeResponse{}}
}

// Name implements Host.
func (f *Fake) Name() string { return f.HostName }

// On queues stdout and exit status for commands starting with prefix. Queued
// responses are consumed in order; the last one repeats.
func (f *Fake) On(prefix, stdout string, exitStatus int) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	res := &Result{Stdout: stdout, ExitStatus: exitStatus}
	var err error
	if exitStatus != 0 {
		err = &ExitError{Command: prefix, Status: exitStatus}
	}
	f.responses[prefix] = append(f.responses[prefix], fakeResponse{res: res, err: err})
	return f
}

// OnFailure queues a non-zero exit with stderr for commands starting with
// prefix.
func (f *Fake) OnFailure(prefix, stderr string, exitStatus int) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	res := &Result{Stderr: stderr, ExitStatus: exitStatus}
	err := &ExitError{Command: prefix, Status: exitStatus, Stderr: stderr}
	f.responses[prefix] = append(f.responses[prefix], fakeResponse{res: res, err: err})
	return f
}

// OnError queues a transport error for commands starting with prefix.
func (f *Fake) OnError(prefix string, err error) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[prefix] = append(f.responses[prefix], fakeResponse{err: err})
	return f
}

// Commands returns every command run so far.
func (f *Fake) Commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.commands...)
}

// Count returns how many recorded commands start with prefix.
func (f *Fake) Count(prefix string) int {
	n := 0
	for _, c := range f.Commands() {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

// Run implements Commander.
func (f *Fake) Run(ctx context.Context, cmd string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("fake %s: %w", f.HostName, err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, cmd)

	best := ""
	for prefix := range f.responses {
		if strings.HasPrefix(cmd, prefix) && len(prefix) > len(best) {
			best = prefix
		}
	}
	queue, ok := f.responses[best]
	if !ok || len(queue) == 0 {
		return &Result{Command: cmd}, nil
	}
	r := queue[0]
	if len(queue) > 1 {
		f.responses[best] = queue[1:]
	}
	if r.res == nil {
		return nil, r.err
	}
	res := *r.res
	res.Command = cmd
	return &res, r.err
}
