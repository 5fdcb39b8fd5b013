package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
)

// Local runs commands on the machine sfctest runs on.
type Local struct{}

// Name implements Host.
func (Local) Name() string { return "local" }

// Run executes cmd through sh -c.
func (Local) Run(ctx context.Context, cmd string) (*Result, error) {
	c := exec.CommandContext(ctx, "sh", "-c", cmd)
	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	err := c.Run()
	res := &Result{Command: cmd, Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && ctx.Err() == nil {
			res.ExitStatus = exitErr.ExitCode()
			return res, &ExitError{Command: cmd, Status: res.ExitStatus, Stderr: res.Stderr}
		}
		return nil, fmt.Errorf("exec %q: %w", cmd, err)
	}
	return res, nil
}
