package scenario

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/newtron-network/sfctest/pkg/cli"
)

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{300 * time.Millisecond, "<1s"},
		{42 * time.Second, "42s"},
		{59600 * time.Millisecond, "1m"},
		{3 * time.Minute, "3m"},
		{3*time.Minute + 7*time.Second, "3m07s"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.d); got != tt.want {
			t.Errorf("formatDuration(%s) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestConsoleProgress_Run(t *testing.T) {
	saved := cli.ColorEnabled
	t.Cleanup(func() { cli.ColorEnabled = saved })
	cli.ColorEnabled = false

	var buf bytes.Buffer
	p := &ConsoleProgress{W: &buf}
	results := sampleResults()

	p.RunStart([]*Scenario{
		{Name: "create-endpoints", Steps: make([]Step, 9)},
		{Name: "basic", Requires: []string{"create-endpoints"}, Steps: make([]Step, 14)},
	})
	p.StepEnd("basic", &results[1].Steps[0], 0, 2)
	for i, r := range results {
		p.ScenarioEnd(r, i, len(results))
	}
	p.RunEnd(results, 6*time.Minute)

	out := buf.String()
	for _, want := range []string{
		"sfctest: 2 scenarios",
		"create-endpoints",
		"WARN classification rules not converged",
		"[2/4]",
		"sfctest: 4 scenarios: 1 passed, 1 failed, 1 errored, 1 skipped, 1 warnings  (6m)",
		"http blocked (verify-traffic): tcp/80 expected dropped",
		"ovs logs: /results/ovs-logs-20261019-101500.tar.gz",
		"setup: scenario: connect: no route to host",
		"requires 'basic' which failed",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
