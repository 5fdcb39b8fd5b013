package scenario

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/newtron-network/sfctest/pkg/cli"
)

// ProgressReporter is told about every scenario and step as the run goes.
type ProgressReporter interface {
	RunStart(scenarios []*Scenario)
	ScenarioStart(name string, index, total int)
	ScenarioEnd(result *ScenarioResult, index, total int)
	StepStart(scenario string, step *Step, index, total int)
	StepEnd(scenario string, result *StepResult, index, total int)
	RunEnd(results []*ScenarioResult, duration time.Duration)
}

// ConsoleProgress prints one line per scenario, plus one per step in verbose
// mode. Lines are only appended, never rewritten, so the output reads the
// same in a terminal and in a CI log.
type ConsoleProgress struct {
	W       io.Writer
	Verbose bool

	width int // scenario name column, dots included
}

// NewConsoleProgress returns a reporter writing to stdout.
func NewConsoleProgress(verbose bool) *ConsoleProgress {
	return &ConsoleProgress{W: os.Stdout, Verbose: verbose}
}

const indent = "          "

func (p *ConsoleProgress) RunStart(scenarios []*Scenario) {
	if len(scenarios) == 0 {
		return
	}
	for _, s := range scenarios {
		p.width = max(p.width, len(s.Name)+6)
	}

	fmt.Fprintf(p.W, "\nsfctest: %d scenarios\n\n", len(scenarios))
	t := cli.NewTable(p.W, "#", "SCENARIO", "STEPS", "REQUIRES").WithPrefix("  ")
	for i, s := range scenarios {
		requires := strings.Join(s.Requires, ",")
		if requires == "" {
			requires = "-"
		}
		t.Rowf(i+1, s.Name, len(s.Steps), requires)
	}
	t.Flush()
	fmt.Fprintln(p.W)
}

func (p *ConsoleProgress) ScenarioStart(name string, index, total int) {
	if p.Verbose {
		fmt.Fprintf(p.W, "  [%d/%d]  %s\n", index+1, total, name)
	}
}

func (p *ConsoleProgress) ScenarioEnd(result *ScenarioResult, index, total int) {
	if p.Verbose {
		if result.Topology != "" {
			fmt.Fprintf(p.W, "%stopology %s\n", indent, result.Topology)
		}
		if result.SetupError != nil {
			fmt.Fprintf(p.W, "%s%s\n", indent, cli.Dim(result.SetupError.Error()))
		}
		fmt.Fprintf(p.W, "%s%s  (%s)\n\n", indent, colorStatus(result.Status), formatDuration(result.Duration))
		return
	}

	line := fmt.Sprintf("  %-7s %s %s", fmt.Sprintf("[%d/%d]", index+1, total),
		cli.DotPad(result.Name, p.width), colorStatus(result.Status))
	if result.Status != StepStatusSkipped {
		line += "  (" + formatDuration(result.Duration) + ")"
	}
	fmt.Fprintln(p.W, line)
}

func (p *ConsoleProgress) StepStart(scenario string, step *Step, index, total int) {}

func (p *ConsoleProgress) StepEnd(scenario string, result *StepResult, index, total int) {
	if !p.Verbose {
		// Convergence warnings matter even in a short listing.
		if result.Status == StepStatusWarn {
			fmt.Fprintf(p.W, "%s%s %s\n", indent, cli.Yellow("WARN"), result.Message)
		}
		return
	}

	fmt.Fprintf(p.W, "%s[%d/%d] %s %s  (%s)\n", indent, index+1, total,
		cli.DotPad(result.Name, p.width-10), colorStatus(result.Status), formatDuration(result.Duration))
	if result.Status == StepStatusPassed || result.Status == StepStatusSkipped {
		return
	}
	if result.Message != "" {
		fmt.Fprintf(p.W, "%s     %s\n", indent, cli.Dim(result.Message))
	}
	for _, d := range result.Details {
		if d.Status != StepStatusPassed {
			fmt.Fprintf(p.W, "%s     %s: %s\n", indent, d.Target, cli.Dim(d.Message))
		}
	}
}

func (p *ConsoleProgress) RunEnd(results []*ScenarioResult, duration time.Duration) {
	count := tally(results)

	var parts []string
	for _, c := range []struct {
		status StepStatus
		label  string
		paint  func(string) string
	}{
		{StepStatusPassed, "passed", cli.Green},
		{StepStatusFailed, "failed", cli.Red},
		{StepStatusError, "errored", cli.Red},
		{StepStatusSkipped, "skipped", cli.Yellow},
	} {
		if n := count[c.status]; n > 0 {
			parts = append(parts, c.paint(fmt.Sprintf("%d %s", n, c.label)))
		}
	}
	if n := countWarnings(results); n > 0 {
		parts = append(parts, cli.Yellow(fmt.Sprintf("%d warnings", n)))
	}

	fmt.Fprintf(p.W, "\n---\nsfctest: %d scenarios", len(results))
	if len(parts) > 0 {
		fmt.Fprint(p.W, ": "+strings.Join(parts, ", "))
	}
	fmt.Fprintf(p.W, "  (%s)\n", formatDuration(duration))

	if count[StepStatusFailed]+count[StepStatusError] > 0 {
		fmt.Fprintf(p.W, "\n  FAILED:\n")
		for i, r := range results {
			if r.Status == StepStatusFailed || r.Status == StepStatusError {
				p.printFailure(i, r)
			}
		}
	}

	if count[StepStatusSkipped] > 0 {
		fmt.Fprintf(p.W, "\n  SKIPPED:\n")
		for i, r := range results {
			if r.Status != StepStatusSkipped {
				continue
			}
			reason := r.SkipReason
			if reason == "" {
				reason = "skipped"
			}
			fmt.Fprintf(p.W, "    [%d]  %s %s\n", i+1, cli.DotPad(r.Name, p.width), reason)
		}
	}
	fmt.Fprintln(p.W)
}

func (p *ConsoleProgress) printFailure(i int, r *ScenarioResult) {
	fmt.Fprintf(p.W, "    [%d]  %s\n", i+1, r.Name)
	if r.SetupError != nil {
		fmt.Fprintf(p.W, "         setup: %s\n", r.SetupError)
	} else {
		for _, step := range r.Steps {
			if step.Status != StepStatusFailed && step.Status != StepStatusError {
				continue
			}
			msg := step.Message
			if msg == "" {
				msg = string(step.Status)
			}
			fmt.Fprintf(p.W, "         %s (%s): %s\n", step.Name, step.Action, msg)
		}
	}
	if r.Artifacts != "" {
		fmt.Fprintf(p.W, "         ovs logs: %s\n", r.Artifacts)
	}
}

// tally counts scenarios by status.
func tally(results []*ScenarioResult) map[StepStatus]int {
	count := make(map[StepStatus]int)
	for _, r := range results {
		count[r.Status]++
	}
	return count
}

func countWarnings(results []*ScenarioResult) int {
	n := 0
	for _, r := range results {
		for _, s := range r.Steps {
			if s.Status == StepStatusWarn {
				n++
			}
		}
	}
	return n
}

func colorStatus(s StepStatus) string {
	switch s {
	case StepStatusPassed:
		return cli.Green(string(s))
	case StepStatusFailed, StepStatusError:
		return cli.Red(string(s))
	case StepStatusSkipped, StepStatusWarn:
		return cli.Yellow(string(s))
	}
	return string(s)
}

// formatDuration renders d as "<1s", "42s", "3m" or "3m07s".
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return "<1s"
	}
	secs := int(d.Round(time.Second).Seconds())
	switch {
	case secs < 60:
		return fmt.Sprintf("%ds", secs)
	case secs%60 == 0:
		return fmt.Sprintf("%dm", secs/60)
	}
	return fmt.Sprintf("%dm%02ds", secs/60, secs%60)
}
