package scenario

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// DateTimeFormat is the timestamp layout of report headers.
const DateTimeFormat = "2006-01-02 15:04:05"

// StepStatus is the outcome of a step, or of a whole scenario.
// WARN is reported but counts as passed.
type StepStatus string

const (
	StepStatusPassed  StepStatus = "PASS"
	StepStatusFailed  StepStatus = "FAIL"
	StepStatusSkipped StepStatus = "SKIP"
	StepStatusError   StepStatus = "ERROR"
	StepStatusWarn    StepStatus = "WARN"
)

// problem reports whether a step with this status belongs in the
// problems section of a report.
func (s StepStatus) problem() bool {
	return s == StepStatusFailed || s == StepStatusError || s == StepStatusWarn
}

// Process exit codes of a run.
const (
	ExitPassed       = 0
	ExitVerification = 1
	ExitInfra        = 2
)

// ScenarioResult is the outcome of one scenario.
type ScenarioResult struct {
	Name       string
	Topology   string // placement used for the run, empty when none
	Status     StepStatus
	Duration   time.Duration
	Steps      []StepResult
	SetupError error
	SkipReason string
	Artifacts  string // OVS log archive, collected on failure
}

// StepResult is the outcome of one step.
type StepResult struct {
	Name     string
	Action   StepAction
	Status   StepStatus
	Duration time.Duration
	Message  string
	Target   string
	Details  []TargetResult
	Err      error
}

// TargetResult is the per-target part of a step that acts on several
// targets or nodes.
type TargetResult struct {
	Target  string
	Status  StepStatus
	Message string
}

// ExitCode returns ExitInfra if any scenario errored, ExitVerification if
// any failed, and ExitPassed otherwise.
func ExitCode(results []*ScenarioResult) int {
	failed := false
	for _, r := range results {
		if r.Status == StepStatusError {
			return ExitInfra
		}
		failed = failed || r.Status == StepStatusFailed
	}
	if failed {
		return ExitVerification
	}
	return ExitPassed
}

// outcomeVerb phrases a scenario status for skip reasons:
// "requires 'basic' which failed".
func outcomeVerb(s StepStatus) string {
	switch s {
	case StepStatusFailed:
		return "failed"
	case StepStatusError:
		return "errored"
	case StepStatusSkipped:
		return "was skipped"
	}
	return string(s)
}

// ReportGenerator writes the results of a run to disk.
type ReportGenerator struct {
	Results []*ScenarioResult
	RunID   string
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// WriteMarkdown writes a summary table followed by the details of every
// failed, errored or warning step.
func (g *ReportGenerator) WriteMarkdown(path string) error {
	var b bytes.Buffer
	fmt.Fprintf(&b, "# sfctest report: %s\n\n", time.Now().Format(DateTimeFormat))
	if g.RunID != "" {
		fmt.Fprintf(&b, "Run ID: `%s`\n\n", g.RunID)
	}
	g.summaryTable(&b)
	g.problems(&b)
	return writeFile(path, b.Bytes())
}

func (g *ReportGenerator) summaryTable(w io.Writer) {
	fmt.Fprintln(w, "| Scenario | Topology | Result | Duration | Note |")
	fmt.Fprintln(w, "|----------|----------|--------|----------|------|")
	for _, r := range g.Results {
		note := r.SkipReason
		if r.SetupError != nil {
			note = r.SetupError.Error()
		}
		fmt.Fprintf(w, "| %s | %s | %s | %s | %s |\n",
			r.Name, r.Topology, r.Status, r.Duration.Round(time.Second), note)
	}
}

func (g *ReportGenerator) problems(w io.Writer) {
	started := false
	for _, r := range g.Results {
		for _, s := range r.Steps {
			if !s.Status.problem() {
				continue
			}
			if !started {
				fmt.Fprint(w, "\n## Problems\n\n")
				started = true
			}
			fmt.Fprintf(w, "### %s\n", r.Name)
			fmt.Fprintf(w, "Step %s (%s) %s: %s\n\n", s.Name, s.Action, s.Status, s.Message)
			for _, d := range s.Details {
				if d.Status != StepStatusPassed {
					fmt.Fprintf(w, "  %s: %s\n", d.Target, d.Message)
				}
			}
		}
		if r.Artifacts != "" {
			fmt.Fprintf(w, "\nOVS logs for %s: `%s`\n", r.Name, r.Artifacts)
		}
	}
}

// WriteJUnit writes one testsuite per scenario and one testcase per step.
// Skipped and setup-failed scenarios get a single placeholder case. WARN
// steps pass, with the warning in system-out.
func (g *ReportGenerator) WriteJUnit(path string) error {
	var doc junitTestSuites
	for _, r := range g.Results {
		doc.Suites = append(doc.Suites, junitSuite(r))
	}
	data, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	return writeFile(path, append([]byte(xml.Header), data...))
}

func junitSuite(r *ScenarioResult) junitTestSuite {
	suite := junitTestSuite{Name: r.Name, Time: r.Duration.Seconds()}

	switch {
	case r.Status == StepStatusSkipped && r.SkipReason != "":
		suite.add(junitTestCase{
			Name:    r.Name,
			Skipped: &junitSkipped{Message: r.SkipReason},
		}, r.Name)
		return suite
	case r.SetupError != nil && len(r.Steps) == 0:
		suite.add(junitTestCase{
			Name:  "setup",
			Error: &junitError{Message: r.SetupError.Error(), Type: "setup"},
		}, r.Name)
		return suite
	}

	for _, s := range r.Steps {
		tc := junitTestCase{Name: s.Name, Time: s.Duration.Seconds()}
		action := string(s.Action)
		switch s.Status {
		case StepStatusFailed:
			tc.Failure = &junitFailure{Message: s.Message, Type: action}
		case StepStatusError:
			tc.Error = &junitError{Message: s.Message, Type: action}
		case StepStatusSkipped:
			tc.Skipped = &junitSkipped{Message: s.Message}
		case StepStatusWarn:
			tc.SystemOut = "WARN: " + s.Message
		}
		suite.add(tc, r.Name)
	}
	return suite
}

// add appends tc and updates the suite counters from its outcome.
func (s *junitTestSuite) add(tc junitTestCase, class string) {
	tc.ClassName = class
	s.Tests++
	switch {
	case tc.Failure != nil:
		s.Failures++
	case tc.Error != nil:
		s.Errors++
	case tc.Skipped != nil:
		s.Skipped++
	}
	s.Cases = append(s.Cases, tc)
}

type junitTestSuites struct {
	XMLName xml.Name         `xml:"testsuites"`
	Suites  []junitTestSuite `xml:"testsuite"`
}

type junitTestSuite struct {
	Name     string          `xml:"name,attr"`
	Tests    int             `xml:"tests,attr"`
	Failures int             `xml:"failures,attr"`
	Errors   int             `xml:"errors,attr"`
	Skipped  int             `xml:"skipped,attr"`
	Time     float64         `xml:"time,attr"`
	Cases    []junitTestCase `xml:"testcase"`
}

type junitTestCase struct {
	Name      string        `xml:"name,attr"`
	ClassName string        `xml:"classname,attr"`
	Time      float64       `xml:"time,attr"`
	Failure   *junitFailure `xml:"failure,omitempty"`
	Skipped   *junitSkipped `xml:"skipped,omitempty"`
	Error     *junitError   `xml:"error,omitempty"`
	SystemOut string        `xml:"system-out,omitempty"`
}

type junitFailure struct {
	Message string `xml:"message,attr"`
	Type    string `xml:"type,attr"`
}

type junitSkipped struct {
	Message string `xml:"message,attr"`
}

type junitError struct {
	Message string `xml:"message,attr"`
	Type    string `xml:"type,attr"`
}
