package traffic

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/newtron-network/sfctest/pkg/remote"
	"github.com/newtron-network/sfctest/pkg/util"
)

// Outcome is how a TCP connection attempt ended.
type Outcome string

const (
	Accepted Outcome = "accepted" // handshake completed
	Reset    Outcome = "reset"    // RST received
	Dropped  Outcome = "dropped"  // no answer before timeout
)

// ParseOutcome accepts the outcome names used in scenario files.
func ParseOutcome(s string) (Outcome, error) {
	switch o := Outcome(strings.ToLower(s)); o {
	case Accepted, Reset, Dropped:
		return o, nil
	case "allowed", "allow":
		return Accepted, nil
	case "blocked", "block", "drop":
		return Dropped, nil
	}
	return "", fmt.Errorf("unknown traffic outcome %q", s)
}

// Expectation is one (protocol, port, outcome) triple.
type Expectation struct {
	Protocol string
	Port     int
	Outcome  Outcome
}

func (e Expectation) String() string {
	return fmt.Sprintf("%s/%d %s", strings.ToLower(e.Protocol), e.Port, e.Outcome)
}

// Check is the observed outcome for one expectation.
type Check struct {
	Expectation
	Got      Outcome
	ExitCode int
	Passed   bool
}

func (c Check) String() string {
	if c.Passed {
		return fmt.Sprintf("%s/%d %s", strings.ToLower(c.Protocol), c.Port, c.Got)
	}
	return fmt.Sprintf("%s/%d expected %s, got %s (curl exit %d)", strings.ToLower(c.Protocol), c.Port, c.Outcome, c.Got, c.ExitCode)
}

// DefaultConnectTimeout bounds each connection attempt.
const DefaultConnectTimeout = 10 * time.Second

// curl exit codes that decide the outcome before any application data.
const (
	curlCouldNotConnect = 7
	curlTimedOut        = 28
)

// curl exit codes that mean the probe itself could not run.
var curlLocalFailures = map[int]string{
	2:   "curl failed to initialize",
	6:   "could not resolve host",
	127: "curl not installed",
}

// Assert opens a TCP connection from client to target for each expectation
// and classifies the result. Mismatches are reported through Check.Passed;
// the error is reserved for invalid input and for probes that could not run.
func Assert(ctx context.Context, client remote.Commander, target string, expectations []Expectation, timeout time.Duration) ([]Check, error) {
	if err := validateExpectations(expectations); err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}
	secs := int(timeout.Round(time.Second) / time.Second)
	if secs < 1 {
		secs = 1
	}

	checks := make([]Check, 0, len(expectations))
	for _, e := range expectations {
		cmd := fmt.Sprintf("curl -s -o /dev/null --connect-timeout %d -m %d http://%s:%d/", secs, secs, target, e.Port)
		code, err := exitCode(ctx, client, cmd)
		if err != nil {
			return checks, fmt.Errorf("traffic: %s: %w", e, err)
		}
		if msg, ok := curlLocalFailures[code]; ok {
			return checks, fmt.Errorf("traffic: %s: %s (curl exit %d)", e, msg, code)
		}
		got := Classify(code)
		c := Check{Expectation: e, Got: got, ExitCode: code, Passed: got == e.Outcome}
		util.WithTarget(target).Infof("traffic %s", c)
		checks = append(checks, c)
	}
	return checks, nil
}

// Classify maps a curl exit code to a connection outcome. Any failure after
// the connection was established still counts as accepted.
func Classify(code int) Outcome {
	switch code {
	case curlCouldNotConnect:
		return Reset
	case curlTimedOut:
		return Dropped
	default:
		return Accepted
	}
}

// AllPassed reports whether every check passed.
func AllPassed(checks []Check) bool {
	for _, c := range checks {
		if !c.Passed {
			return false
		}
	}
	return true
}

func exitCode(ctx context.Context, c remote.Commander, cmd string) (int, error) {
	_, err := c.Run(ctx, cmd)
	if err == nil {
		return 0, nil
	}
	var exitErr *remote.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Status, nil
	}
	return 0, err
}

func validateExpectations(exps []Expectation) error {
	v := &util.ValidationBuilder{}
	v.Add(len(exps) > 0, "no traffic expectations")
	for _, e := range exps {
		p := strings.ToLower(e.Protocol)
		v.Add(p == "tcp" || p == "6", fmt.Sprintf("protocol %q not supported, only tcp", e.Protocol))
		v.Add(e.Port > 0 && e.Port < 65536, fmt.Sprintf("port %d out of range", e.Port))
		switch e.Outcome {
		case Accepted, Reset, Dropped:
		default:
			v.AddErrorf("unknown outcome %q", e.Outcome)
		}
	}
	return v.Build()
}
