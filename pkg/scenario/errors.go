package scenario

import "fmt"

// InfraError is a setup failure: an orchestration call, an unreachable
// endpoint, a failed SSH login. It aborts the scenario.
type InfraError struct {
	Op     string // "create-vnf", "ssh", "connect", ...
	Target string // node, VNF or endpoint; "" for testbed-level errors
	Err    error
}

func (e *InfraError) Error() string {
	if e.Target != "" {
		return fmt.Sprintf("scenario: %s %s: %v", e.Op, e.Target, e.Err)
	}
	return fmt.Sprintf("scenario: %s: %v", e.Op, e.Err)
}

func (e *InfraError) Unwrap() error {
	return e.Err
}

// StepError is a malformed or unknown step.
type StepError struct {
	Step   string
	Action StepAction
	Err    error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("scenario: step %s (%s): %v", e.Step, e.Action, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}
