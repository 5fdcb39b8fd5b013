package scenario

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/newtron-network/sfctest/pkg/util"
)

// Runner runs scenarios against one Environment. Objects a scenario creates
// stay in the run state and are visible to the scenarios that follow it.
type Runner struct {
	ScenariosDir string
	Env          *Environment
	Progress     ProgressReporter
	Verbose      bool

	state    *runState
	scenario *Scenario
}

// RunOptions selects the scenarios of a run.
type RunOptions struct {
	Scenario string
	All      bool
}

func NewRunner(scenariosDir string, env *Environment) *Runner {
	return &Runner{ScenariosDir: scenariosDir, Env: env}
}

// Load parses the selected scenarios. With All set, every scenario of the
// directory is returned, ordered after the scenarios it requires.
func (r *Runner) Load(opts RunOptions) ([]*Scenario, error) {
	switch {
	case opts.All:
		scenarios, err := ParseAllScenarios(r.ScenariosDir)
		if err != nil {
			return nil, err
		}
		if len(scenarios) == 0 {
			return nil, fmt.Errorf("no scenarios found in %s", r.ScenariosDir)
		}
		return ValidateDependencyGraph(scenarios)
	case opts.Scenario != "":
		path, err := resolveScenarioPath(r.ScenariosDir, opts.Scenario)
		if err != nil {
			return nil, err
		}
		s, err := ParseScenario(path)
		if err != nil {
			return nil, err
		}
		return []*Scenario{s}, nil
	}
	return nil, errors.New("specify --scenario <name> or --all")
}

// Run loads and runs the selected scenarios. A scenario whose requires: did
// not all pass is skipped, and an interrupt skips whatever is left.
func (r *Runner) Run(ctx context.Context, opts RunOptions) ([]*ScenarioResult, error) {
	scenarios, err := r.Load(opts)
	if err != nil {
		return nil, err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	r.state = newRunState()
	defer r.state.closeEndpoints()

	started := time.Now()
	r.notify(func(p ProgressReporter) { p.RunStart(scenarios) })

	outcome := make(map[string]StepStatus, len(scenarios))
	results := make([]*ScenarioResult, 0, len(scenarios))
	for i, sc := range scenarios {
		var res *ScenarioResult
		if reason := r.skipReason(ctx, sc, outcome); reason != "" {
			res = &ScenarioResult{
				Name:       sc.Name,
				Topology:   r.topologyID(),
				Status:     StepStatusSkipped,
				SkipReason: reason,
			}
		} else {
			r.notify(func(p ProgressReporter) { p.ScenarioStart(sc.Name, i, len(scenarios)) })
			res = r.RunScenario(ctx, sc)
		}
		outcome[sc.Name] = res.Status
		results = append(results, res)
		r.notify(func(p ProgressReporter) { p.ScenarioEnd(res, i, len(scenarios)) })
	}

	r.notify(func(p ProgressReporter) { p.RunEnd(results, time.Since(started)) })
	return results, nil
}

// skipReason returns why sc must not run, or "". The first scenario of a
// run always runs: it builds on whatever already exists on the testbed.
func (r *Runner) skipReason(ctx context.Context, sc *Scenario, outcome map[string]StepStatus) string {
	if ctx.Err() != nil {
		return "interrupted"
	}
	if len(outcome) == 0 {
		return ""
	}
	for _, req := range sc.Requires {
		st, ran := outcome[req]
		switch {
		case !ran:
			return fmt.Sprintf("requires '%s' which has not run yet", req)
		case st != StepStatusPassed:
			return fmt.Sprintf("requires '%s' which %s", req, outcomeVerb(st))
		}
	}
	return ""
}

// RunScenario runs the steps of sc in order, stopping at the first FAIL or
// ERROR. OVS logs are collected when the scenario does not pass.
func (r *Runner) RunScenario(ctx context.Context, sc *Scenario) *ScenarioResult {
	if r.state == nil {
		r.state = newRunState()
	}
	r.scenario = sc
	r.state.classifiers = nil
	r.state.task = nil

	started := time.Now()
	res := &ScenarioResult{Name: sc.Name}
	total := len(sc.Steps)

	for i := range sc.Steps {
		step := &sc.Steps[i]
		r.notify(func(p ProgressReporter) { p.StepStart(sc.Name, step, i, total) })
		sr := r.executeStep(ctx, step)
		res.Steps = append(res.Steps, *sr)
		r.notify(func(p ProgressReporter) { p.StepEnd(sc.Name, sr, i, total) })

		if sr.Status == StepStatusError {
			res.SetupError = sr.Err
		}
		if sr.Status == StepStatusFailed || sr.Status == StepStatusError {
			util.WithScenario(sc.Name).Errorf("step %s %s: %s", step.Name, sr.Status, sr.Message)
			break
		}
	}

	res.Status = overallStatus(res.Steps)
	res.Topology = r.topologyID()
	if res.Status != StepStatusPassed {
		res.Artifacts = r.collectOVSLogs(ctx)
	}
	res.Duration = time.Since(started)
	return res
}

func (r *Runner) executeStep(ctx context.Context, step *Step) *StepResult {
	var res *StepResult
	if executor, ok := executors[step.Action]; ok {
		util.WithOperation(string(step.Action)).Debugf("step %s", step.Name)
		started := time.Now()
		res = executor.Execute(ctx, r, step)
		res.Duration = time.Since(started)
	} else {
		err := &StepError{Step: step.Name, Action: step.Action, Err: fmt.Errorf("unknown action: %s", step.Action)}
		res = &StepResult{Status: StepStatusError, Message: err.Error(), Err: err}
	}
	res.Name = step.Name
	res.Action = step.Action
	if res.Message == "" {
		res.Message = detailSummary(res.Details)
	}
	return res
}

// detailSummary joins the messages of the targets that did not pass.
func detailSummary(details []TargetResult) string {
	var parts []string
	for _, d := range details {
		if d.Status != StepStatusPassed && d.Message != "" {
			parts = append(parts, d.Target+": "+d.Message)
		}
	}
	return strings.Join(parts, "; ")
}

// collectOVSLogs dumps the OVS state of every compute node into the run's
// results and returns the archive path, or "" when nothing was archived.
func (r *Runner) collectOVSLogs(ctx context.Context) string {
	if r.Env == nil || r.Env.OVSLog == nil {
		return ""
	}
	ctx = context.WithoutCancel(ctx)
	for _, n := range r.Env.Computes() {
		if err := r.Env.OVSLog.DumpNode(ctx, n.Name, n.Host, n.User); err != nil {
			util.WithNode(n.Name).Warnf("collecting OVS logs: %v", err)
		}
	}
	path, err := r.Env.OVSLog.CreateArchive(time.Now())
	if err != nil {
		util.Warnf("archiving OVS logs: %v", err)
		return ""
	}
	util.Infof("OVS logs archived in %s", path)
	return path
}

func (r *Runner) topologyID() string {
	if r.state == nil || r.state.assignment == nil {
		return ""
	}
	return r.state.assignment.ID
}

func (r *Runner) notify(fn func(ProgressReporter)) {
	if r.Progress != nil {
		fn(r.Progress)
	}
}

// overallStatus folds step results into a scenario status: any FAIL wins,
// then any ERROR. WARN and SKIP steps pass.
func overallStatus(steps []StepResult) StepStatus {
	status := StepStatusPassed
	for _, s := range steps {
		switch s.Status {
		case StepStatusFailed:
			return StepStatusFailed
		case StepStatusError:
			status = StepStatusError
		}
	}
	return status
}
