package scenario

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/newtron-network/sfctest/pkg/odl"
	"github.com/newtron-network/sfctest/pkg/ovs"
	"github.com/newtron-network/sfctest/pkg/traffic"
	"github.com/newtron-network/sfctest/pkg/util"
)

type assignFloatingIPsExecutor struct{}

func (e *assignFloatingIPsExecutor) Execute(ctx context.Context, r *Runner, step *Step) *StepResult {
	details := make([]TargetResult, 0, len(step.Targets))
	for _, target := range step.Targets {
		ip, err := r.address(target)
		if err != nil {
			return infraFailure("assign-floating-ips", target, err)
		}
		util.WithTarget(target).Infof("%s VM IP: %s", target, ip)
		details = append(details, TargetResult{Target: target, Status: StepStatusPassed, Message: ip})
	}
	res := passed("%d floating IPs", len(details))
	res.Details = details
	return res
}

// targetAddrs resolves the floating IPs of the step targets.
func (r *Runner) targetAddrs(op string, targets []string) ([]string, map[string]string, *StepResult) {
	addrs := make([]string, 0, len(targets))
	byAddr := make(map[string]string, len(targets))
	for _, target := range targets {
		ip, err := r.address(target)
		if err != nil {
			return nil, nil, infraFailure(op, target, err)
		}
		addrs = append(addrs, ip)
		byAddr[ip] = target
	}
	return addrs, byAddr, nil
}

func (r *Runner) retries(step *Step, fallback int) (int, time.Duration) {
	retries := step.Retries
	if retries <= 0 {
		retries = fallback
	}
	interval := step.Interval
	if interval <= 0 {
		interval = r.Env.Config.Timeouts.PingInterval
	}
	return retries, interval
}

// verifyReachableExecutor pings every target with a bounded number of
// attempts. An unreachable target is fatal for the scenario.
type verifyReachableExecutor struct{}

func (e *verifyReachableExecutor) Execute(ctx context.Context, r *Runner, step *Step) *StepResult {
	addrs, _, fail := r.targetAddrs("verify-reachable", step.Targets)
	if fail != nil {
		return fail
	}
	retries, interval := r.retries(step, r.Env.Config.Timeouts.PingRetries)
	if err := r.Env.Prober.WaitReachable(ctx, addrs, retries, interval); err != nil {
		return infraFailure("verify-reachable", "", err)
	}
	return passed("%s reachable", strings.Join(addrs, ", "))
}

type verifySSHExecutor struct{}

func (e *verifySSHExecutor) Execute(ctx context.Context, r *Runner, step *Step) *StepResult {
	if r.Env.Dial == nil {
		return infraFailure("verify-ssh", "", fmt.Errorf("no endpoint dialer configured: %w", util.ErrInvalidConfig))
	}
	addrs, byAddr, fail := r.targetAddrs("verify-ssh", step.Targets)
	if fail != nil {
		return fail
	}
	retries, interval := r.retries(step, r.Env.Config.Timeouts.SSHRetries)
	eps, err := r.Env.Prober.CheckSSH(ctx, addrs, r.Env.Dial, retries, interval)
	if err != nil {
		return infraFailure("verify-ssh", "", err)
	}
	for addr, ep := range eps {
		target := byAddr[addr]
		if old, ok := r.state.endpoints[target]; ok {
			old.Close()
		}
		r.state.endpoints[target] = ep
	}
	return passed("SSH to %s", strings.Join(step.Targets, ", "))
}

type startHTTPServerExecutor struct{}

func (e *startHTTPServerExecutor) Execute(ctx context.Context, r *Runner, step *Step) *StepResult {
	ep, err := r.endpoint(ctx, step.Target)
	if err != nil {
		return infraFailure("start-http-server", step.Target, err)
	}
	util.WithTarget(step.Target).Infof("Starting HTTP server on port %d", step.Port)
	if err := traffic.StartHTTPServer(ctx, ep, step.Port); err != nil {
		return infraFailure("start-http-server", step.Target, err)
	}
	return passed("HTTP server listening on %s:%d", step.Target, step.Port)
}

type startFirewallExecutor struct{}

func (e *startFirewallExecutor) Execute(ctx context.Context, r *Runner, step *Step) *StepResult {
	ep, err := r.endpoint(ctx, step.Target)
	if err != nil {
		return infraFailure("start-firewall", step.Target, err)
	}
	opts := traffic.FirewallOptions{Port: step.Port, Block: step.Port != 0}
	if err := traffic.StartFirewall(ctx, ep, opts); err != nil {
		return infraFailure("start-firewall", step.Target, err)
	}
	if opts.Block {
		return passed("firewall on %s blocking port %d", step.Target, step.Port)
	}
	return passed("firewall on %s forwarding", step.Target)
}

// installReverseFlowsExecutor adds, on every compute node, a classifier
// flow steering return traffic from port into the reverse path of chain.
type installReverseFlowsExecutor struct{}

func (e *installReverseFlowsExecutor) Execute(ctx context.Context, r *Runner, step *Step) *StepResult {
	if r.Env.Controller == nil {
		return infraFailure("install-reverse-flows", step.Chain, fmt.Errorf("no controller client: %w", util.ErrInvalidConfig))
	}
	paths, err := r.Env.Controller.ListRenderedServicePaths(ctx)
	if err != nil {
		return infraFailure("install-reverse-flows", step.Chain, err)
	}
	var chainPaths []odl.RenderedServicePath
	for _, p := range paths {
		if p.Chain() == step.Chain {
			chainPaths = append(chainPaths, p)
		}
	}
	nsp, err := odl.ReversePathID(chainPaths)
	if err != nil {
		return infraFailure("install-reverse-flows", step.Chain, err)
	}

	flow := ovs.ReverseClassifierFlow(ovs.ClassifierTable, step.Port, nsp)
	computes := r.Env.Computes()
	for _, n := range computes {
		if err := r.Env.flows(n).AddFlow(ctx, ovs.DefaultBridge, flow); err != nil {
			return infraFailure("install-reverse-flows", n.Name, err)
		}
	}
	return passed("reverse path %#x for tp_src=%d on %d compute nodes", nsp, step.Port, len(computes))
}

// dumpClassifierFlowsExecutor logs the classification flows of each compute
// node. It is diagnostic and never fails the scenario.
type dumpClassifierFlowsExecutor struct{}

func (e *dumpClassifierFlowsExecutor) Execute(ctx context.Context, r *Runner, step *Step) *StepResult {
	computes := r.Env.Computes()
	details := make([]TargetResult, 0, len(computes))
	total := 0
	for _, n := range computes {
		flows, err := r.Env.flows(n).DumpFlows(ctx, ovs.DefaultBridge, step.Table)
		if err != nil {
			util.WithNode(n.Name).Warnf("dump table %d: %v", step.Table, err)
			details = append(details, TargetResult{Target: n.Name, Status: StepStatusWarn, Message: err.Error()})
			continue
		}
		tags := ovs.ClassificationTags(flows)
		parts := make([]string, 0, len(tags))
		for _, t := range tags {
			parts = append(parts, t.String())
		}
		util.WithNode(n.Name).Infof("table %d classification flows: %v", step.Table, parts)
		total += len(tags)
		details = append(details, TargetResult{Target: n.Name, Status: StepStatusPassed, Message: strings.Join(parts, "; ")})
	}
	res := passed("%d classification flows in table %d on %d nodes", total, step.Table, len(computes))
	res.Details = details
	return res
}

// verifyTrafficExecutor opens TCP connections from the source endpoint to
// the private address of the target and compares outcomes.
type verifyTrafficExecutor struct{}

func (e *verifyTrafficExecutor) Execute(ctx context.Context, r *Runner, step *Step) *StepResult {
	client, err := r.endpoint(ctx, step.Source)
	if err != nil {
		return infraFailure("verify-traffic", step.Source, err)
	}
	dest, err := r.privateAddress(step.Target)
	if err != nil {
		return infraFailure("verify-traffic", step.Target, err)
	}

	exps := make([]traffic.Expectation, 0, len(step.Expect))
	for _, spec := range step.Expect {
		outcome, err := traffic.ParseOutcome(spec.Outcome)
		if err != nil {
			return infraFailure("verify-traffic", step.Target, err)
		}
		exps = append(exps, traffic.Expectation{Protocol: spec.Protocol, Port: spec.Port, Outcome: outcome})
	}

	checks, err := traffic.Assert(ctx, client, dest, exps, r.Env.Config.Timeouts.TrafficProbe)
	if err != nil {
		return infraFailure("verify-traffic", step.Source, err)
	}

	res := &StepResult{Status: StepStatusPassed, Target: step.Target}
	var failed []string
	for _, c := range checks {
		d := TargetResult{Target: fmt.Sprintf("%s->%s:%d", step.Source, step.Target, c.Port), Status: StepStatusPassed, Message: c.String()}
		if !c.Passed {
			d.Status = StepStatusFailed
			failed = append(failed, c.String())
		}
		res.Details = append(res.Details, d)
	}
	if !traffic.AllPassed(checks) {
		res.Status = StepStatusFailed
		res.Message = strings.Join(failed, "; ")
		return res
	}
	res.Message = fmt.Sprintf("%d traffic expectations met from %s to %s (%s)", len(checks), step.Source, step.Target, dest)
	return res
}

// privateAddress returns the tenant address of a target, which is what
// the classifiers match on. VNF targets fall back to their floating IP.
func (r *Runner) privateAddress(target string) (string, error) {
	if target != TargetClient && target != TargetServer {
		return r.address(target)
	}
	inst, ok := r.state.instances[target]
	if !ok {
		found, err := r.Env.Cloud.FindInstance(target)
		if err != nil {
			return "", err
		}
		r.state.instances[target] = found
		inst = found
	}
	if len(inst.FixedIPs) == 0 {
		return "", fmt.Errorf("%s has no fixed IP: %w", target, util.ErrNotFound)
	}
	return inst.FixedIPs[0], nil
}
