package scenario

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/newtron-network/sfctest/pkg/deployment"
	"github.com/newtron-network/sfctest/pkg/openstack"
	"github.com/newtron-network/sfctest/pkg/openstack/tacker"
	"github.com/newtron-network/sfctest/pkg/util"
	"github.com/newtron-network/sfctest/pkg/verify"
)

// stepExecutor executes a single step and returns its result.
type stepExecutor interface {
	Execute(ctx context.Context, r *Runner, step *Step) *StepResult
}

// executors maps each StepAction to its executor implementation.
var executors = map[StepAction]stepExecutor{
	ActionSetupComputeNodes:     &setupComputeNodesExecutor{},
	ActionConfigureIptables:     &configureIptablesExecutor{},
	ActionDownloadImage:         &downloadImageExecutor{},
	ActionCreateFlavor:          &createFlavorExecutor{},
	ActionCreateImage:           &createImageExecutor{},
	ActionSetupNetwork:          &setupNetworkExecutor{},
	ActionCreateSecurityGroup:   &createSecurityGroupExecutor{},
	ActionCreateInstance:        &createInstanceExecutor{},
	ActionCreateVNFD:            &createVNFDExecutor{},
	ActionCreateVNF:             &createVNFExecutor{},
	ActionWaitVNF:               &waitVNFExecutor{},
	ActionSecureSFs:             &secureSFsExecutor{},
	ActionCreateChain:           &createChainExecutor{},
	ActionCreateClassifier:      &createClassifierExecutor{},
	ActionStartConvergenceWatch: &startConvergenceWatchExecutor{},
	ActionAssignFloatingIPs:     &assignFloatingIPsExecutor{},
	ActionVerifyReachable:       &verifyReachableExecutor{},
	ActionVerifySSH:             &verifySSHExecutor{},
	ActionStartHTTPServer:       &startHTTPServerExecutor{},
	ActionStartFirewall:         &startFirewallExecutor{},
	ActionWaitConvergence:       &waitConvergenceExecutor{},
	ActionInstallReverseFlows:   &installReverseFlowsExecutor{},
	ActionDumpClassifierFlows:   &dumpClassifierFlowsExecutor{},
	ActionVerifyTraffic:         &verifyTrafficExecutor{},
	ActionWait:                  &waitExecutor{},
}

func passed(format string, args ...any) *StepResult {
	return &StepResult{Status: StepStatusPassed, Message: fmt.Sprintf(format, args...)}
}

// infraFailure is the result of a setup step that could not complete.
func infraFailure(op, target string, err error) *StepResult {
	ie := &InfraError{Op: op, Target: target, Err: err}
	return &StepResult{Status: StepStatusError, Target: target, Message: ie.Error(), Err: ie}
}

// ============================================================================
// Node preparation
// ============================================================================

type setupComputeNodesExecutor struct{}

func (e *setupComputeNodesExecutor) Execute(ctx context.Context, r *Runner, step *Step) *StepResult {
	computes := r.Env.Computes()
	if len(computes) == 0 {
		return infraFailure("setup-compute-nodes", "", fmt.Errorf("no compute nodes: %w", util.ErrNotFound))
	}
	cidr := step.CIDR
	if cidr == "" {
		cidr = r.Env.Config.Network.CIDR
	}
	if err := deployment.SetupComputeNodes(ctx, computes, cidr); err != nil {
		return infraFailure("setup-compute-nodes", "", err)
	}
	return passed("%d compute nodes route %s via br-int", len(computes), cidr)
}

type configureIptablesExecutor struct{}

func (e *configureIptablesExecutor) Execute(ctx context.Context, r *Runner, step *Step) *StepResult {
	controllers := r.Env.Controllers()
	if len(controllers) == 0 {
		return infraFailure("configure-iptables", "", fmt.Errorf("no controller nodes: %w", util.ErrNotFound))
	}
	if err := deployment.ConfigureIptables(ctx, controllers); err != nil {
		return infraFailure("configure-iptables", "", err)
	}
	return passed("iptables configured on %d controllers", len(controllers))
}

// ============================================================================
// OpenStack objects
// ============================================================================

type downloadImageExecutor struct{}

func (e *downloadImageExecutor) Execute(ctx context.Context, r *Runner, step *Step) *StepResult {
	img := r.Env.Config.Image
	if err := openstack.DownloadImage(ctx, img); err != nil {
		return infraFailure("download-image", img.File, err)
	}
	return passed("image at %s", img.Path())
}

type createFlavorExecutor struct{}

func (e *createFlavorExecutor) Execute(ctx context.Context, r *Runner, step *Step) *StepResult {
	f := r.Env.Config.Flavor
	id, err := r.Env.Cloud.GetOrCreateFlavor(f)
	if err != nil {
		return infraFailure("create-flavor", f.Name, err)
	}
	r.state.flavorID = id
	return passed("flavor %s (%s)", f.Name, id)
}

type createImageExecutor struct{}

func (e *createImageExecutor) Execute(ctx context.Context, r *Runner, step *Step) *StepResult {
	img := r.Env.Config.Image
	id, err := r.Env.Cloud.CreateImage(img)
	if err != nil {
		return infraFailure("create-image", img.Name, err)
	}
	r.state.imageID = id
	return passed("image %s (%s)", img.Name, id)
}

type setupNetworkExecutor struct{}

func (e *setupNetworkExecutor) Execute(ctx context.Context, r *Runner, step *Step) *StepResult {
	n := r.Env.Config.Network
	id, err := r.Env.Cloud.SetupNetwork(n)
	if err != nil {
		return infraFailure("setup-network", n.Name, err)
	}
	r.state.networkID = id
	return passed("network %s (%s) %s", n.Name, id, n.CIDR)
}

type createSecurityGroupExecutor struct{}

func (e *createSecurityGroupExecutor) Execute(ctx context.Context, r *Runner, step *Step) *StepResult {
	sg := r.Env.Config.SecurityGroup
	id, err := r.Env.Cloud.CreateSecurityGroup(sg)
	if err != nil {
		return infraFailure("create-security-group", sg.Name, err)
	}
	return passed("security group %s (%s)", sg.Name, id)
}

type createInstanceExecutor struct{}

func (e *createInstanceExecutor) Execute(ctx context.Context, r *Runner, step *Step) *StepResult {
	if err := r.ensureBaseObjects(); err != nil {
		return infraFailure("create-instance", step.Instance, err)
	}
	a, err := r.placement()
	if err != nil {
		return infraFailure("create-instance", step.Instance, err)
	}
	cfg := r.Env.Config
	inst, err := r.Env.Cloud.CreateInstance(openstack.InstanceSpec{
		Name:          step.Instance,
		FlavorID:      r.state.flavorID,
		ImageID:       r.state.imageID,
		NetworkID:     r.state.networkID,
		SecurityGroup: cfg.SecurityGroup.Name,
		Zone:          a.Zone(step.Instance),
	}, cfg.Timeouts.Instance, r.pollInterval())
	if err != nil {
		return infraFailure("create-instance", step.Instance, err)
	}
	r.state.instances[step.Instance] = inst
	res := passed("%s %s in %q, ip %s", inst.Name, inst.ID, a.Zone(step.Instance), strings.Join(inst.FixedIPs, ","))
	res.Target = step.Instance
	return res
}

// ensureBaseObjects looks up, or creates, the flavor, image and network
// that instances boot with when the scenario did not create them itself.
func (r *Runner) ensureBaseObjects() error {
	cfg := r.Env.Config
	var err error
	if r.state.flavorID == "" {
		if r.state.flavorID, err = r.Env.Cloud.GetOrCreateFlavor(cfg.Flavor); err != nil {
			return err
		}
	}
	if r.state.imageID == "" {
		if r.state.imageID, err = r.Env.Cloud.CreateImage(cfg.Image); err != nil {
			return err
		}
	}
	if r.state.networkID == "" {
		if r.state.networkID, err = r.Env.Cloud.SetupNetwork(cfg.Network); err != nil {
			return err
		}
	}
	return nil
}

// secureSFsExecutor applies the security group to every instance that is
// not an endpoint, i.e. the VNF servers tacker booted.
type secureSFsExecutor struct{}

func (e *secureSFsExecutor) Execute(ctx context.Context, r *Runner, step *Step) *StepResult {
	group := r.Env.Config.SecurityGroup.Name
	instances, err := r.Env.Cloud.ListInstances()
	if err != nil {
		return infraFailure("secure-sfs", "", err)
	}
	var details []TargetResult
	for _, inst := range instances {
		if strings.Contains(inst.Name, TargetClient) || strings.Contains(inst.Name, TargetServer) {
			continue
		}
		if err := r.Env.Cloud.AddSecurityGroup(inst.ID, group); err != nil {
			return infraFailure("secure-sfs", inst.Name, err)
		}
		details = append(details, TargetResult{Target: inst.Name, Status: StepStatusPassed, Message: group})
	}
	res := passed("%s added to %d service functions", group, len(details))
	res.Details = details
	return res
}

// ============================================================================
// Orchestrator: VNFs, chains, classifiers
// ============================================================================

type createVNFDExecutor struct{}

func (e *createVNFDExecutor) Execute(ctx context.Context, r *Runner, step *Step) *StepResult {
	vnfd, err := r.Env.Orchestrator.CreateVNFD(step.VNFD, r.Env.Config.VNFDTemplate(step.Template))
	if err != nil {
		return infraFailure("create-vnfd", step.VNFD, err)
	}
	return passed("vnfd %s (%s)", vnfd.Name, vnfd.ID)
}

type createVNFExecutor struct{}

func (e *createVNFExecutor) Execute(ctx context.Context, r *Runner, step *Step) *StepResult {
	a, err := r.placement()
	if err != nil {
		return infraFailure("create-vnf", step.VNF, err)
	}
	zone := a.Zone(step.VNF)
	vnf, err := r.Env.Orchestrator.CreateVNF(step.VNF, step.VNFD, r.Env.Config.DefaultParamsFile(), zone)
	if err != nil {
		return infraFailure("create-vnf", step.VNF, err)
	}
	r.state.vnfs[step.VNF] = vnf.ID
	res := passed("vnf %s (%s) from %s in %q", vnf.Name, vnf.ID, step.VNFD, zone)
	res.Target = step.VNF
	return res
}

type waitVNFExecutor struct{}

func (e *waitVNFExecutor) Execute(ctx context.Context, r *Runner, step *Step) *StepResult {
	timeout := step.Timeout
	if timeout <= 0 {
		timeout = r.Env.Config.Timeouts.VNF
	}
	details := make([]TargetResult, 0, len(step.VNFs))
	for _, name := range step.VNFs {
		id, err := r.Env.Orchestrator.WaitForVNF(name, timeout, r.pollInterval())
		if err != nil {
			r.deleteFailedVNF(name, err)
			return infraFailure("wait-vnf", name, err)
		}
		r.state.vnfs[name] = id
		details = append(details, TargetResult{Target: name, Status: StepStatusPassed, Message: "ACTIVE " + id})
	}
	res := passed("%d VNFs active", len(details))
	res.Details = details
	return res
}

// deleteFailedVNF removes a VNF this run created once tacker reports it in
// ERROR, so that a rerun can create it again under the same name.
func (r *Runner) deleteFailedVNF(name string, err error) {
	id, ok := r.state.vnfs[name]
	if !ok || !errors.Is(err, util.ErrNotReady) {
		return
	}
	log := util.WithField("vnf", name)
	if derr := r.Env.Orchestrator.DeleteVNF(id); derr != nil {
		log.Warnf("deleting failed VNF %s: %v", id, derr)
		return
	}
	delete(r.state.vnfs, name)
	log.Infof("Deleted failed VNF %s", id)
}

type createChainExecutor struct{}

func (e *createChainExecutor) Execute(ctx context.Context, r *Runner, step *Step) *StepResult {
	sfc, err := r.Env.Orchestrator.CreateSFC(step.Chain, step.VNFs, step.Symmetrical)
	if err != nil {
		return infraFailure("create-chain", step.Chain, err)
	}
	return passed("chain %s (%s): %s", sfc.Name, sfc.ID, strings.Join(step.VNFs, " -> "))
}

type createClassifierExecutor struct{}

func (e *createClassifierExecutor) Execute(ctx context.Context, r *Runner, step *Step) *StepResult {
	match := tacker.Match{
		SourcePort: step.Match.SourcePort,
		DestPort:   step.Match.DestPort,
		Protocol:   step.Match.Protocol,
	}
	c, err := r.Env.Orchestrator.CreateClassifier(step.Classifier, step.Chain, match)
	if err != nil {
		return infraFailure("create-classifier", step.Classifier, err)
	}
	r.state.classifiers = append(r.state.classifiers, tacker.Classifier{
		ID: c.ID, Name: step.Classifier, Chain: step.Chain, Match: match,
	})
	return passed("classifier %s on %s: src %d dst %d proto %d",
		step.Classifier, step.Chain, match.SourcePort, match.DestPort, match.Protocol)
}

// ============================================================================
// Convergence
// ============================================================================

// startConvergenceWatchExecutor launches the background measurement of how
// long the classification rules take to reach the compute nodes. It is
// joined by wait-convergence.
type startConvergenceWatchExecutor struct{}

func (e *startConvergenceWatchExecutor) Execute(ctx context.Context, r *Runner, step *Step) *StepResult {
	if r.Env.Controller == nil {
		return infraFailure("start-convergence-watch", "", fmt.Errorf("no controller client: %w", util.ErrInvalidConfig))
	}
	r.logOrchestratorState()

	computes := r.Env.Computes()
	nodes := make([]verify.Node, 0, len(computes))
	for _, n := range computes {
		nodes = append(nodes, verify.Node{Name: n.Name, Flows: r.Env.flows(n)})
	}
	exps := r.expectations(step)

	timeout := step.Timeout
	if timeout <= 0 {
		timeout = r.Env.Config.Timeouts.Convergence
	}
	task, err := verify.Start(nodes, r.Env.Controller, exps, verify.Options{
		Table:    step.Table,
		Interval: r.pollInterval(),
		Timeout:  timeout,
	})
	if err != nil {
		return infraFailure("start-convergence-watch", "", err)
	}
	r.state.task = task
	r.state.convergence = nil
	return passed("watching %d classification rules on %d compute nodes (timeout %s)", len(exps), len(nodes), timeout)
}

// expectations converts the step rules, or else the classifiers created so
// far, into verifier expectations.
func (r *Runner) expectations(step *Step) []verify.Expectation {
	var exps []verify.Expectation
	if len(step.Rules) > 0 {
		for _, rule := range step.Rules {
			exps = append(exps, verify.Expectation{
				Classifier: rule.Classifier,
				Chain:      rule.Chain,
				DestPort:   rule.DestPort,
				SourcePort: rule.SourcePort,
				Nodes:      rule.Nodes,
			})
		}
		return exps
	}
	for _, c := range r.state.classifiers {
		exp := verify.Expectation{Classifier: c.Name, Chain: c.Chain, DestPort: c.Match.DestPort}
		if c.Match.DestPort == 0 {
			exp.SourcePort = c.Match.SourcePort
		}
		exps = append(exps, exp)
	}
	return exps
}

// logOrchestratorState logs the chains and classifiers known to tacker.
func (r *Runner) logOrchestratorState() {
	if sfcs, err := r.Env.Orchestrator.ListSFCs(); err == nil {
		for _, s := range sfcs {
			util.WithField("chain", s.Name).Infof("sfc %s status %s chain %v", s.ID, s.Status, s.Chain)
		}
	} else {
		util.Warnf("listing chains: %v", err)
	}
	if cls, err := r.Env.Orchestrator.ListClassifiers(); err == nil {
		for _, c := range cls {
			util.WithField("classifier", c.Name).Infof("classifier %s status %s chain %s", c.ID, c.Status, c.Chain)
		}
	} else {
		util.Warnf("listing classifiers: %v", err)
	}
}

type waitConvergenceExecutor struct{}

func (e *waitConvergenceExecutor) Execute(ctx context.Context, r *Runner, step *Step) *StepResult {
	if r.state.task == nil {
		return &StepResult{Status: StepStatusSkipped, Message: "no convergence watch running"}
	}
	util.Infof("Wait for the controller to update the classification rules in OVS")
	res := r.state.task.Wait()
	r.state.convergence = &res

	if res.Converged {
		return passed("%s", res.Summary())
	}
	out := &StepResult{Status: StepStatusWarn, Message: res.Summary()}
	for _, p := range res.Missing {
		out.Details = append(out.Details, TargetResult{
			Target:  p.Node,
			Status:  StepStatusWarn,
			Message: p.Classifier + ": " + p.Reason,
		})
	}
	return out
}

// ============================================================================
// wait
// ============================================================================

type waitExecutor struct{}

func (e *waitExecutor) Execute(ctx context.Context, r *Runner, step *Step) *StepResult {
	select {
	case <-time.After(step.Duration):
	case <-ctx.Done():
		return &StepResult{Status: StepStatusError, Message: "interrupted", Err: ctx.Err()}
	}
	return passed("%s elapsed", step.Duration)
}
