package scenario

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/newtron-network/sfctest/pkg/config"
	"github.com/newtron-network/sfctest/pkg/deployment"
	"github.com/newtron-network/sfctest/pkg/odl"
	"github.com/newtron-network/sfctest/pkg/openstack"
	"github.com/newtron-network/sfctest/pkg/openstack/tacker"
	"github.com/newtron-network/sfctest/pkg/ovs"
	"github.com/newtron-network/sfctest/pkg/remote"
	"github.com/newtron-network/sfctest/pkg/traffic"
	"github.com/newtron-network/sfctest/pkg/util"
)

// ============================================================================
// Fakes
// ============================================================================

type fakeCloud struct {
	mu          sync.Mutex
	zones       []string
	instances   map[string]*openstack.Instance
	secured     []string
	floating    map[string]string // server id -> ip
	nextIP      int
	created     []openstack.InstanceSpec
	createErr   error
	flavorCalls int
}

func newFakeCloud() *fakeCloud {
	return &fakeCloud{
		zones:     []string{"nova:node-4", "nova:node-5"},
		instances: map[string]*openstack.Instance{},
		floating:  map[string]string{},
	}
}

func (c *fakeCloud) GetOrCreateFlavor(f config.Flavor) (string, error) {
	c.flavorCalls++
	return "flavor-1", nil
}

func (c *fakeCloud) CreateImage(img config.Image) (string, error)  { return "image-1", nil }
func (c *fakeCloud) SetupNetwork(n config.Network) (string, error) { return "net-1", nil }

func (c *fakeCloud) CreateSecurityGroup(sg config.SecurityGroup) (string, error) {
	return "sg-1", nil
}

func (c *fakeCloud) CreateInstance(spec openstack.InstanceSpec, timeout, interval time.Duration) (*openstack.Instance, error) {
	if c.createErr != nil {
		return nil, c.createErr
	}
	c.created = append(c.created, spec)
	ip := "11.0.0.10"
	if spec.Name == TargetServer {
		ip = "11.0.0.20"
	}
	inst := &openstack.Instance{ID: spec.Name + "-id", Name: spec.Name, Status: "ACTIVE", FixedIPs: []string{ip}}
	c.instances[spec.Name] = inst
	return inst, nil
}

func (c *fakeCloud) ListInstances() ([]openstack.Instance, error) {
	out := []openstack.Instance{
		{ID: "sf1-id", Name: "ta-testVNF1-VDU1"},
		{ID: "sf2-id", Name: "ta-testVNF2-VDU1"},
	}
	for _, inst := range c.instances {
		out = append(out, *inst)
	}
	return out, nil
}

func (c *fakeCloud) FindInstance(name string) (*openstack.Instance, error) {
	if inst, ok := c.instances[name]; ok {
		return inst, nil
	}
	return nil, fmt.Errorf("instance %s: %w", name, util.ErrNotFound)
}

func (c *fakeCloud) AddSecurityGroup(serverID, group string) error {
	c.secured = append(c.secured, serverID)
	return nil
}

func (c *fakeCloud) AssignFloatingIP(serverID, externalNetwork string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ip, ok := c.floating[serverID]; ok {
		return ip, nil
	}
	c.nextIP++
	ip := fmt.Sprintf("172.16.0.%d", c.nextIP)
	c.floating[serverID] = ip
	return ip, nil
}

func (c *fakeCloud) AvailabilityZones() ([]string, error) { return c.zones, nil }

type fakeOrchestrator struct {
	vnfs        map[string]string
	chains      []tacker.SFC
	classifiers []tacker.Classifier
	zones       map[string]string
	broken      map[string]bool // VNFs that end in ERROR
	deleted     []string
}

func newFakeOrchestrator() *fakeOrchestrator {
	return &fakeOrchestrator{vnfs: map[string]string{}, zones: map[string]string{}}
}

func (o *fakeOrchestrator) CreateVNFD(name, templatePath string) (*tacker.VNFD, error) {
	return &tacker.VNFD{ID: name + "-id", Name: name}, nil
}

func (o *fakeOrchestrator) CreateVNF(name, vnfdName, paramsFile, zone string) (*tacker.VNF, error) {
	o.vnfs[name] = name + "-id"
	o.zones[name] = zone
	return &tacker.VNF{ID: name + "-id", Name: name, Status: "PENDING_CREATE"}, nil
}

func (o *fakeOrchestrator) WaitForVNF(name string, timeout, interval time.Duration) (string, error) {
	id, ok := o.vnfs[name]
	if !ok {
		return "", fmt.Errorf("vnf %s: %w", name, util.ErrNotFound)
	}
	if o.broken[name] {
		return "", fmt.Errorf("vnf %s in ERROR: %w", name, util.ErrNotReady)
	}
	return id, nil
}

func (o *fakeOrchestrator) DeleteVNF(id string) error {
	o.deleted = append(o.deleted, id)
	return nil
}

func (o *fakeOrchestrator) VNFResourceID(vnfID, resource string) (string, error) {
	return strings.TrimSuffix(vnfID, "-id") + "-" + resource, nil
}

func (o *fakeOrchestrator) CreateSFC(name string, vnfNames []string, symmetrical bool) (*tacker.SFC, error) {
	sfc := tacker.SFC{ID: name + "-id", Name: name, Chain: vnfNames, Symmetrical: symmetrical}
	o.chains = append(o.chains, sfc)
	return &sfc, nil
}

func (o *fakeOrchestrator) CreateClassifier(name, sfcName string, match tacker.Match) (*tacker.Classifier, error) {
	c := tacker.Classifier{ID: name + "-id", Name: name, Chain: sfcName, Match: match}
	o.classifiers = append(o.classifiers, c)
	return &c, nil
}

func (o *fakeOrchestrator) ListSFCs() ([]tacker.SFC, error)               { return o.chains, nil }
func (o *fakeOrchestrator) ListClassifiers() ([]tacker.Classifier, error) { return o.classifiers, nil }

type fakeController struct {
	paths []odl.RenderedServicePath
	err   error
}

func (c *fakeController) ListRenderedServicePaths(context.Context) ([]odl.RenderedServicePath, error) {
	return c.paths, c.err
}

func (c *fakeController) PathIDs(ctx context.Context) (map[string]uint32, map[string]uint32, error) {
	if c.err != nil {
		return nil, nil, c.err
	}
	forward, reverse := odl.ChainPathIDs(c.paths)
	return forward, reverse, nil
}

type fakeEndpoint struct {
	*remote.Fake
	closed bool
}

func (e *fakeEndpoint) Close() error {
	e.closed = true
	return nil
}

// ============================================================================
// Harness
// ============================================================================

const dumpTable11 = "ovs-ofctl -O OpenFlow13 dump-flows br-int table=11"

func classifierLine(port int, nsp uint32) string {
	return fmt.Sprintf(" cookie=0x0, duration=1.0s, table=11, n_packets=0, n_bytes=0, priority=1000,tcp,reg0=0x1,tp_dst=%d actions=load:%#x->NXM_NX_NSP[0..23],load:0xff->NXM_NX_NSI[],resubmit(,12)", port, nsp)
}

type harness struct {
	env       *Environment
	cloud     *fakeCloud
	orch      *fakeOrchestrator
	ctrl      *fakeController
	computes  []*remote.Fake
	local     *remote.Fake
	endpoints map[string]*fakeEndpoint // by floating IP
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := config.Default()
	cfg.Timeouts.PollInterval = 5 * time.Millisecond
	cfg.Timeouts.Convergence = 200 * time.Millisecond
	cfg.Timeouts.PingRetries = 3
	cfg.Timeouts.PingInterval = time.Millisecond
	cfg.Timeouts.SSHRetries = 2
	cfg.Timeouts.TrafficProbe = time.Second
	cfg.TopologySeed = 0

	h := &harness{
		cloud: newFakeCloud(),
		orch:  newFakeOrchestrator(),
		ctrl: &fakeController{paths: []odl.RenderedServicePath{
			{Name: "red-Path-1", PathID: 0x27},
			{Name: "red-Path-1-Reverse", PathID: 0x28},
		}},
		local:     remote.NewFake("local"),
		endpoints: map[string]*fakeEndpoint{},
	}

	nodes := []*deployment.Node{
		{Name: "node-1", Roles: []string{deployment.RoleController}, User: "root", Host: remote.NewFake("node-1")},
	}
	for _, name := range []string{"node-4", "node-5"} {
		f := remote.NewFake(name)
		h.computes = append(h.computes, f)
		nodes = append(nodes, &deployment.Node{Name: name, Roles: []string{deployment.RoleCompute}, User: "root", Host: f})
	}

	prober := traffic.NewProber(h.local)
	prober.Sleep = func(time.Duration) {}

	h.env = &Environment{
		Config:       cfg,
		Nodes:        nodes,
		Cloud:        h.cloud,
		Orchestrator: h.orch,
		Controller:   h.ctrl,
		Prober:       prober,
		Dial: func(addr string) (traffic.Endpoint, error) {
			ep, ok := h.endpoints[addr]
			if !ok {
				ep = &fakeEndpoint{Fake: remote.NewFake(addr)}
				h.endpoints[addr] = ep
			}
			return ep, nil
		},
		OVSLog: ovs.NewLogger(filepath.Join(t.TempDir(), "ovs"), filepath.Join(t.TempDir(), "results")),
	}
	return h
}

// converged makes every compute node report the red_http rule.
func (h *harness) converged() {
	for _, f := range h.computes {
		f.On(dumpTable11, classifierLine(80, 0x27)+"\n", 0)
	}
}

func (h *harness) runner(s *Scenario) *Runner {
	r := NewRunner("", h.env)
	r.state = newRunState()
	r.scenario = s
	return r
}

func runSteps(t *testing.T, h *harness, steps ...Step) *ScenarioResult {
	t.Helper()
	s := &Scenario{Name: "test", VNFs: []string{"testVNF1", "testVNF2"}, Steps: steps}
	applyDefaults(s)
	if err := s.validate(); err != nil {
		t.Fatalf("invalid test scenario: %v", err)
	}
	return h.runner(s).RunScenario(context.Background(), s)
}

func stepStatuses(res *ScenarioResult) []StepStatus {
	var out []StepStatus
	for _, s := range res.Steps {
		out = append(out, s.Status)
	}
	return out
}

// ============================================================================
// Step tests
// ============================================================================

func TestCreateInstance_UsesPlacement(t *testing.T) {
	h := newHarness(t)
	res := runSteps(t, h,
		Step{Action: ActionCreateInstance, Instance: TargetClient},
		Step{Action: ActionCreateInstance, Instance: TargetServer},
	)
	if res.Status != StepStatusPassed {
		t.Fatalf("status = %s: %+v", res.Status, res.Steps)
	}
	if h.cloud.flavorCalls != 1 {
		t.Errorf("flavor looked up %d times, want 1", h.cloud.flavorCalls)
	}
	// Seed 0 is CLIENT_VNF_SAME_HOST: client on the first zone, server on
	// the second.
	want := []openstack.InstanceSpec{
		{Name: "client", FlavorID: "flavor-1", ImageID: "image-1", NetworkID: "net-1", SecurityGroup: "example-sg", Zone: "nova:node-4"},
		{Name: "server", FlavorID: "flavor-1", ImageID: "image-1", NetworkID: "net-1", SecurityGroup: "example-sg", Zone: "nova:node-5"},
	}
	if diff := cmp.Diff(want, h.cloud.created); diff != "" {
		t.Errorf("instances (-want +got):\n%s", diff)
	}
	if res.Topology != "CLIENT_VNF_SAME_HOST" {
		t.Errorf("topology = %q", res.Topology)
	}
}

func TestCreateInstance_InfraError(t *testing.T) {
	h := newHarness(t)
	h.cloud.createErr = fmt.Errorf("quota exceeded")
	res := runSteps(t, h,
		Step{Action: ActionCreateInstance, Instance: TargetClient},
		Step{Action: ActionCreateInstance, Instance: TargetServer},
	)
	if res.Status != StepStatusError {
		t.Fatalf("status = %s, want ERROR", res.Status)
	}
	if len(res.Steps) != 1 {
		t.Errorf("ran %d steps after an error, want 1", len(res.Steps))
	}
	var ie *InfraError
	if !errors.As(res.SetupError, &ie) || ie.Op != "create-instance" || ie.Target != "client" {
		t.Errorf("SetupError = %v", res.SetupError)
	}
	if res.Artifacts == "" {
		t.Error("expected OVS log archive on error")
	}
}

func TestVNFChainClassifier(t *testing.T) {
	h := newHarness(t)
	res := runSteps(t, h,
		Step{Action: ActionCreateVNFD, VNFD: "test-vnfd1", Template: "test-vnfd1.yaml"},
		Step{Action: ActionCreateVNF, VNF: "testVNF1", VNFD: "test-vnfd1"},
		Step{Action: ActionCreateVNF, VNF: "testVNF2", VNFD: "test-vnfd1"},
		Step{Action: ActionWaitVNF, VNFs: []string{"testVNF1", "testVNF2"}},
		Step{Action: ActionSecureSFs},
		Step{Action: ActionCreateChain, Chain: "red", VNFs: []string{"testVNF1"}},
		Step{Action: ActionCreateClassifier, Classifier: "red_http", Chain: "red", Match: &MatchSpec{DestPort: 80}},
	)
	if res.Status != StepStatusPassed {
		t.Fatalf("status = %s: %+v", res.Status, res.Steps)
	}
	if diff := cmp.Diff(map[string]string{"testVNF1": "nova:node-4", "testVNF2": "nova:node-4"}, h.orch.zones); diff != "" {
		t.Errorf("VNF zones (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"sf1-id", "sf2-id"}, h.cloud.secured); diff != "" {
		t.Errorf("secured (-want +got):\n%s", diff)
	}
	want := tacker.Match{DestPort: 80, Protocol: 6}
	if len(h.orch.classifiers) != 1 || h.orch.classifiers[0].Match != want {
		t.Errorf("classifiers = %+v", h.orch.classifiers)
	}
}

func TestWaitVNF_ErrorDeletesVNF(t *testing.T) {
	h := newHarness(t)
	h.orch.broken = map[string]bool{"testVNF2": true}
	res := runSteps(t, h,
		Step{Action: ActionCreateVNF, VNF: "testVNF1", VNFD: "test-vnfd1"},
		Step{Action: ActionCreateVNF, VNF: "testVNF2", VNFD: "test-vnfd1"},
		Step{Action: ActionWaitVNF, VNFs: []string{"testVNF1", "testVNF2"}},
	)
	if res.Status != StepStatusError || !errors.Is(res.Steps[2].Err, util.ErrNotReady) {
		t.Fatalf("got %s %v", res.Status, res.Steps[2].Err)
	}
	if diff := cmp.Diff([]string{"testVNF2-id"}, h.orch.deleted); diff != "" {
		t.Errorf("deleted (-want +got):\n%s", diff)
	}
}

func TestWaitVNF_NotFoundDeletesNothing(t *testing.T) {
	h := newHarness(t)
	res := runSteps(t, h, Step{Action: ActionWaitVNF, VNFs: []string{"testVNF1"}})
	if res.Status != StepStatusError {
		t.Fatalf("status = %s", res.Status)
	}
	if len(h.orch.deleted) != 0 {
		t.Errorf("deleted = %v", h.orch.deleted)
	}
}

func TestConvergence_Converged(t *testing.T) {
	h := newHarness(t)
	h.converged()
	res := runSteps(t, h,
		Step{Action: ActionCreateClassifier, Classifier: "red_http", Chain: "red", Match: &MatchSpec{DestPort: 80}},
		Step{Action: ActionStartConvergenceWatch},
		Step{Action: ActionWaitConvergence},
	)
	if diff := cmp.Diff([]StepStatus{StepStatusPassed, StepStatusPassed, StepStatusPassed}, stepStatuses(res)); diff != "" {
		t.Fatalf("statuses (-want +got):\n%s\n%+v", diff, res.Steps)
	}
	if !strings.Contains(res.Steps[2].Message, "converged") {
		t.Errorf("message = %q", res.Steps[2].Message)
	}
}

func TestConvergence_ReverseClassifier(t *testing.T) {
	h := newHarness(t)
	for _, f := range h.computes {
		f.On(dumpTable11, classifierLine(80, 0x27)+"\n"+ovs.ReverseClassifierFlow(11, 80, 0x28)+"\n", 0)
	}
	res := runSteps(t, h,
		Step{Action: ActionCreateClassifier, Classifier: "red_http", Chain: "red", Match: &MatchSpec{DestPort: 80}},
		Step{Action: ActionCreateClassifier, Classifier: "red_http_reverse", Chain: "red", Match: &MatchSpec{SourcePort: 80}},
		Step{Action: ActionStartConvergenceWatch},
		Step{Action: ActionWaitConvergence},
	)
	if got := res.Steps[3]; got.Status != StepStatusPassed {
		t.Fatalf("wait-convergence = %s: %s", got.Status, got.Message)
	}
}

func TestConvergence_TimeoutIsWarning(t *testing.T) {
	h := newHarness(t)
	// node-5 never gets the rule
	h.computes[0].On(dumpTable11, classifierLine(80, 0x27)+"\n", 0)
	res := runSteps(t, h,
		Step{Action: ActionStartConvergenceWatch, Timeout: 30 * time.Millisecond,
			Rules: []RuleSpec{{Classifier: "red_http", Chain: "red", DestPort: 80}}},
		Step{Action: ActionWait, Duration: time.Millisecond},
		Step{Action: ActionWaitConvergence},
		Step{Action: ActionWait, Duration: time.Millisecond},
	)
	if res.Status != StepStatusPassed {
		t.Fatalf("status = %s, want PASS with a warning", res.Status)
	}
	warn := res.Steps[2]
	if warn.Status != StepStatusWarn {
		t.Fatalf("wait-convergence = %s", warn.Status)
	}
	if len(warn.Details) != 1 || warn.Details[0].Target != "node-5" {
		t.Errorf("details = %+v", warn.Details)
	}
	if len(res.Steps) != 4 {
		t.Errorf("a warning must not stop the scenario: ran %d steps", len(res.Steps))
	}
}

func TestWaitConvergence_NoWatch(t *testing.T) {
	h := newHarness(t)
	res := runSteps(t, h, Step{Action: ActionWaitConvergence})
	if res.Steps[0].Status != StepStatusSkipped || res.Status != StepStatusPassed {
		t.Errorf("got step %s scenario %s", res.Steps[0].Status, res.Status)
	}
}

func TestReachableAndSSH(t *testing.T) {
	h := newHarness(t)
	h.cloud.instances["client"] = &openstack.Instance{ID: "client-id", Name: "client", FixedIPs: []string{"11.0.0.10"}, FloatingIPs: []string{"172.16.1.10"}}
	h.orch.vnfs["testVNF1"] = "testVNF1-id"

	res := runSteps(t, h,
		Step{Action: ActionAssignFloatingIPs, Targets: []string{"client", "testVNF1"}},
		Step{Action: ActionVerifyReachable, Targets: []string{"client", "testVNF1"}},
		Step{Action: ActionVerifySSH, Targets: []string{"testVNF1"}},
		Step{Action: ActionStartFirewall, Target: "testVNF1", Port: 80},
	)
	if res.Status != StepStatusPassed {
		t.Fatalf("status = %s: %+v", res.Status, res.Steps)
	}
	if got := h.cloud.floating["testVNF1-VDU1"]; got != "172.16.0.1" {
		t.Errorf("VNF floating IP = %q", got)
	}
	if n := h.local.Count("ping -c 1 -W 1 172.16.1.10"); n != 1 {
		t.Errorf("pinged client %d times", n)
	}
	sf := h.endpoints["172.16.0.1"]
	if sf == nil {
		t.Fatal("no SSH session to the VNF")
	}
	if sf.Count("sh -c 'cd /root; nohup python vxlan_tool.py -i eth0 -d forward -v off -b 80") != 1 {
		t.Errorf("firewall not started: %v", sf.Commands())
	}
}

func TestVerifyReachable_Unreachable(t *testing.T) {
	h := newHarness(t)
	h.orch.vnfs["testVNF1"] = "testVNF1-id"
	h.local.OnFailure("ping", "", 1)
	res := runSteps(t, h, Step{Action: ActionVerifyReachable, Targets: []string{"testVNF1"}})
	if res.Status != StepStatusError {
		t.Fatalf("status = %s, want ERROR", res.Status)
	}
	if !errors.Is(res.Steps[0].Err, util.ErrUnreachable) {
		t.Errorf("err = %v, want ErrUnreachable", res.Steps[0].Err)
	}
	if n := h.local.Count("ping"); n != 3 {
		t.Errorf("pinged %d times, want 3", n)
	}
}

func TestInstallReverseFlows(t *testing.T) {
	h := newHarness(t)
	res := runSteps(t, h, Step{Action: ActionInstallReverseFlows, Chain: "red", Port: 80})
	if res.Status != StepStatusPassed {
		t.Fatalf("status = %s: %+v", res.Status, res.Steps)
	}
	want := "ovs-ofctl -O OpenFlow13 add-flow br-int 'table=11,priority=1000,tcp,tp_src=80,actions=load:0x28->NXM_NX_NSP[0..23],resubmit(,12)'"
	for _, f := range h.computes {
		if diff := cmp.Diff([]string{want}, f.Commands()); diff != "" {
			t.Errorf("%s commands (-want +got):\n%s", f.Name(), diff)
		}
	}
}

func TestInstallReverseFlows_NoReversePath(t *testing.T) {
	h := newHarness(t)
	h.ctrl.paths = []odl.RenderedServicePath{{Name: "red-Path-1", PathID: 0x27}}
	res := runSteps(t, h, Step{Action: ActionInstallReverseFlows, Chain: "red", Port: 80})
	if res.Status != StepStatusError || !errors.Is(res.Steps[0].Err, odl.ErrNoReversePath) {
		t.Errorf("got %s %v", res.Status, res.Steps[0].Err)
	}
}

func TestDumpClassifierFlows_NeverFails(t *testing.T) {
	h := newHarness(t)
	h.computes[0].On(dumpTable11, classifierLine(80, 0x27)+"\n"+classifierLine(22, 0x29)+"\n"+ovs.ReverseClassifierFlow(11, 80, 0x28)+"\n", 0)
	h.computes[1].OnError(dumpTable11, errors.New("connection reset"))
	res := runSteps(t, h, Step{Action: ActionDumpClassifierFlows})
	if res.Status != StepStatusPassed {
		t.Fatalf("status = %s", res.Status)
	}
	d := res.Steps[0].Details
	if len(d) != 2 || d[0].Message != "tp_dst=80 nsp=0x27; tp_dst=22 nsp=0x29; tp_src=80 nsp=0x28" || d[1].Status != StepStatusWarn {
		t.Errorf("details = %+v", d)
	}
}

func trafficHarness(t *testing.T) (*harness, *fakeEndpoint) {
	h := newHarness(t)
	h.cloud.instances["client"] = &openstack.Instance{ID: "client-id", Name: "client", FixedIPs: []string{"11.0.0.10"}, FloatingIPs: []string{"172.16.1.10"}}
	h.cloud.instances["server"] = &openstack.Instance{ID: "server-id", Name: "server", FixedIPs: []string{"11.0.0.20"}, FloatingIPs: []string{"172.16.1.20"}}
	client := &fakeEndpoint{Fake: remote.NewFake("client")}
	h.endpoints["172.16.1.10"] = client
	return h, client
}

func TestVerifyTraffic(t *testing.T) {
	h, client := trafficHarness(t)
	client.OnFailure("curl -s -o /dev/null --connect-timeout 1 -m 1 http://11.0.0.20:80/", "", 28)

	res := runSteps(t, h, Step{Action: ActionVerifyTraffic, Source: "client", Target: "server",
		Expect: []TrafficSpec{{Port: 80, Outcome: "blocked"}, {Port: 22, Outcome: "accepted"}}})
	if res.Status != StepStatusPassed {
		t.Fatalf("status = %s: %+v", res.Status, res.Steps)
	}
	if len(res.Steps[0].Details) != 2 {
		t.Errorf("details = %+v", res.Steps[0].Details)
	}
}

func TestVerifyTraffic_Mismatch(t *testing.T) {
	h, _ := trafficHarness(t)
	// Every connection succeeds, so the firewall is not doing its job.
	res := runSteps(t, h,
		Step{Action: ActionVerifyTraffic, Source: "client", Target: "server",
			Expect: []TrafficSpec{{Port: 80, Outcome: "blocked"}}},
		Step{Action: ActionWait, Duration: time.Millisecond},
	)
	if res.Status != StepStatusFailed {
		t.Fatalf("status = %s, want FAIL", res.Status)
	}
	if len(res.Steps) != 1 {
		t.Errorf("steps after a failure ran: %d", len(res.Steps))
	}
	if !strings.Contains(res.Steps[0].Message, "expected dropped, got accepted") {
		t.Errorf("message = %q", res.Steps[0].Message)
	}
	if res.Artifacts == "" {
		t.Error("expected OVS logs on failure")
	} else if _, err := os.Stat(res.Artifacts); err != nil {
		t.Errorf("archive: %v", err)
	}
}

func TestWait_Interrupted(t *testing.T) {
	h := newHarness(t)
	s := &Scenario{Name: "w", Steps: []Step{{Name: "wait", Action: ActionWait, Duration: time.Hour}}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := h.runner(s).RunScenario(ctx, s)
	if res.Status != StepStatusError {
		t.Errorf("status = %s, want ERROR", res.Status)
	}
}

// ============================================================================
// Runner tests
// ============================================================================

func TestRun_RequiresSkip(t *testing.T) {
	h := newHarness(t)
	h.cloud.createErr = errors.New("no valid host")
	dir := t.TempDir()
	writeScenario(t, dir, "create-endpoints.yaml", "steps:\n  - action: create-instance\n    instance: client\n")
	writeScenario(t, dir, "basic.yaml", "requires: [create-endpoints]\nsteps:\n  - action: wait\n    duration: 1ms\n")

	var buf bytes.Buffer
	r := NewRunner(dir, h.env)
	r.Progress = &ConsoleProgress{W: &buf}
	results, err := r.Run(context.Background(), RunOptions{All: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results", len(results))
	}
	if results[0].Status != StepStatusError {
		t.Errorf("create-endpoints = %s", results[0].Status)
	}
	if results[1].Status != StepStatusSkipped || !strings.Contains(results[1].SkipReason, "errored") {
		t.Errorf("basic = %s (%s)", results[1].Status, results[1].SkipReason)
	}
	if ExitCode(results) != ExitInfra {
		t.Errorf("exit code = %d, want %d", ExitCode(results), ExitInfra)
	}
	out := buf.String()
	for _, want := range []string{"sfctest: 2 scenarios", "FAILED:", "SKIPPED:", "requires 'create-endpoints' which errored"} {
		if !strings.Contains(out, want) {
			t.Errorf("progress output missing %q:\n%s", want, out)
		}
	}
}

func TestRun_StateSharedAcrossScenarios(t *testing.T) {
	h := newHarness(t)
	dir := t.TempDir()
	writeScenario(t, dir, "create-endpoints.yaml", `
steps:
  - action: create-instance
    instance: client
  - action: create-instance
    instance: server
`)
	writeScenario(t, dir, "basic.yaml", `
requires: [create-endpoints]
steps:
  - action: assign-floating-ips
    targets: [client, server]
`)
	r := NewRunner(dir, h.env)
	results, err := r.Run(context.Background(), RunOptions{All: true})
	if err != nil {
		t.Fatal(err)
	}
	if ExitCode(results) != ExitPassed {
		t.Fatalf("results: %+v %+v", results[0], results[1])
	}
	if len(h.cloud.floating) != 2 {
		t.Errorf("floating IPs: %v", h.cloud.floating)
	}
	if results[1].Topology != results[0].Topology || results[0].Topology == "" {
		t.Errorf("topology changed between scenarios: %q %q", results[0].Topology, results[1].Topology)
	}
}

func TestRun_NoSelection(t *testing.T) {
	r := NewRunner(t.TempDir(), &Environment{})
	if _, err := r.Run(context.Background(), RunOptions{}); err == nil {
		t.Error("expected error without --scenario or --all")
	}
}

func TestOverallStatus(t *testing.T) {
	cases := []struct {
		statuses []StepStatus
		want     StepStatus
	}{
		{[]StepStatus{StepStatusPassed, StepStatusWarn}, StepStatusPassed},
		{[]StepStatus{StepStatusPassed, StepStatusSkipped}, StepStatusPassed},
		{[]StepStatus{StepStatusError}, StepStatusError},
		{[]StepStatus{StepStatusError, StepStatusFailed}, StepStatusFailed},
		{nil, StepStatusPassed},
	}
	for _, c := range cases {
		var steps []StepResult
		for _, s := range c.statuses {
			steps = append(steps, StepResult{Status: s})
		}
		if got := overallStatus(steps); got != c.want {
			t.Errorf("overallStatus(%v) = %s, want %s", c.statuses, got, c.want)
		}
	}
}
