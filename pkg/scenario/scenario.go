// Package scenario runs SFC test scenarios described in YAML files. A
// scenario is a sequence of steps: provisioning calls against the
// orchestrator, the background convergence measurement, reachability and
// SSH checks, and traffic assertions between endpoints.
package scenario

import (
	"fmt"
	"time"
)

// Scenario is a parsed test scenario.
type Scenario struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	VNFs        []string `yaml:"vnfs,omitempty"` // VNF names used for topology placement
	Requires    []string `yaml:"requires,omitempty"`
	Steps       []Step   `yaml:"steps"`
}

// Step is a single action within a scenario. Fields are action-specific;
// the parser checks that the ones an action needs are set.
type Step struct {
	Name   string     `yaml:"name"`
	Action StepAction `yaml:"action"`

	// setup-compute-nodes
	CIDR string `yaml:"cidr,omitempty"`

	// create-instance
	Instance string `yaml:"instance,omitempty"`

	// create-vnfd, create-vnf
	VNFD     string `yaml:"vnfd,omitempty"`
	Template string `yaml:"template,omitempty"`
	VNF      string `yaml:"vnf,omitempty"`

	// wait-vnf, create-chain
	VNFs []string `yaml:"vnfs,omitempty"`

	// create-chain, create-classifier, install-reverse-flows
	Chain       string     `yaml:"chain,omitempty"`
	Symmetrical bool       `yaml:"symmetrical,omitempty"`
	Classifier  string     `yaml:"classifier,omitempty"`
	Match       *MatchSpec `yaml:"match,omitempty"`

	// start-convergence-watch; empty Rules means every classifier created
	// so far in the run
	Rules []RuleSpec `yaml:"rules,omitempty"`
	Table int        `yaml:"table,omitempty"`

	// assign-floating-ips, verify-reachable, verify-ssh
	Targets  []string      `yaml:"targets,omitempty"`
	Retries  int           `yaml:"retries,omitempty"`
	Interval time.Duration `yaml:"interval,omitempty"`

	// start-http-server, start-firewall, verify-traffic
	Source string `yaml:"source,omitempty"`
	Target string `yaml:"target,omitempty"`
	Port   int    `yaml:"port,omitempty"`

	// verify-traffic
	Expect []TrafficSpec `yaml:"expect,omitempty"`

	// wait, and the bound of wait-vnf / start-convergence-watch
	Duration time.Duration `yaml:"duration,omitempty"`
	Timeout  time.Duration `yaml:"timeout,omitempty"`
}

// MatchSpec is the traffic selector of a classifier.
type MatchSpec struct {
	SourcePort int `yaml:"source_port"`
	DestPort   int `yaml:"dest_port"`
	Protocol   int `yaml:"protocol"`
}

// RuleSpec is one classification rule the convergence watch waits for.
type RuleSpec struct {
	Classifier string   `yaml:"classifier"`
	Chain      string   `yaml:"chain"`
	DestPort   int      `yaml:"dest_port,omitempty"`
	SourcePort int      `yaml:"source_port,omitempty"`
	Nodes      []string `yaml:"nodes,omitempty"`
}

// TrafficSpec is an expected connection outcome.
type TrafficSpec struct {
	Protocol string `yaml:"protocol"`
	Port     int    `yaml:"port"`
	Outcome  string `yaml:"outcome"`
}

func (t TrafficSpec) String() string {
	return fmt.Sprintf("%s/%d %s", t.Protocol, t.Port, t.Outcome)
}

// StepAction identifies the type of step to execute.
type StepAction string

const (
	ActionSetupComputeNodes     StepAction = "setup-compute-nodes"
	ActionConfigureIptables     StepAction = "configure-iptables"
	ActionDownloadImage         StepAction = "download-image"
	ActionCreateFlavor          StepAction = "create-flavor"
	ActionCreateImage           StepAction = "create-image"
	ActionSetupNetwork          StepAction = "setup-network"
	ActionCreateSecurityGroup   StepAction = "create-security-group"
	ActionCreateInstance        StepAction = "create-instance"
	ActionCreateVNFD            StepAction = "create-vnfd"
	ActionCreateVNF             StepAction = "create-vnf"
	ActionWaitVNF               StepAction = "wait-vnf"
	ActionSecureSFs             StepAction = "secure-sfs"
	ActionCreateChain           StepAction = "create-chain"
	ActionCreateClassifier      StepAction = "create-classifier"
	ActionStartConvergenceWatch StepAction = "start-convergence-watch"
	ActionAssignFloatingIPs     StepAction = "assign-floating-ips"
	ActionVerifyReachable       StepAction = "verify-reachable"
	ActionVerifySSH             StepAction = "verify-ssh"
	ActionStartHTTPServer       StepAction = "start-http-server"
	ActionStartFirewall         StepAction = "start-firewall"
	ActionWaitConvergence       StepAction = "wait-convergence"
	ActionInstallReverseFlows   StepAction = "install-reverse-flows"
	ActionDumpClassifierFlows   StepAction = "dump-classifier-flows"
	ActionVerifyTraffic         StepAction = "verify-traffic"
	ActionWait                  StepAction = "wait"
)

// validActions is derived from the executors map so the two never drift.
var validActions map[StepAction]bool

func init() {
	validActions = make(map[StepAction]bool, len(executors))
	for action := range executors {
		validActions[action] = true
	}
}

// Logical endpoint names. Any other target names a VNF.
const (
	TargetClient = "client"
	TargetServer = "server"
)
