package scenario

import (
	"context"
	"fmt"
	"time"

	"github.com/newtron-network/sfctest/pkg/config"
	"github.com/newtron-network/sfctest/pkg/deployment"
	"github.com/newtron-network/sfctest/pkg/odl"
	"github.com/newtron-network/sfctest/pkg/openstack"
	"github.com/newtron-network/sfctest/pkg/openstack/tacker"
	"github.com/newtron-network/sfctest/pkg/ovs"
	"github.com/newtron-network/sfctest/pkg/topology"
	"github.com/newtron-network/sfctest/pkg/traffic"
	"github.com/newtron-network/sfctest/pkg/util"
	"github.com/newtron-network/sfctest/pkg/verify"
)

// Cloud is the part of *openstack.Cloud the scenarios use.
type Cloud interface {
	GetOrCreateFlavor(f config.Flavor) (string, error)
	CreateImage(img config.Image) (string, error)
	SetupNetwork(n config.Network) (string, error)
	CreateSecurityGroup(sg config.SecurityGroup) (string, error)
	CreateInstance(spec openstack.InstanceSpec, timeout, interval time.Duration) (*openstack.Instance, error)
	ListInstances() ([]openstack.Instance, error)
	FindInstance(name string) (*openstack.Instance, error)
	AddSecurityGroup(serverID, group string) error
	AssignFloatingIP(serverID, externalNetwork string) (string, error)
	AvailabilityZones() ([]string, error)
}

// Orchestrator is the part of *tacker.Client the scenarios use.
type Orchestrator interface {
	CreateVNFD(name, templatePath string) (*tacker.VNFD, error)
	CreateVNF(name, vnfdName, paramsFile, zone string) (*tacker.VNF, error)
	WaitForVNF(name string, timeout, interval time.Duration) (string, error)
	VNFResourceID(vnfID, resource string) (string, error)
	DeleteVNF(id string) error
	CreateSFC(name string, vnfNames []string, symmetrical bool) (*tacker.SFC, error)
	CreateClassifier(name, sfcName string, match tacker.Match) (*tacker.Classifier, error)
	ListSFCs() ([]tacker.SFC, error)
	ListClassifiers() ([]tacker.Classifier, error)
}

// Controller is the SDN controller query used by the convergence watch and
// by install-reverse-flows.
type Controller interface {
	verify.PathSource
	ListRenderedServicePaths(ctx context.Context) ([]odl.RenderedServicePath, error)
}

// vnfServerResource is the heat resource of a VNF that is its nova server.
const vnfServerResource = "VDU1"

// Environment is everything a scenario talks to. The CLI builds it from a
// config.Config; tests fill it with fakes.
type Environment struct {
	Config       *config.Config
	Nodes        []*deployment.Node
	Cloud        Cloud
	Orchestrator Orchestrator
	Controller   Controller
	Prober       *traffic.Prober
	Dial         traffic.Dialer
	OVSLog       *ovs.Logger
}

// Computes returns the compute nodes of the deployment.
func (e *Environment) Computes() []*deployment.Node {
	return deployment.Computes(e.Nodes)
}

// Controllers returns the controller nodes of the deployment.
func (e *Environment) Controllers() []*deployment.Node {
	return deployment.Controllers(e.Nodes)
}

// flows returns the flow querier of a node.
func (e *Environment) flows(n *deployment.Node) *ovs.OfctlQuerier {
	return ovs.NewOfctlQuerier(n.Host, n.User)
}

// runState is what steps of a run hand to each other. It survives across
// scenarios of the same run so that a scenario can build on the objects
// created by the scenarios it requires.
type runState struct {
	assignment  *topology.Assignment
	flavorID    string
	imageID     string
	networkID   string
	instances   map[string]*openstack.Instance // client, server
	vnfs        map[string]string              // VNF name -> id
	classifiers []tacker.Classifier
	addrs       map[string]string // target -> floating IP
	endpoints   map[string]traffic.Endpoint
	task        *verify.Task
	convergence *verify.Result
}

func newRunState() *runState {
	return &runState{
		instances: make(map[string]*openstack.Instance),
		vnfs:      make(map[string]string),
		addrs:     make(map[string]string),
		endpoints: make(map[string]traffic.Endpoint),
	}
}

// closeEndpoints closes every SSH session opened by verify-ssh.
func (s *runState) closeEndpoints() {
	for target, ep := range s.endpoints {
		if err := ep.Close(); err != nil {
			util.WithTarget(target).Debugf("close: %v", err)
		}
		delete(s.endpoints, target)
	}
}

// placement returns the topology of the run, choosing it on first use from
// the availability zones and the configured seed.
func (r *Runner) placement() (topology.Assignment, error) {
	if r.state.assignment != nil {
		return *r.state.assignment, nil
	}
	zones, err := r.Env.Cloud.AvailabilityZones()
	if err != nil {
		return topology.Assignment{}, err
	}
	var vnfs []string
	if r.scenario != nil {
		vnfs = r.scenario.VNFs
	}
	a := topology.Select(vnfs, zones, r.Env.Config.TopologySeed)
	util.WithField("topology", a.ID).Infof("This test is run with the topology %s", a)
	r.state.assignment = &a
	return a, nil
}

// serverID returns the nova server behind a logical target: the client or
// server instance, or the VDU of a VNF.
func (r *Runner) serverID(target string) (string, error) {
	switch target {
	case TargetClient, TargetServer:
		if inst, ok := r.state.instances[target]; ok {
			return inst.ID, nil
		}
		inst, err := r.Env.Cloud.FindInstance(target)
		if err != nil {
			return "", err
		}
		r.state.instances[target] = inst
		return inst.ID, nil
	}
	vnfID, ok := r.state.vnfs[target]
	if !ok {
		id, err := r.Env.Orchestrator.WaitForVNF(target, r.Env.Config.Timeouts.VNF, r.pollInterval())
		if err != nil {
			return "", err
		}
		r.state.vnfs[target] = id
		vnfID = id
	}
	return r.Env.Orchestrator.VNFResourceID(vnfID, vnfServerResource)
}

// address returns the floating IP of a target, assigning one if the target
// has none yet.
func (r *Runner) address(target string) (string, error) {
	if ip, ok := r.state.addrs[target]; ok {
		return ip, nil
	}
	id, err := r.serverID(target)
	if err != nil {
		return "", err
	}
	if inst, ok := r.state.instances[target]; ok && len(inst.FloatingIPs) > 0 {
		r.state.addrs[target] = inst.FloatingIPs[0]
		return inst.FloatingIPs[0], nil
	}
	ip, err := r.Env.Cloud.AssignFloatingIP(id, r.Env.Config.Network.External)
	if err != nil {
		return "", err
	}
	r.state.addrs[target] = ip
	return ip, nil
}

// endpoint returns an SSH session to a target, opening one if needed.
func (r *Runner) endpoint(ctx context.Context, target string) (traffic.Endpoint, error) {
	if ep, ok := r.state.endpoints[target]; ok {
		return ep, nil
	}
	addr, err := r.address(target)
	if err != nil {
		return nil, err
	}
	if r.Env.Dial == nil {
		return nil, fmt.Errorf("no endpoint dialer configured: %w", util.ErrInvalidConfig)
	}
	ep, err := r.Env.Dial(addr)
	if err != nil {
		return nil, err
	}
	r.state.endpoints[target] = ep
	return ep, nil
}

func (r *Runner) pollInterval() time.Duration {
	if iv := r.Env.Config.Timeouts.PollInterval; iv > 0 {
		return iv
	}
	return time.Second
}
