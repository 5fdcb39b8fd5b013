package main

import (
	"context"
	"fmt"
	"net"
	"path/filepath"

	"github.com/newtron-network/sfctest/pkg/config"
	"github.com/newtron-network/sfctest/pkg/deployment"
	"github.com/newtron-network/sfctest/pkg/odl"
	"github.com/newtron-network/sfctest/pkg/openstack"
	"github.com/newtron-network/sfctest/pkg/openstack/tacker"
	"github.com/newtron-network/sfctest/pkg/ovs"
	"github.com/newtron-network/sfctest/pkg/remote"
	"github.com/newtron-network/sfctest/pkg/scenario"
	"github.com/newtron-network/sfctest/pkg/traffic"
	"github.com/newtron-network/sfctest/pkg/util"
)

// session is a connected testbed. Close releases the installer connection.
type session struct {
	cfg     *config.Config
	handler deployment.Handler
	nodes   []*deployment.Node
}

func (s *session) Close() {
	if err := s.handler.Close(); err != nil {
		util.Debugf("closing installer: %v", err)
	}
}

// connect loads the config and lists the deployment nodes.
func connect(ctx context.Context) (*session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	pw, err := installerPassword(cfg)
	if err != nil {
		return nil, err
	}
	h, err := deployment.NewHandler(cfg, pw)
	if err != nil {
		return nil, err
	}
	nodes, err := h.Nodes(ctx)
	if err != nil {
		h.Close()
		return nil, err
	}
	util.WithField("nodes", len(nodes)).Debugf("inventory loaded")
	return &session{cfg: cfg, handler: h, nodes: nodes}, nil
}

// controllerClient returns a client for the configured controller endpoint,
// discovering it from the controller nodes when none is configured.
func (s *session) controllerClient(ctx context.Context) (*odl.Client, error) {
	endpoint := s.cfg.Controller.Endpoint
	if endpoint == "" {
		ip, port, err := deployment.ControllerEndpoint(ctx, s.nodes)
		if err != nil {
			return nil, err
		}
		endpoint = net.JoinHostPort(ip, port)
	}
	return odl.NewClient(endpoint, s.cfg.Controller.User, s.cfg.Controller.Password), nil
}

// environment builds the scenario environment of one run.
func (s *session) environment(ctx context.Context, runID string) (*scenario.Environment, error) {
	creds, err := openstack.LoadCredentials(s.cfg.TackerRCPath())
	if err != nil {
		return nil, err
	}
	cloud, err := openstack.Connect(creds)
	if err != nil {
		return nil, err
	}
	orch, err := tacker.NewClient(cloud.Provider, cloud.EndpointOpts())
	if err != nil {
		return nil, err
	}
	ctrl, err := s.controllerClient(ctx)
	if err != nil {
		return nil, err
	}

	cred := remote.SSHConfig{
		User:     s.cfg.EndpointCredential.User,
		Password: s.cfg.EndpointCredential.Password,
		Timeout:  s.cfg.Timeouts.SSH,
	}
	dial := func(addr string) (traffic.Endpoint, error) {
		c, err := remote.Dial(addr, addr, cred)
		if err != nil {
			return nil, fmt.Errorf("endpoint %s: %w", addr, err)
		}
		return c, nil
	}

	return &scenario.Environment{
		Config:       s.cfg,
		Nodes:        s.nodes,
		Cloud:        cloud,
		Orchestrator: orch,
		Controller:   ctrl,
		Prober:       traffic.NewProber(remote.Local{}),
		Dial:         dial,
		OVSLog:       ovs.NewLogger(s.cfg.OVSLogDir(), filepath.Join(s.cfg.ResultsDir, runID)),
	}, nil
}
