package deployment

import (
	"context"
	"fmt"
	"strings"

	"github.com/newtron-network/sfctest/pkg/config"
	"github.com/newtron-network/sfctest/pkg/remote"
	"github.com/newtron-network/sfctest/pkg/util"
)

// Handler lists the nodes of a deployment.
type Handler interface {
	Nodes(ctx context.Context) ([]*Node, error)
	Close() error
}

// NewHandler connects to the installer described by cfg. password overrides
// cfg.Installer.Password when non-empty.
func NewHandler(cfg *config.Config, password string) (Handler, error) {
	inst := cfg.Installer
	if password != "" {
		inst.Password = password
	}
	switch inst.Type {
	case config.InstallerFuel:
		util.WithField("installer", inst.IP).Infof("Connecting to %s installer", inst.Type)
		client, err := remote.Dial("installer", inst.IP, remote.SSHConfig{
			User:     inst.User,
			Password: inst.Password,
			KeyFile:  inst.KeyFile,
			Timeout:  cfg.Timeouts.SSH,
		})
		if err != nil {
			return nil, fmt.Errorf("deployment: %w", err)
		}
		return &FuelHandler{Installer: client, Cluster: inst.Cluster, closer: client}, nil
	case config.InstallerStatic:
		return NewStaticHandler(cfg.Nodes, remote.SSHConfig{
			User:     inst.User,
			Password: inst.Password,
			KeyFile:  inst.KeyFile,
			Timeout:  cfg.Timeouts.SSH,
		}), nil
	}
	return nil, fmt.Errorf("deployment: installer type %q: %w", inst.Type, util.ErrInvalidConfig)
}

// FuelHandler reads the inventory from the Fuel master with "fuel node" and
// reaches nodes with ssh from the master.
type FuelHandler struct {
	Installer remote.Commander
	Cluster   string // empty lists every cluster

	closer interface{ Close() error }
}

// Nodes implements Handler.
func (h *FuelHandler) Nodes(ctx context.Context) ([]*Node, error) {
	res, err := h.Installer.Run(ctx, "fuel node")
	if err != nil {
		return nil, fmt.Errorf("deployment: fuel node: %w", err)
	}
	nodes, err := ParseFuelNodes(res.Stdout)
	if err != nil {
		return nil, err
	}
	var out []*Node
	for _, n := range nodes {
		if h.Cluster != "" && n.Cluster != h.Cluster {
			continue
		}
		n.User = "root"
		n.Host = &JumpShell{Jump: h.Installer, Target: n.IP, User: n.User}
		out = append(out, n)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("deployment: no nodes in cluster %q: %w", h.Cluster, util.ErrNotFound)
	}
	return out, nil
}

// Close implements Handler.
func (h *FuelHandler) Close() error {
	if h.closer != nil {
		return h.closer.Close()
	}
	return nil
}

// ParseFuelNodes parses the table printed by "fuel node". Columns are
// located by header name, so extra or reordered columns are tolerated.
func ParseFuelNodes(out string) ([]*Node, error) {
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) < 2 {
		return nil, fmt.Errorf("deployment: fuel node: empty inventory: %w", util.ErrNotFound)
	}
	cols := map[string]int{}
	for i, h := range strings.Split(lines[0], "|") {
		cols[strings.TrimSpace(h)] = i
	}
	for _, req := range []string{"id", "ip", "roles"} {
		if _, ok := cols[req]; !ok {
			return nil, fmt.Errorf("deployment: fuel node: missing %q column", req)
		}
	}
	field := func(f []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(f) {
			return ""
		}
		return strings.TrimSpace(f[i])
	}

	var nodes []*Node
	for _, line := range lines[1:] {
		if strings.HasPrefix(strings.TrimSpace(line), "---") || strings.TrimSpace(line) == "" {
			continue
		}
		f := strings.Split(line, "|")
		nodes = append(nodes, &Node{
			ID:      field(f, "id"),
			Name:    field(f, "name"),
			IP:      field(f, "ip"),
			Status:  field(f, "status"),
			Cluster: field(f, "cluster"),
			Roles:   parseRoles(field(f, "roles")),
			Online:  strings.EqualFold(field(f, "online"), "true") || field(f, "online") == "1",
		})
	}
	return nodes, nil
}

// JumpShell runs commands on Target by invoking ssh on the Jump host.
type JumpShell struct {
	Jump   remote.Commander
	Target string
	User   string
}

// Run implements remote.Commander. The remote exit status is preserved.
func (s *JumpShell) Run(ctx context.Context, cmd string) (*remote.Result, error) {
	wrapped := fmt.Sprintf("ssh -q -o StrictHostKeyChecking=no -o UserKnownHostsFile=/dev/null -o ConnectTimeout=10 %s@%s %s",
		s.User, s.Target, util.SingleQuote(cmd))
	return s.Jump.Run(ctx, wrapped)
}

// StaticHandler serves a fixed inventory from configuration, dialing each
// node directly over SSH.
type StaticHandler struct {
	inventory []config.Node
	ssh       remote.SSHConfig
	clients   []*remote.Client
}

// NewStaticHandler returns a handler for inventory with default credentials.
func NewStaticHandler(inventory []config.Node, ssh remote.SSHConfig) *StaticHandler {
	return &StaticHandler{inventory: inventory, ssh: ssh}
}

// Nodes implements Handler.
func (h *StaticHandler) Nodes(ctx context.Context) ([]*Node, error) {
	var nodes []*Node
	for _, inv := range h.inventory {
		cfg := h.ssh
		if inv.User != "" {
			cfg.User = inv.User
		}
		client, err := remote.Dial(inv.Name, inv.IP, cfg)
		if err != nil {
			return nil, fmt.Errorf("deployment: node %s: %w", inv.Name, err)
		}
		h.clients = append(h.clients, client)
		nodes = append(nodes, &Node{
			ID:     inv.Name,
			Name:   inv.Name,
			IP:     inv.IP,
			Status: "ready",
			Roles:  append([]string(nil), inv.Roles...),
			Online: true,
			User:   cfg.User,
			Host:   client,
		})
	}
	return nodes, nil
}

// Close implements Handler.
func (h *StaticHandler) Close() error {
	var first error
	for _, c := range h.clients {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	h.clients = nil
	return first
}
