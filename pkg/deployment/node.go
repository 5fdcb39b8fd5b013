// Package deployment discovers the OpenStack nodes of a testbed from its
// installer and prepares them for SFC tests.
package deployment

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/newtron-network/sfctest/pkg/remote"
	"github.com/newtron-network/sfctest/pkg/util"
)

// Node roles.
const (
	RoleController = "controller"
	RoleCompute    = "compute"
)

// Node is one OpenStack host with a command channel.
type Node struct {
	ID      string
	Name    string
	IP      string
	Status  string
	Cluster string
	Roles   []string
	Online  bool
	User    string // login user on the node
	Host    remote.Commander
}

// HasRole reports whether the node carries role.
func (n *Node) HasRole(role string) bool {
	for _, r := range n.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// IsController reports whether the node runs the OpenStack control plane.
func (n *Node) IsController() bool { return n.HasRole(RoleController) }

// IsCompute reports whether the node hosts VMs.
func (n *Node) IsCompute() bool { return n.HasRole(RoleCompute) }

// Run executes cmd on the node, with sudo for non-root users.
func (n *Node) Run(ctx context.Context, cmd string) (*remote.Result, error) {
	return n.Host.Run(ctx, util.Sudo(n.User, cmd))
}

// String returns the inventory name, or the IP when unnamed.
func (n *Node) String() string {
	if n.Name != "" {
		return n.Name
	}
	return n.IP
}

// GetFile copies a file from the node to localPath, creating parent
// directories.
func (n *Node) GetFile(ctx context.Context, remotePath, localPath string) error {
	res, err := n.Run(ctx, "cat "+util.SingleQuote(remotePath))
	if err != nil {
		return fmt.Errorf("deployment: get %s from %s: %w", remotePath, n, err)
	}
	if err := os.MkdirAll(filepath.Dir(localPath), 0755); err != nil {
		return fmt.Errorf("deployment: %w", err)
	}
	if err := os.WriteFile(localPath, []byte(res.Stdout), 0600); err != nil {
		return fmt.Errorf("deployment: write %s: %w", localPath, err)
	}
	return nil
}

// Controllers returns the controller nodes in inventory order.
func Controllers(nodes []*Node) []*Node { return filterRole(nodes, RoleController) }

// Computes returns the compute nodes in inventory order.
func Computes(nodes []*Node) []*Node { return filterRole(nodes, RoleCompute) }

func filterRole(nodes []*Node, role string) []*Node {
	var out []*Node
	for _, n := range nodes {
		if n.HasRole(role) {
			out = append(out, n)
		}
	}
	return out
}

func parseRoles(s string) []string {
	var roles []string
	for _, r := range strings.Split(s, ",") {
		if r = strings.TrimSpace(r); r != "" {
			roles = append(roles, r)
		}
	}
	return roles
}
