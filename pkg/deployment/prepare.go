package deployment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/newtron-network/sfctest/pkg/remote"
	"github.com/newtron-network/sfctest/pkg/util"
)

// SetupComputeNodes brings br-int up on every compute node and routes the
// tenant CIDR through it so the test host can reach VMs directly. An
// existing route is not an error.
func SetupComputeNodes(ctx context.Context, computes []*Node, cidr string) error {
	for _, n := range computes {
		log := util.WithNode(n.String())
		log.Infof("Preparing compute node %s", n.IP)
		if _, err := n.Run(ctx, "ifconfig br-int up"); err != nil {
			return fmt.Errorf("deployment: %s: br-int up: %w", n, err)
		}
		_, err := n.Run(ctx, fmt.Sprintf("ip route add %s dev br-int", cidr))
		if err != nil && !routeExists(err) {
			return fmt.Errorf("deployment: %s: route %s: %w", n, cidr, err)
		}
	}
	return nil
}

func routeExists(err error) bool {
	var exitErr *remote.ExitError
	return errors.As(err, &exitErr) && strings.Contains(exitErr.Stderr, "File exists")
}

// IptablesCommands are applied on controllers so traffic between the
// tenant network and the external network is forwarded.
var IptablesCommands = []string{
	"iptables -P FORWARD ACCEPT",
	"iptables -t nat -A POSTROUTING --jump MASQUERADE",
	"iptables -A FORWARD --in-interface br-int --jump ACCEPT",
}

// ConfigureIptables applies IptablesCommands on each controller.
func ConfigureIptables(ctx context.Context, controllers []*Node) error {
	for _, n := range controllers {
		util.WithNode(n.String()).Info("Configuring iptables")
		for _, cmd := range IptablesCommands {
			if _, err := n.Run(ctx, cmd); err != nil {
				return fmt.Errorf("deployment: %s: %s: %w", n, cmd, err)
			}
		}
	}
	return nil
}
