package traffic

import (
	"context"
	"fmt"
	"time"

	"github.com/newtron-network/sfctest/pkg/remote"
	"github.com/newtron-network/sfctest/pkg/util"
)

// StartHTTPServer launches a background HTTP server on port and checks that
// something listens there.
func StartHTTPServer(ctx context.Context, ep remote.Commander, port int) error {
	start := fmt.Sprintf("nohup python -m SimpleHTTPServer %d > /dev/null 2>&1 &", port)
	if _, err := ep.Run(ctx, "sh -c "+util.SingleQuote(start)); err != nil {
		return fmt.Errorf("traffic: start http server: %w", err)
	}
	return waitListening(ctx, ep, port, 5, time.Second)
}

func waitListening(ctx context.Context, ep remote.Commander, port, attempts int, delay time.Duration) error {
	check := fmt.Sprintf("netstat -ltn | grep -q ':%d '", port)
	for i := 0; i < attempts; i++ {
		if _, err := ep.Run(ctx, check); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return fmt.Errorf("traffic: nothing listening on port %d: %w", port, util.ErrNotReady)
}

// FirewallOptions configures vxlan_tool.py on a service function.
type FirewallOptions struct {
	Interface string // default eth0
	Port      int
	Block     bool
}

// FirewallCommand returns the shell command that starts the VXLAN/NSH
// forwarding tool in the background.
func FirewallCommand(opts FirewallOptions) string {
	iface := opts.Interface
	if iface == "" {
		iface = "eth0"
	}
	cmd := fmt.Sprintf("python vxlan_tool.py -i %s -d forward -v off", iface)
	if opts.Block && opts.Port != 0 {
		cmd += fmt.Sprintf(" -b %d", opts.Port)
	}
	return "sh -c " + util.SingleQuote("cd /root; nohup "+cmd+" > /dev/null 2>&1 &")
}

// StartFirewall starts vxlan_tool.py on a service function, forwarding
// encapsulated traffic and dropping opts.Port when opts.Block is set.
func StartFirewall(ctx context.Context, sf remote.Commander, opts FirewallOptions) error {
	if _, err := sf.Run(ctx, FirewallCommand(opts)); err != nil {
		return fmt.Errorf("traffic: start firewall: %w", err)
	}
	return nil
}
