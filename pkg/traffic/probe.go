// Package traffic drives real traffic between testbed endpoints: bounded
// reachability probes, SSH login checks, the HTTP server and VXLAN firewall
// helpers started on VMs, and classification of TCP connection outcomes.
package traffic

import (
	"context"
	"fmt"
	"time"

	"github.com/newtron-network/sfctest/pkg/remote"
	"github.com/newtron-network/sfctest/pkg/util"
)

// Reachability defaults.
const (
	DefaultPingRetries  = 50
	DefaultPingInterval = time.Second
)

// Prober checks liveness of endpoints from a vantage host, usually the
// machine sfctest runs on.
type Prober struct {
	Host  remote.Commander
	Sleep func(time.Duration)
}

// NewProber returns a prober that pings from host.
func NewProber(host remote.Commander) *Prober {
	return &Prober{Host: host, Sleep: time.Sleep}
}

// Ping sends a single echo request to addr.
func (p *Prober) Ping(ctx context.Context, addr string) bool {
	_, err := p.Host.Run(ctx, "ping -c 1 -W 1 "+addr)
	return err == nil
}

// WaitReachable pings each address in turn, up to retries times with delay
// between attempts, moving on at the first reply. An address that never
// replies fails the whole call with an error wrapping util.ErrUnreachable.
func (p *Prober) WaitReachable(ctx context.Context, addrs []string, retries int, delay time.Duration) error {
	if retries <= 0 {
		retries = DefaultPingRetries
	}
	for _, addr := range addrs {
		log := util.WithTarget(addr)
		log.Infof("Checking connectivity towards %s", addr)
		reached := false
		for i := 0; i < retries; i++ {
			if p.Ping(ctx, addr) {
				reached = true
				break
			}
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("traffic: ping %s: %w", addr, err)
			}
			if i < retries-1 {
				p.Sleep(delay)
			}
		}
		if !reached {
			return &util.UnreachableError{Target: addr, Attempts: retries}
		}
		log.Infof("Successful ping to %s", addr)
	}
	return nil
}

// Endpoint is a remotely controlled VM.
type Endpoint interface {
	remote.Host
	Close() error
}

// Dialer opens a remote command channel to addr.
type Dialer func(addr string) (Endpoint, error)

// CheckSSH logs in to every address, retrying each up to retries times, and
// returns the open endpoints keyed by address. On failure every endpoint
// opened so far is closed.
func (p *Prober) CheckSSH(ctx context.Context, addrs []string, dial Dialer, retries int, delay time.Duration) (map[string]Endpoint, error) {
	if retries <= 0 {
		retries = 1
	}
	eps := make(map[string]Endpoint, len(addrs))
	closeAll := func() {
		for _, ep := range eps {
			ep.Close()
		}
	}
	for _, addr := range addrs {
		var lastErr error
		for i := 0; i < retries; i++ {
			ep, err := dial(addr)
			if err == nil {
				if _, err = ep.Run(ctx, "hostname"); err == nil {
					eps[addr] = ep
					break
				}
				ep.Close()
			}
			lastErr = err
			if i < retries-1 {
				p.Sleep(delay)
			}
		}
		if _, ok := eps[addr]; !ok {
			closeAll()
			return nil, fmt.Errorf("traffic: ssh %s: %w (last error: %v)",
				addr, &util.UnreachableError{Target: addr, Attempts: retries}, lastErr)
		}
		util.WithTarget(addr).Info("SSH connection established")
	}
	return eps, nil
}
