package openstack

import (
	"fmt"

	"github.com/gophercloud/gophercloud/openstack/networking/v2/extensions/layer3/floatingips"
	"github.com/gophercloud/gophercloud/openstack/networking/v2/ports"

	"github.com/newtron-network/sfctest/pkg/util"
)

// AssignFloatingIP allocates a floating IP on the external network and
// binds it to the first port of the server. It returns the address.
func (c *Cloud) AssignFloatingIP(serverID, externalNetwork string) (string, error) {
	extID, err := c.networkID(externalNetwork)
	if err != nil {
		return "", err
	}
	if extID == "" {
		return "", fmt.Errorf("openstack: external network %s: %w", externalNetwork, util.ErrNotFound)
	}

	pages, err := ports.List(c.Network, ports.ListOpts{DeviceID: serverID}).AllPages()
	if err != nil {
		return "", fmt.Errorf("openstack: list ports of %s: %w", serverID, err)
	}
	list, err := ports.ExtractPorts(pages)
	if err != nil {
		return "", fmt.Errorf("openstack: list ports of %s: %w", serverID, err)
	}
	if len(list) == 0 {
		return "", fmt.Errorf("openstack: no port on %s: %w", serverID, util.ErrNotFound)
	}

	fip, err := floatingips.Create(c.Network, floatingips.CreateOpts{
		FloatingNetworkID: extID,
		PortID:            list[0].ID,
	}).Extract()
	if err != nil {
		return "", fmt.Errorf("openstack: floating ip for %s: %w", serverID, err)
	}
	util.WithField("instance", serverID).Infof("Floating IP %s assigned", fip.FloatingIP)
	return fip.FloatingIP, nil
}

// FloatingIPs returns every floating IP of the project keyed by the fixed
// IP it is bound to. Unbound addresses are omitted.
func (c *Cloud) FloatingIPs() (map[string]string, error) {
	pages, err := floatingips.List(c.Network, floatingips.ListOpts{}).AllPages()
	if err != nil {
		return nil, fmt.Errorf("openstack: list floating ips: %w", err)
	}
	list, err := floatingips.ExtractFloatingIPs(pages)
	if err != nil {
		return nil, fmt.Errorf("openstack: list floating ips: %w", err)
	}
	out := make(map[string]string, len(list))
	for _, f := range list {
		if f.FixedIP != "" {
			out[f.FixedIP] = f.FloatingIP
		}
	}
	return out, nil
}
