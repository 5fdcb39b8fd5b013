package openstack

import (
	"fmt"

	"github.com/gophercloud/gophercloud"
	"github.com/gophercloud/gophercloud/openstack/networking/v2/extensions/layer3/routers"
	"github.com/gophercloud/gophercloud/openstack/networking/v2/networks"
	"github.com/gophercloud/gophercloud/openstack/networking/v2/subnets"

	"github.com/newtron-network/sfctest/pkg/config"
	"github.com/newtron-network/sfctest/pkg/util"
)

// SetupNetwork creates the tenant network, its subnet and a router to the
// external network, reusing objects that already exist by name. It returns
// the network ID.
func (c *Cloud) SetupNetwork(n config.Network) (string, error) {
	log := util.WithField("network", n.Name)

	netID, err := c.networkID(n.Name)
	if err != nil {
		return "", err
	}
	if netID == "" {
		up := true
		created, err := networks.Create(c.Network, networks.CreateOpts{Name: n.Name, AdminStateUp: &up}).Extract()
		if err != nil {
			return "", fmt.Errorf("openstack: create network %s: %w", n.Name, err)
		}
		netID = created.ID
		log.Infof("Created network %s", netID)
	}

	subnetID, err := c.subnetID(netID, n.Subnet)
	if err != nil {
		return "", err
	}
	if subnetID == "" {
		created, err := subnets.Create(c.Network, subnets.CreateOpts{
			NetworkID: netID,
			Name:      n.Subnet,
			CIDR:      n.CIDR,
			IPVersion: gophercloud.IPv4,
		}).Extract()
		if err != nil {
			return "", fmt.Errorf("openstack: create subnet %s: %w", n.Subnet, err)
		}
		subnetID = created.ID
		log.Infof("Created subnet %s (%s)", subnetID, n.CIDR)
	}

	if err := c.ensureRouter(n, subnetID); err != nil {
		return "", err
	}
	return netID, nil
}

func (c *Cloud) ensureRouter(n config.Network, subnetID string) error {
	pages, err := routers.List(c.Network, routers.ListOpts{Name: n.Router}).AllPages()
	if err != nil {
		return fmt.Errorf("openstack: list routers: %w", err)
	}
	existing, err := routers.ExtractRouters(pages)
	if err != nil {
		return fmt.Errorf("openstack: list routers: %w", err)
	}
	if len(existing) > 0 {
		return nil
	}

	extID, err := c.networkID(n.External)
	if err != nil {
		return err
	}
	if extID == "" {
		return fmt.Errorf("openstack: external network %s: %w", n.External, util.ErrNotFound)
	}
	r, err := routers.Create(c.Network, routers.CreateOpts{
		Name:        n.Router,
		GatewayInfo: &routers.GatewayInfo{NetworkID: extID},
	}).Extract()
	if err != nil {
		return fmt.Errorf("openstack: create router %s: %w", n.Router, err)
	}
	if _, err := routers.AddInterface(c.Network, r.ID, routers.AddInterfaceOpts{SubnetID: subnetID}).Extract(); err != nil {
		return fmt.Errorf("openstack: attach subnet to router %s: %w", n.Router, err)
	}
	util.WithField("network", n.Name).Infof("Created router %s", r.ID)
	return nil
}

func (c *Cloud) networkID(name string) (string, error) {
	pages, err := networks.List(c.Network, networks.ListOpts{Name: name}).AllPages()
	if err != nil {
		return "", fmt.Errorf("openstack: list networks: %w", err)
	}
	list, err := networks.ExtractNetworks(pages)
	if err != nil {
		return "", fmt.Errorf("openstack: list networks: %w", err)
	}
	if len(list) == 0 {
		return "", nil
	}
	return list[0].ID, nil
}

func (c *Cloud) subnetID(networkID, name string) (string, error) {
	pages, err := subnets.List(c.Network, subnets.ListOpts{NetworkID: networkID, Name: name}).AllPages()
	if err != nil {
		return "", fmt.Errorf("openstack: list subnets: %w", err)
	}
	list, err := subnets.ExtractSubnets(pages)
	if err != nil {
		return "", fmt.Errorf("openstack: list subnets: %w", err)
	}
	if len(list) == 0 {
		return "", nil
	}
	return list[0].ID, nil
}
