package openstack

import (
	"fmt"

	"github.com/gophercloud/gophercloud/openstack/compute/v2/extensions/secgroups"
	"github.com/gophercloud/gophercloud/openstack/networking/v2/extensions/security/groups"
	"github.com/gophercloud/gophercloud/openstack/networking/v2/extensions/security/rules"

	"github.com/newtron-network/sfctest/pkg/config"
	"github.com/newtron-network/sfctest/pkg/util"
)

// Ingress rules opened for the endpoints and SFs: ping, SSH and HTTP.
var securityGroupRules = []rules.CreateOpts{
	{Direction: rules.DirIngress, EtherType: rules.EtherType4, Protocol: rules.ProtocolICMP},
	{Direction: rules.DirIngress, EtherType: rules.EtherType4, Protocol: rules.ProtocolTCP, PortRangeMin: 22, PortRangeMax: 22},
	{Direction: rules.DirIngress, EtherType: rules.EtherType4, Protocol: rules.ProtocolTCP, PortRangeMin: 80, PortRangeMax: 80},
}

// CreateSecurityGroup creates the group with its ingress rules, or returns
// the ID of an existing group with the same name.
func (c *Cloud) CreateSecurityGroup(sg config.SecurityGroup) (string, error) {
	id, err := c.SecurityGroupID(sg.Name)
	if err == nil {
		util.WithField("secgroup", sg.Name).Infof("Using existing security group %s", id)
		return id, nil
	}

	g, err := groups.Create(c.Network, groups.CreateOpts{Name: sg.Name, Description: sg.Description}).Extract()
	if err != nil {
		return "", fmt.Errorf("openstack: create security group %s: %w", sg.Name, err)
	}
	for _, r := range securityGroupRules {
		r.SecGroupID = g.ID
		if _, err := rules.Create(c.Network, r).Extract(); err != nil {
			return "", fmt.Errorf("openstack: security group %s: add %s rule: %w", sg.Name, r.Protocol, err)
		}
	}
	util.WithField("secgroup", sg.Name).Infof("Created security group %s", g.ID)
	return g.ID, nil
}

// SecurityGroupID returns the ID of the named group.
func (c *Cloud) SecurityGroupID(name string) (string, error) {
	pages, err := groups.List(c.Network, groups.ListOpts{Name: name}).AllPages()
	if err != nil {
		return "", fmt.Errorf("openstack: list security groups: %w", err)
	}
	list, err := groups.ExtractGroups(pages)
	if err != nil {
		return "", fmt.Errorf("openstack: list security groups: %w", err)
	}
	if len(list) == 0 {
		return "", fmt.Errorf("openstack: security group %s: %w", name, util.ErrNotFound)
	}
	return list[0].ID, nil
}

// AddSecurityGroup attaches the named group to a server.
func (c *Cloud) AddSecurityGroup(serverID, group string) error {
	if err := secgroups.AddServer(c.Compute, serverID, group).ExtractErr(); err != nil {
		return fmt.Errorf("openstack: add security group %s to %s: %w", group, serverID, err)
	}
	return nil
}
