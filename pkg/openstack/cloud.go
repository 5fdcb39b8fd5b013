package openstack

import (
	"fmt"

	"github.com/gophercloud/gophercloud"
	"github.com/gophercloud/gophercloud/openstack"

	"github.com/newtron-network/sfctest/pkg/util"
)

// Cloud holds the service clients of one authenticated session.
type Cloud struct {
	Provider *gophercloud.ProviderClient
	Compute  *gophercloud.ServiceClient
	Network  *gophercloud.ServiceClient
	Image    *gophercloud.ServiceClient
	Region   string
}

// Connect authenticates and builds compute, network and image clients.
func Connect(creds *Credentials) (*Cloud, error) {
	opts := creds.Auth
	opts.AllowReauth = true
	provider, err := openstack.AuthenticatedClient(opts)
	if err != nil {
		return nil, fmt.Errorf("openstack: authenticate %s: %w", opts.IdentityEndpoint, err)
	}
	util.WithField("auth_url", opts.IdentityEndpoint).Debugf("authenticated as %s", opts.Username)

	eo := gophercloud.EndpointOpts{Region: creds.Region}
	c := &Cloud{Provider: provider, Region: creds.Region}
	if c.Compute, err = openstack.NewComputeV2(provider, eo); err != nil {
		return nil, fmt.Errorf("openstack: compute client: %w", err)
	}
	if c.Network, err = openstack.NewNetworkV2(provider, eo); err != nil {
		return nil, fmt.Errorf("openstack: network client: %w", err)
	}
	if c.Image, err = openstack.NewImageServiceV2(provider, eo); err != nil {
		return nil, fmt.Errorf("openstack: image client: %w", err)
	}
	return c, nil
}

// EndpointOpts returns the endpoint options other service clients of this
// session should use.
func (c *Cloud) EndpointOpts() gophercloud.EndpointOpts {
	return gophercloud.EndpointOpts{Region: c.Region}
}
