package openstack

import (
	"fmt"
	"strings"
	"time"

	"github.com/gophercloud/gophercloud/openstack/compute/v2/servers"

	"github.com/newtron-network/sfctest/pkg/util"
)

// InstanceSpec describes a VM to boot.
type InstanceSpec struct {
	Name          string
	FlavorID      string
	ImageID       string
	NetworkID     string
	SecurityGroup string
	Zone          string
}

// Instance is the subset of server state the scenarios use.
type Instance struct {
	ID          string
	Name        string
	Status      string
	FixedIPs    []string
	FloatingIPs []string
}

func instanceFromServer(s servers.Server) Instance {
	inst := Instance{ID: s.ID, Name: s.Name, Status: s.Status}
	for _, addrs := range s.Addresses {
		list, ok := addrs.([]interface{})
		if !ok {
			continue
		}
		for _, a := range list {
			m, ok := a.(map[string]interface{})
			if !ok {
				continue
			}
			addr, _ := m["addr"].(string)
			if addr == "" {
				continue
			}
			if t, _ := m["OS-EXT-IPS:type"].(string); t == "floating" {
				inst.FloatingIPs = append(inst.FloatingIPs, addr)
			} else {
				inst.FixedIPs = append(inst.FixedIPs, addr)
			}
		}
	}
	return inst
}

// CreateInstance boots a server and waits until it is ACTIVE.
func (c *Cloud) CreateInstance(spec InstanceSpec, timeout, interval time.Duration) (*Instance, error) {
	opts := servers.CreateOpts{
		Name:             spec.Name,
		FlavorRef:        spec.FlavorID,
		ImageRef:         spec.ImageID,
		Networks:         []servers.Network{{UUID: spec.NetworkID}},
		AvailabilityZone: spec.Zone,
	}
	if spec.SecurityGroup != "" {
		opts.SecurityGroups = []string{spec.SecurityGroup}
	}
	s, err := servers.Create(c.Compute, opts).Extract()
	if err != nil {
		return nil, fmt.Errorf("openstack: create instance %s: %w", spec.Name, err)
	}
	util.WithField("instance", spec.Name).Infof("Booting %s in zone %q", s.ID, spec.Zone)
	return c.WaitForInstance(s.ID, timeout, interval)
}

// WaitForInstance polls a server until it is ACTIVE, fails on ERROR.
func (c *Cloud) WaitForInstance(id string, timeout, interval time.Duration) (*Instance, error) {
	deadline := time.Now().Add(timeout)
	last := ""
	for {
		s, err := servers.Get(c.Compute, id).Extract()
		if err != nil {
			return nil, fmt.Errorf("openstack: get instance %s: %w", id, err)
		}
		last = s.Status
		switch strings.ToUpper(s.Status) {
		case "ACTIVE":
			inst := instanceFromServer(*s)
			return &inst, nil
		case "ERROR":
			return nil, fmt.Errorf("openstack: instance %s (%s) in ERROR: %w", s.Name, id, util.ErrNotReady)
		}
		if !time.Now().Add(interval).Before(deadline) {
			break
		}
		time.Sleep(interval)
	}
	return nil, fmt.Errorf("openstack: %w", &util.TimeoutError{What: "instance " + id, Timeout: timeout, Last: last})
}

// ListInstances returns every server of the project.
func (c *Cloud) ListInstances() ([]Instance, error) {
	pages, err := servers.List(c.Compute, servers.ListOpts{}).AllPages()
	if err != nil {
		return nil, fmt.Errorf("openstack: list instances: %w", err)
	}
	list, err := servers.ExtractServers(pages)
	if err != nil {
		return nil, fmt.Errorf("openstack: list instances: %w", err)
	}
	out := make([]Instance, 0, len(list))
	for _, s := range list {
		out = append(out, instanceFromServer(s))
	}
	return out, nil
}

// GetInstance returns one server.
func (c *Cloud) GetInstance(id string) (*Instance, error) {
	s, err := servers.Get(c.Compute, id).Extract()
	if err != nil {
		return nil, fmt.Errorf("openstack: get instance %s: %w", id, err)
	}
	inst := instanceFromServer(*s)
	return &inst, nil
}

// FindInstance returns the first server with the given name.
func (c *Cloud) FindInstance(name string) (*Instance, error) {
	all, err := c.ListInstances()
	if err != nil {
		return nil, err
	}
	for i := range all {
		if all[i].Name == name {
			return &all[i], nil
		}
	}
	return nil, fmt.Errorf("openstack: instance %s: %w", name, util.ErrNotFound)
}
