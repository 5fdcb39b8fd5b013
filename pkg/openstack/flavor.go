package openstack

import (
	"fmt"

	"github.com/gophercloud/gophercloud/openstack/compute/v2/flavors"
	"github.com/gophercloud/gophercloud/pagination"

	"github.com/newtron-network/sfctest/pkg/config"
	"github.com/newtron-network/sfctest/pkg/util"
)

// GetOrCreateFlavor returns the ID of the flavor named f.Name, creating a
// public flavor with f's sizes when none exists.
func (c *Cloud) GetOrCreateFlavor(f config.Flavor) (string, error) {
	var id string
	err := flavors.ListDetail(c.Compute, flavors.ListOpts{AccessType: flavors.AllAccess}).EachPage(func(page pagination.Page) (bool, error) {
		list, err := flavors.ExtractFlavors(page)
		if err != nil {
			return false, err
		}
		for _, fl := range list {
			if fl.Name == f.Name {
				id = fl.ID
				return false, nil
			}
		}
		return true, nil
	})
	if err != nil {
		return "", fmt.Errorf("openstack: list flavors: %w", err)
	}
	if id != "" {
		util.WithField("flavor", f.Name).Infof("Using existing flavor %s", id)
		return id, nil
	}

	disk := f.DiskGB
	public := true
	fl, err := flavors.Create(c.Compute, flavors.CreateOpts{
		Name:     f.Name,
		RAM:      f.RAMMB,
		VCPUs:    f.VCPUs,
		Disk:     &disk,
		IsPublic: &public,
	}).Extract()
	if err != nil {
		return "", fmt.Errorf("openstack: create flavor %s: %w", f.Name, err)
	}
	util.WithField("flavor", f.Name).Infof("Created flavor %s", fl.ID)
	return fl.ID, nil
}
