package openstack

import (
	"fmt"
	"sort"

	"github.com/gophercloud/gophercloud/openstack/compute/v2/extensions/availabilityzones"
)

// AvailabilityZones returns one "zone::host" entry per available compute
// host, sorted, so a VM can be pinned to a specific hypervisor.
func (c *Cloud) AvailabilityZones() ([]string, error) {
	pages, err := availabilityzones.ListDetail(c.Compute).AllPages()
	if err != nil {
		return nil, fmt.Errorf("openstack: list availability zones: %w", err)
	}
	list, err := availabilityzones.ExtractAvailabilityZones(pages)
	if err != nil {
		return nil, fmt.Errorf("openstack: list availability zones: %w", err)
	}
	return computeZones(list), nil
}

func computeZones(list []availabilityzones.AvailabilityZone) []string {
	var zones []string
	for _, az := range list {
		if !az.ZoneState.Available {
			continue
		}
		for host, services := range az.Hosts {
			if state, ok := services["nova-compute"]; ok && state.Available && state.Active {
				zones = append(zones, az.ZoneName+"::"+host)
			}
		}
	}
	sort.Strings(zones)
	return zones
}
