// Package topology chooses where the client, the server and each VNF of a
// scenario are placed across the compute nodes, deterministically from a seed.
package topology

import (
	"fmt"
	"sort"
	"strings"
)

// Role names for the endpoints. VNFs use their own name as role.
const (
	Client = "client"
	Server = "server"
)

// DefaultZone is the availability zone that lets the scheduler pick a host.
const DefaultZone = "nova"

// Assignment maps each role to an availability zone.
type Assignment struct {
	ID          string
	Description string
	Placement   map[string]string
}

// Zone returns the zone for role, or DefaultZone when the role is unknown.
func (a Assignment) Zone(role string) string {
	if z, ok := a.Placement[role]; ok {
		return z
	}
	return DefaultZone
}

// String lists the placement in stable order.
func (a Assignment) String() string {
	roles := make([]string, 0, len(a.Placement))
	for r := range a.Placement {
		roles = append(roles, r)
	}
	sort.Strings(roles)
	parts := make([]string, 0, len(roles))
	for _, r := range roles {
		parts = append(parts, r+"="+a.Placement[r])
	}
	return fmt.Sprintf("%s [%s]", a.ID, strings.Join(parts, " "))
}

// layout indexes into the zone list for each role. Odd-numbered VNFs use
// vnf2, the others vnf1.
type layout struct {
	id          string
	description string
	client      int
	server      int
	vnf1        int
	vnf2        int
}

var catalogue = []layout{
	{"CLIENT_VNF_SAME_HOST", "Client and VNFs on the same host, server on another", 0, 1, 0, 0},
	{"CLIENT_SERVER_SAME_HOST", "Client and server on the same host, VNFs on another", 0, 0, 1, 1},
	{"SERVER_VNF_SAME_HOST", "Server and VNFs on the same host, client on another", 1, 0, 0, 0},
	{"CLIENT_SERVER_DIFFERENT_HOST_SPLIT_VNF", "Client and server on different hosts, one VNF next to each", 0, 1, 0, 1},
	{"CLIENT_SERVER_SAME_HOST_SPLIT_VNF", "Client and server on the same host, VNFs split across hosts", 0, 0, 0, 1},
}

// Count is the number of catalogue entries a seed selects from.
func Count() int { return len(catalogue) }

// Fallback places every role in DefaultZone.
func Fallback(vnfs []string) Assignment {
	a := Assignment{
		ID:          "FALLBACK",
		Description: "All services placed by the scheduler",
		Placement:   map[string]string{Client: DefaultZone, Server: DefaultZone},
	}
	for _, v := range vnfs {
		a.Placement[v] = DefaultZone
	}
	return a
}

// Select picks the catalogue entry seed mod Count() and resolves it against
// zones. With fewer than two zones, or a negative seed, it returns Fallback.
func Select(vnfs, zones []string, seed int) Assignment {
	if len(zones) < 2 || seed < 0 {
		return Fallback(vnfs)
	}
	l := catalogue[seed%len(catalogue)]
	a := Assignment{
		ID:          l.id,
		Description: l.description,
		Placement: map[string]string{
			Client: zones[l.client],
			Server: zones[l.server],
		},
	}
	for i, v := range vnfs {
		idx := l.vnf1
		if i%2 == 1 {
			idx = l.vnf2
		}
		a.Placement[v] = zones[idx]
	}
	return a
}
