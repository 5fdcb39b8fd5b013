// Package odl queries the OpenDaylight controller for rendered service paths.
package odl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const renderedServicePathsURI = "/restconf/operational/rendered-service-path:rendered-service-paths/"

// ErrNoReversePath is returned when no rendered path is a reverse path.
var ErrNoReversePath = errors.New("odl: no reverse rendered service path")

// RenderedServicePath is one entry of the operational RSP list.
type RenderedServicePath struct {
	Name             string `json:"name"`
	PathID           uint32 `json:"path-id"`
	ParentPath       string `json:"parent-service-function-path,omitempty"`
	ServiceChainName string `json:"service-chain-name,omitempty"`
	StartingIndex    int    `json:"starting-index,omitempty"`
	SymmetricPathID  uint32 `json:"symmetric-path-id,omitempty"`
}

// IsReverse reports whether the path carries return traffic.
func (p RenderedServicePath) IsReverse() bool {
	return strings.HasSuffix(p.Name, "Reverse")
}

// Chain returns the chain this path renders. Older controllers omit
// service-chain-name; the chain is then the name up to "-Path".
func (p RenderedServicePath) Chain() string {
	if p.ServiceChainName != "" {
		return p.ServiceChainName
	}
	if i := strings.Index(p.Name, "-Path"); i > 0 {
		return p.Name[:i]
	}
	return p.Name
}

type rspEnvelope struct {
	Paths struct {
		List []RenderedServicePath `json:"rendered-service-path"`
	} `json:"rendered-service-paths"`
}

// Client talks to the controller northbound REST interface.
type Client struct {
	BaseURL  string
	User     string
	Password string
	HTTP     *http.Client
}

// NewClient returns a client for endpoint, given as host:port or a full URL.
func NewClient(endpoint, user, password string) *Client {
	base := endpoint
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	return &Client{
		BaseURL:  strings.TrimRight(base, "/"),
		User:     user,
		Password: password,
		HTTP:     &http.Client{Timeout: 10 * time.Second},
	}
}

// ListRenderedServicePaths returns the operational RSPs. A controller with
// no paths yet answers 404, which is reported as an empty list.
func (c *Client) ListRenderedServicePaths(ctx context.Context) ([]RenderedServicePath, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+renderedServicePathsURI, nil)
	if err != nil {
		return nil, fmt.Errorf("odl: %w", err)
	}
	req.SetBasicAuth(c.User, c.Password)
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("odl: list rendered service paths: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("odl: read response: %w", err)
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, nil
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("odl: list rendered service paths: HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var env rspEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("odl: decode rendered service paths: %w", err)
	}
	return env.Paths.List, nil
}

// PathIDs lists the rendered service paths and maps each chain to the
// path ID of its forward RSP and of its reverse RSP.
func (c *Client) PathIDs(ctx context.Context) (forward, reverse map[string]uint32, err error) {
	paths, err := c.ListRenderedServicePaths(ctx)
	if err != nil {
		return nil, nil, err
	}
	forward, reverse = ChainPathIDs(paths)
	return forward, reverse, nil
}

// ChainPathIDs splits paths by direction and keys them by chain. The first
// path of a chain in each direction wins.
func ChainPathIDs(paths []RenderedServicePath) (forward, reverse map[string]uint32) {
	forward = make(map[string]uint32)
	reverse = make(map[string]uint32)
	for _, p := range paths {
		ids := forward
		if p.IsReverse() {
			ids = reverse
		}
		if _, ok := ids[p.Chain()]; !ok {
			ids[p.Chain()] = p.PathID
		}
	}
	return forward, reverse
}

// ReversePathID returns the path ID of the reverse RSP in paths.
func ReversePathID(paths []RenderedServicePath) (uint32, error) {
	for _, p := range paths {
		if p.IsReverse() {
			return p.PathID, nil
		}
	}
	return 0, ErrNoReversePath
}
