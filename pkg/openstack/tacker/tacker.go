// Package tacker is a client for the Tacker NFV orchestrator v1.0 API:
// VNF descriptors, VNFs, service function chains and classifiers.
package tacker

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gophercloud/gophercloud"
	"gopkg.in/yaml.v3"

	"github.com/newtron-network/sfctest/pkg/util"
)

// ServiceType is the keystone catalog type of Tacker.
const ServiceType = "nfv-orchestration"

// Client issues Tacker requests through a gophercloud service client.
type Client struct {
	sc *gophercloud.ServiceClient
}

// NewClient locates Tacker in the service catalog of provider.
func NewClient(provider *gophercloud.ProviderClient, eo gophercloud.EndpointOpts) (*Client, error) {
	eo.ApplyDefaults(ServiceType)
	endpoint, err := provider.EndpointLocator(eo)
	if err != nil {
		return nil, fmt.Errorf("tacker: locate endpoint: %w", err)
	}
	endpoint = gophercloud.NormalizeURL(endpoint)
	return &Client{sc: &gophercloud.ServiceClient{
		ProviderClient: provider,
		Endpoint:       endpoint,
		ResourceBase:   endpoint + "v1.0/",
		Type:           ServiceType,
	}}, nil
}

// NewFromServiceClient wraps an existing service client.
func NewFromServiceClient(sc *gophercloud.ServiceClient) *Client {
	return &Client{sc: sc}
}

// VNFD is a VNF descriptor.
type VNFD struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// VNF is an instantiated network function.
type VNF struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	VNFDID      string `json:"vnfd_id"`
	Status      string `json:"status"`
	MgmtURL     string `json:"mgmt_url,omitempty"`
	ErrorReason string `json:"error_reason,omitempty"`
}

// Resource is one heat resource backing a VNF.
type Resource struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// SFC is a service function chain.
type SFC struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Status      string   `json:"status,omitempty"`
	Chain       []string `json:"chain"`
	Symmetrical bool     `json:"symmetrical"`
	InstanceID  string   `json:"instance_id,omitempty"`
}

// Match selects the traffic a classifier steers into its chain.
type Match struct {
	SourcePort int `json:"source_port"`
	DestPort   int `json:"dest_port"`
	Protocol   int `json:"protocol"`
}

// Classifier is a classification rule bound to a chain.
type Classifier struct {
	ID     string `json:"id,omitempty"`
	Name   string `json:"name"`
	Chain  string `json:"chain"`
	Status string `json:"status,omitempty"`
	Match  Match  `json:"match"`
}

// CreateVNFD uploads a TOSCA template. An empty name takes the template's
// metadata.template_name.
func (c *Client) CreateVNFD(name, templatePath string) (*VNFD, error) {
	data, err := os.ReadFile(templatePath)
	if err != nil {
		return nil, fmt.Errorf("tacker: %w", err)
	}
	var tosca map[string]interface{}
	if err := yaml.Unmarshal(data, &tosca); err != nil {
		return nil, fmt.Errorf("tacker: parsing %s: %w", templatePath, err)
	}
	if name == "" {
		if md, ok := tosca["metadata"].(map[string]interface{}); ok {
			name, _ = md["template_name"].(string)
		}
	}
	if name == "" {
		return nil, fmt.Errorf("tacker: %s has no metadata.template_name: %w", templatePath, util.ErrInvalidConfig)
	}

	body := map[string]interface{}{"vnfd": map[string]interface{}{
		"name":       name,
		"attributes": map[string]interface{}{"vnfd": tosca},
	}}
	var out struct {
		VNFD VNFD `json:"vnfd"`
	}
	if _, err := c.sc.Post(c.sc.ServiceURL("vnfds"), body, &out, nil); err != nil {
		return nil, fmt.Errorf("tacker: create vnfd %s: %w", name, err)
	}
	util.WithField("vnfd", name).Infof("Created VNFD %s", out.VNFD.ID)
	return &out.VNFD, nil
}

// CreateVNF instantiates vnfdName as name. Parameters are read from
// paramsFile when set, and zone overrides their "zone" key.
func (c *Client) CreateVNF(name, vnfdName, paramsFile, zone string) (*VNF, error) {
	vnfd, err := c.FindVNFD(vnfdName)
	if err != nil {
		return nil, err
	}
	params := map[string]interface{}{}
	if paramsFile != "" {
		data, err := os.ReadFile(paramsFile)
		if err != nil {
			return nil, fmt.Errorf("tacker: %w", err)
		}
		if err := yaml.Unmarshal(data, &params); err != nil {
			return nil, fmt.Errorf("tacker: parsing %s: %w", paramsFile, err)
		}
		if params == nil {
			params = map[string]interface{}{}
		}
	}
	if zone != "" {
		params["zone"] = zone
	}

	attrs := map[string]interface{}{}
	if len(params) > 0 {
		attrs["param_values"] = params
	}
	body := map[string]interface{}{"vnf": map[string]interface{}{
		"name":       name,
		"vnfd_id":    vnfd.ID,
		"attributes": attrs,
	}}
	var out struct {
		VNF VNF `json:"vnf"`
	}
	if _, err := c.sc.Post(c.sc.ServiceURL("vnfs"), body, &out, nil); err != nil {
		return nil, fmt.Errorf("tacker: create vnf %s: %w", name, err)
	}
	util.WithField("vnf", name).Infof("Created VNF %s in zone %q", out.VNF.ID, zone)
	return &out.VNF, nil
}

// GetVNF returns one VNF by ID.
func (c *Client) GetVNF(id string) (*VNF, error) {
	var out struct {
		VNF VNF `json:"vnf"`
	}
	if _, err := c.sc.Get(c.sc.ServiceURL("vnfs", id), &out, nil); err != nil {
		return nil, fmt.Errorf("tacker: get vnf %s: %w", id, err)
	}
	return &out.VNF, nil
}

// WaitForVNF polls the named VNF until it is ACTIVE and returns its ID. An
// ERROR status fails immediately.
func (c *Client) WaitForVNF(name string, timeout, interval time.Duration) (string, error) {
	v, err := c.FindVNF(name)
	if err != nil {
		return "", err
	}
	deadline := time.Now().Add(timeout)
	log := util.WithField("vnf", name)
	for {
		switch strings.ToUpper(v.Status) {
		case "ACTIVE":
			log.Infof("VNF %s is ACTIVE", v.ID)
			return v.ID, nil
		case "ERROR":
			return "", fmt.Errorf("tacker: vnf %s in ERROR: %s: %w", name, v.ErrorReason, util.ErrNotReady)
		}
		log.Debugf("VNF status %s", v.Status)
		if !time.Now().Add(interval).Before(deadline) {
			return "", fmt.Errorf("tacker: %w", &util.TimeoutError{What: "vnf " + name, Timeout: timeout, Last: v.Status})
		}
		time.Sleep(interval)
		if v, err = c.GetVNF(v.ID); err != nil {
			return "", err
		}
	}
}

// VNFResourceID returns the physical ID of the VNF resource named resource,
// e.g. the nova server of "VDU1".
func (c *Client) VNFResourceID(vnfID, resource string) (string, error) {
	var out struct {
		Resources []Resource `json:"resources"`
	}
	if _, err := c.sc.Get(c.sc.ServiceURL("vnfs", vnfID, "resources"), &out, nil); err != nil {
		return "", fmt.Errorf("tacker: vnf %s resources: %w", vnfID, err)
	}
	for _, r := range out.Resources {
		if strings.EqualFold(r.Name, resource) {
			return r.ID, nil
		}
	}
	return "", fmt.Errorf("tacker: vnf %s resource %s: %w", vnfID, resource, util.ErrNotFound)
}

// DeleteVNF removes a VNF.
func (c *Client) DeleteVNF(id string) error {
	if _, err := c.sc.Delete(c.sc.ServiceURL("vnfs", id), nil); err != nil {
		return fmt.Errorf("tacker: delete vnf %s: %w", id, err)
	}
	return nil
}

// CreateSFC chains the named VNFs in order.
func (c *Client) CreateSFC(name string, vnfNames []string, symmetrical bool) (*SFC, error) {
	chain := make([]string, 0, len(vnfNames))
	for _, n := range vnfNames {
		v, err := c.FindVNF(n)
		if err != nil {
			return nil, err
		}
		chain = append(chain, v.ID)
	}
	body := map[string]interface{}{"sfc": map[string]interface{}{
		"name":        name,
		"chain":       chain,
		"symmetrical": symmetrical,
		"attributes":  map[string]interface{}{},
	}}
	var out struct {
		SFC SFC `json:"sfc"`
	}
	if _, err := c.sc.Post(c.sc.ServiceURL("sfcs"), body, &out, nil); err != nil {
		return nil, fmt.Errorf("tacker: create sfc %s: %w", name, err)
	}
	util.WithField("sfc", name).Infof("Created chain %s over %v", out.SFC.ID, vnfNames)
	return &out.SFC, nil
}

// CreateClassifier binds match to the chain named sfcName.
func (c *Client) CreateClassifier(name, sfcName string, match Match) (*Classifier, error) {
	sfcs, err := c.ListSFCs()
	if err != nil {
		return nil, err
	}
	var chainID string
	for _, s := range sfcs {
		if s.Name == sfcName {
			chainID = s.ID
			break
		}
	}
	if chainID == "" {
		return nil, fmt.Errorf("tacker: sfc %s: %w", sfcName, util.ErrNotFound)
	}
	body := map[string]interface{}{"classifier": Classifier{Name: name, Chain: chainID, Match: match}}
	var out struct {
		Classifier Classifier `json:"classifier"`
	}
	if _, err := c.sc.Post(c.sc.ServiceURL("classifiers"), body, &out, nil); err != nil {
		return nil, fmt.Errorf("tacker: create classifier %s: %w", name, err)
	}
	util.WithField("classifier", name).Infof("Created classifier %s on %s", out.Classifier.ID, sfcName)
	return &out.Classifier, nil
}

// ListSFCs returns every chain.
func (c *Client) ListSFCs() ([]SFC, error) {
	var out struct {
		SFCs []SFC `json:"sfcs"`
	}
	if _, err := c.sc.Get(c.sc.ServiceURL("sfcs"), &out, nil); err != nil {
		return nil, fmt.Errorf("tacker: list sfcs: %w", err)
	}
	return out.SFCs, nil
}

// ListClassifiers returns every classifier.
func (c *Client) ListClassifiers() ([]Classifier, error) {
	var out struct {
		Classifiers []Classifier `json:"classifiers"`
	}
	if _, err := c.sc.Get(c.sc.ServiceURL("classifiers"), &out, nil); err != nil {
		return nil, fmt.Errorf("tacker: list classifiers: %w", err)
	}
	return out.Classifiers, nil
}

// FindVNFD returns the descriptor with the given name.
func (c *Client) FindVNFD(name string) (*VNFD, error) {
	var out struct {
		VNFDs []VNFD `json:"vnfds"`
	}
	if _, err := c.sc.Get(c.sc.ServiceURL("vnfds")+"?name="+url.QueryEscape(name), &out, nil); err != nil {
		return nil, fmt.Errorf("tacker: list vnfds: %w", err)
	}
	for i := range out.VNFDs {
		if out.VNFDs[i].Name == name {
			return &out.VNFDs[i], nil
		}
	}
	return nil, fmt.Errorf("tacker: vnfd %s: %w", name, util.ErrNotFound)
}

// FindVNF returns the VNF with the given name.
func (c *Client) FindVNF(name string) (*VNF, error) {
	var out struct {
		VNFs []VNF `json:"vnfs"`
	}
	if _, err := c.sc.Get(c.sc.ServiceURL("vnfs")+"?name="+url.QueryEscape(name), &out, nil); err != nil {
		return nil, fmt.Errorf("tacker: list vnfs: %w", err)
	}
	for i := range out.VNFs {
		if out.VNFs[i].Name == name {
			return &out.VNFs[i], nil
		}
	}
	return nil, fmt.Errorf("tacker: vnf %s: %w", name, util.ErrNotFound)
}
