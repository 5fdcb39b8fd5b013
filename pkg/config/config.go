// Package config defines the testbed configuration passed explicitly to every
// sfctest entry point: installer coordinates, directories, OpenStack object
// names, controller endpoint and timeouts.
package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/newtron-network/sfctest/pkg/util"
)

// Installer types understood by the deployment package.
const (
	InstallerFuel   = "fuel"
	InstallerStatic = "static"
)

// Config is the complete testbed description.
type Config struct {
	Installer          Installer     `yaml:"installer"`
	DemoDir            string        `yaml:"demo_dir"`
	ResultsDir         string        `yaml:"results_dir"`
	VNFDDir            string        `yaml:"vnfd_dir"`
	VNFDDefaultParams  string        `yaml:"vnfd_default_params"`
	TackerRC           string        `yaml:"tacker_rc"`
	Image              Image         `yaml:"image"`
	Flavor             Flavor        `yaml:"flavor"`
	Network            Network       `yaml:"network"`
	SecurityGroup      SecurityGroup `yaml:"security_group"`
	Controller         Controller    `yaml:"controller"`
	EndpointCredential Credential    `yaml:"endpoint_credentials"`
	Timeouts           Timeouts      `yaml:"timeouts"`
	TopologySeed       int           `yaml:"topology_seed"`

	// Nodes is the inventory used by the static installer.
	Nodes []Node `yaml:"nodes,omitempty"`
}

// Installer holds the coordinates of the installer (jump) host.
type Installer struct {
	Type     string `yaml:"type"`
	IP       string `yaml:"ip"`
	User     string `yaml:"user"`
	Password string `yaml:"password,omitempty"`
	KeyFile  string `yaml:"key_file,omitempty"`
	Cluster  string `yaml:"cluster,omitempty"`
}

// Image describes the SF/endpoint guest image.
type Image struct {
	Name   string `yaml:"name"`
	File   string `yaml:"file"`
	Format string `yaml:"format"`
	URL    string `yaml:"url"`
	Dir    string `yaml:"dir"`
}

// Path returns the local path of the image file.
func (i Image) Path() string {
	return filepath.Join(i.Dir, i.File)
}

// Flavor is the nova flavor used for endpoints and SFs.
type Flavor struct {
	Name   string `yaml:"name"`
	RAMMB  int    `yaml:"ram_mb"`
	DiskGB int    `yaml:"disk_gb"`
	VCPUs  int    `yaml:"vcpus"`
}

// Network names the tenant network objects.
type Network struct {
	Name   string `yaml:"name"`
	Subnet string `yaml:"subnet"`
	Router string `yaml:"router"`
	CIDR   string `yaml:"cidr"`
	// External is the provider network used for router gateways and
	// floating IPs.
	External string `yaml:"external"`
}

// SecurityGroup names the group applied to endpoints and SFs.
type SecurityGroup struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// Controller locates the SDN controller northbound API. An empty Endpoint
// means it is discovered from the ml2 configuration of a controller node.
type Controller struct {
	Endpoint string `yaml:"endpoint,omitempty"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

// Credential is a user/password pair.
type Credential struct {
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

// Timeouts bounds every wait performed by a scenario.
type Timeouts struct {
	VNF          time.Duration `yaml:"vnf"`
	Instance     time.Duration `yaml:"instance"`
	Convergence  time.Duration `yaml:"convergence"`
	PollInterval time.Duration `yaml:"poll_interval"`
	SSH          time.Duration `yaml:"ssh"`
	PingRetries  int           `yaml:"ping_retries"`
	PingInterval time.Duration `yaml:"ping_interval"`
	SSHRetries   int           `yaml:"ssh_retries"`
	TrafficProbe time.Duration `yaml:"traffic_probe"`
}

// Node is one entry of a static inventory.
type Node struct {
	Name  string   `yaml:"name"`
	IP    string   `yaml:"ip"`
	Roles []string `yaml:"roles"`
	User  string   `yaml:"user,omitempty"`
}

// Default returns the configuration of the reference Fuel testbed.
func Default() *Config {
	return &Config{
		Installer: Installer{
			Type:     InstallerFuel,
			IP:       "10.20.0.2",
			User:     "root",
			Password: "r00tme",
			Cluster:  "1",
		},
		DemoDir:           "/home/opnfv/demo/basic",
		ResultsDir:        "/home/opnfv/functest/results",
		VNFDDir:           "vnfd-templates",
		VNFDDefaultParams: "test-vnfd-default-params.yaml",
		Image: Image{
			Name:   "sfc_nsh_danube",
			File:   "sfc_nsh_danube.qcow2",
			Format: "qcow2",
			URL:    "http://artifacts.opnfv.org/sfc/images",
			Dir:    "/home/opnfv/functest/data",
		},
		Flavor: Flavor{
			Name:   "custom",
			RAMMB:  1500,
			DiskGB: 10,
			VCPUs:  1,
		},
		Network: Network{
			Name:     "example-net",
			Subnet:   "example-subnet",
			Router:   "example-router",
			CIDR:     "11.0.0.0/24",
			External: "admin_floating_net",
		},
		SecurityGroup: SecurityGroup{
			Name:        "example-sg",
			Description: "Example Security group",
		},
		Controller: Controller{
			User:     "admin",
			Password: "admin",
		},
		EndpointCredential: Credential{
			User:     "root",
			Password: "opnfv",
		},
		Timeouts: Timeouts{
			VNF:          5 * time.Minute,
			Instance:     3 * time.Minute,
			Convergence:  200 * time.Second,
			PollInterval: time.Second,
			SSH:          10 * time.Second,
			PingRetries:  50,
			PingInterval: time.Second,
			SSHRetries:   100,
			TrafficProbe: 10 * time.Second,
		},
	}
}

// Load reads a YAML file on top of Default. An empty path returns Default.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return cfg, nil
}

// VNFDTemplate returns the path of a VNFD template under the demo directory.
func (c *Config) VNFDTemplate(name string) string {
	return filepath.Join(c.DemoDir, c.VNFDDir, name)
}

// DefaultParamsFile returns the VNFD default parameters path.
func (c *Config) DefaultParamsFile() string {
	return filepath.Join(c.DemoDir, c.VNFDDir, c.VNFDDefaultParams)
}

// TackerRCPath returns where the tacker credentials file lives locally.
func (c *Config) TackerRCPath() string {
	if c.TackerRC != "" {
		return c.TackerRC
	}
	return filepath.Join(c.DemoDir, "tackerc")
}

// OVSLogDir returns the directory where OVS dumps are collected.
func (c *Config) OVSLogDir() string {
	return filepath.Join(c.DemoDir, "ovs-logs")
}

// Validate checks the fields every scenario depends on.
func (c *Config) Validate() error {
	vb := &util.ValidationBuilder{}

	switch c.Installer.Type {
	case InstallerFuel:
		vb.Add(net.ParseIP(c.Installer.IP) != nil, fmt.Sprintf("installer.ip %q is not an IP address", c.Installer.IP))
		vb.Add(c.Installer.User != "", "installer.user is required")
	case InstallerStatic:
		vb.Add(len(c.Nodes) > 0, "static installer requires at least one entry in nodes")
		for i, n := range c.Nodes {
			vb.Add(n.Name != "", fmt.Sprintf("nodes[%d].name is required", i))
			vb.Add(net.ParseIP(n.IP) != nil, fmt.Sprintf("nodes[%d].ip %q is not an IP address", i, n.IP))
			vb.Add(len(n.Roles) > 0, fmt.Sprintf("nodes[%d].roles is required", i))
		}
	default:
		vb.AddErrorf("installer.type %q is not one of %s, %s", c.Installer.Type, InstallerFuel, InstallerStatic)
	}

	if c.Controller.Endpoint != "" {
		if _, _, err := net.SplitHostPort(c.Controller.Endpoint); err != nil {
			vb.AddErrorf("controller.endpoint %q must be host:port", c.Controller.Endpoint)
		}
	}
	if _, _, err := net.ParseCIDR(c.Network.CIDR); err != nil {
		vb.AddErrorf("network.cidr %q is not a CIDR", c.Network.CIDR)
	}
	vb.Add(c.Timeouts.Convergence > 0, "timeouts.convergence must be positive")
	vb.Add(c.Timeouts.PollInterval > 0, "timeouts.poll_interval must be positive")
	vb.Add(c.Timeouts.PingRetries > 0, "timeouts.ping_retries must be positive")
	vb.Add(c.TopologySeed >= -1, "topology_seed must be -1 (fallback) or a non-negative index")

	return vb.Build()
}
