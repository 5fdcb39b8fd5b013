// Package openstack wraps the OpenStack APIs the testbed scenarios use:
// flavors, images, networks, security groups, servers, floating IPs and
// availability zones. Credentials come from the environment, an rc file or
// clouds.yaml.
package openstack

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/gophercloud/gophercloud"
	"github.com/gophercloud/gophercloud/openstack"
	"gopkg.in/yaml.v3"

	"github.com/newtron-network/sfctest/pkg/util"
)

// Credentials are resolved auth options plus the region to use.
type Credentials struct {
	Auth   gophercloud.AuthOptions
	Region string
}

// CredentialsFromEnv reads the standard OS_* variables.
func CredentialsFromEnv() (*Credentials, error) {
	opts, err := openstack.AuthOptionsFromEnv()
	if err != nil {
		return nil, fmt.Errorf("openstack: credentials from env: %w", err)
	}
	return &Credentials{Auth: opts, Region: os.Getenv("OS_REGION_NAME")}, nil
}

// ParseRC reads "export KEY=value" lines from an rc file such as tackerc.
// Quotes around values are removed; other lines are ignored.
func ParseRC(data []byte) map[string]string {
	vars := make(map[string]string)
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		line = strings.TrimPrefix(line, "export ")
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		vars[strings.TrimSpace(key)] = strings.Trim(strings.TrimSpace(val), `"'`)
	}
	return vars
}

// CredentialsFromRC loads an rc file.
func CredentialsFromRC(path string) (*Credentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("openstack: %w", err)
	}
	return credentialsFromVars(ParseRC(data))
}

func credentialsFromVars(v map[string]string) (*Credentials, error) {
	project := v["OS_PROJECT_NAME"]
	if project == "" {
		project = v["OS_TENANT_NAME"]
	}
	userDomain := v["OS_USER_DOMAIN_NAME"]
	opts := gophercloud.AuthOptions{
		IdentityEndpoint: v["OS_AUTH_URL"],
		Username:         v["OS_USERNAME"],
		Password:         v["OS_PASSWORD"],
		TenantName:       project,
		TenantID:         v["OS_PROJECT_ID"],
		DomainName:       userDomain,
	}
	if pd := v["OS_PROJECT_DOMAIN_NAME"]; pd != "" && project != "" {
		opts.Scope = &gophercloud.AuthScope{ProjectName: project, DomainName: pd}
	}
	if err := checkAuth(opts); err != nil {
		return nil, err
	}
	return &Credentials{Auth: opts, Region: v["OS_REGION_NAME"]}, nil
}

type cloudsFile struct {
	Clouds map[string]struct {
		Auth struct {
			AuthURL           string `yaml:"auth_url"`
			Password          string `yaml:"password"`
			ProjectID         string `yaml:"project_id"`
			ProjectName       string `yaml:"project_name"`
			ProjectDomainName string `yaml:"project_domain_name"`
			UserDomainName    string `yaml:"user_domain_name"`
			Username          string `yaml:"username"`
		} `yaml:"auth"`
		RegionName string `yaml:"region_name"`
	} `yaml:"clouds"`
}

// CredentialsFromCloudsYAML loads the named cloud of a clouds.yaml file.
func CredentialsFromCloudsYAML(path, cloud string) (*Credentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("openstack: %w", err)
	}
	var f cloudsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("openstack: parsing %s: %w", path, err)
	}
	c, ok := f.Clouds[cloud]
	if !ok {
		return nil, fmt.Errorf("openstack: cloud %q not in %s: %w", cloud, path, util.ErrNotFound)
	}
	return credentialsFromVars(map[string]string{
		"OS_AUTH_URL":            c.Auth.AuthURL,
		"OS_USERNAME":            c.Auth.Username,
		"OS_PASSWORD":            c.Auth.Password,
		"OS_PROJECT_NAME":        c.Auth.ProjectName,
		"OS_PROJECT_ID":          c.Auth.ProjectID,
		"OS_USER_DOMAIN_NAME":    c.Auth.UserDomainName,
		"OS_PROJECT_DOMAIN_NAME": c.Auth.ProjectDomainName,
		"OS_REGION_NAME":         c.RegionName,
	})
}

// LoadCredentials tries, in order, the rc file at rcPath, a clouds.yaml
// named by OS_CLIENT_CONFIG_FILE (cloud OS_CLOUD, default "openstack"), and
// the environment.
func LoadCredentials(rcPath string) (*Credentials, error) {
	if rcPath != "" {
		if _, err := os.Stat(rcPath); err == nil {
			return CredentialsFromRC(rcPath)
		}
	}
	if path := os.Getenv("OS_CLIENT_CONFIG_FILE"); path != "" {
		cloud := os.Getenv("OS_CLOUD")
		if cloud == "" {
			cloud = "openstack"
		}
		return CredentialsFromCloudsYAML(path, cloud)
	}
	return CredentialsFromEnv()
}

func checkAuth(opts gophercloud.AuthOptions) error {
	v := &util.ValidationBuilder{}
	v.Add(opts.IdentityEndpoint != "", "OS_AUTH_URL is not set")
	v.Add(opts.Username != "", "OS_USERNAME is not set")
	v.Add(opts.Password != "", "OS_PASSWORD is not set")
	if err := v.Build(); err != nil {
		return fmt.Errorf("openstack: %w", err)
	}
	return nil
}
