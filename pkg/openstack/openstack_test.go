package openstack

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/gophercloud/gophercloud/openstack/compute/v2/extensions/availabilityzones"
	th "github.com/gophercloud/gophercloud/testhelper"
	fake "github.com/gophercloud/gophercloud/testhelper/client"

	"github.com/newtron-network/sfctest/pkg/config"
	"github.com/newtron-network/sfctest/pkg/util"
)

func fakeCloud() *Cloud {
	sc := fake.ServiceClient()
	return &Cloud{Compute: sc, Network: sc, Image: sc}
}

func jsonReply(w http.ResponseWriter, status int, body string) {
	w.Header().Add("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprint(w, body)
}

func TestParseRC(t *testing.T) {
	rc := `#!/bin/bash
export OS_AUTH_URL='http://192.168.0.2:5000/v3'
export OS_USERNAME=admin
export OS_PASSWORD="s3cret"
export OS_PROJECT_NAME=admin
export OS_USER_DOMAIN_NAME=Default
export OS_PROJECT_DOMAIN_NAME=Default
OS_REGION_NAME=RegionOne
not a variable
`
	vars := ParseRC([]byte(rc))
	if vars["OS_AUTH_URL"] != "http://192.168.0.2:5000/v3" || vars["OS_PASSWORD"] != "s3cret" || vars["OS_REGION_NAME"] != "RegionOne" {
		t.Errorf("ParseRC = %v", vars)
	}

	creds, err := credentialsFromVars(vars)
	if err != nil {
		t.Fatalf("credentialsFromVars: %v", err)
	}
	if creds.Region != "RegionOne" || creds.Auth.TenantName != "admin" || creds.Auth.DomainName != "Default" {
		t.Errorf("creds = %+v", creds)
	}
	if creds.Auth.Scope == nil || creds.Auth.Scope.DomainName != "Default" {
		t.Errorf("Scope = %+v", creds.Auth.Scope)
	}
}

func TestCredentialsFromRC_Missing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tackerc")
	os.WriteFile(path, []byte("export OS_USERNAME=admin\n"), 0600)
	_, err := CredentialsFromRC(path)
	if !errors.Is(err, util.ErrValidationFailed) {
		t.Errorf("err = %v, want validation failure", err)
	}
}

func TestCredentialsFromCloudsYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clouds.yaml")
	os.WriteFile(path, []byte(`clouds:
  openstack:
    auth:
      auth_url: http://keystone:5000/v3
      username: admin
      password: admin
      project_name: admin
      user_domain_name: Default
    region_name: RegionOne
`), 0600)

	creds, err := CredentialsFromCloudsYAML(path, "openstack")
	if err != nil {
		t.Fatalf("CredentialsFromCloudsYAML: %v", err)
	}
	if creds.Auth.IdentityEndpoint != "http://keystone:5000/v3" || creds.Region != "RegionOne" {
		t.Errorf("creds = %+v", creds)
	}
	if _, err := CredentialsFromCloudsYAML(path, "other"); !errors.Is(err, util.ErrNotFound) {
		t.Errorf("unknown cloud: err = %v", err)
	}
}

func TestLoadCredentials_PrefersRC(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tackerc")
	os.WriteFile(path, []byte("export OS_AUTH_URL=http://k:5000/v3\nexport OS_USERNAME=u\nexport OS_PASSWORD=p\n"), 0600)
	creds, err := LoadCredentials(path)
	if err != nil {
		t.Fatalf("LoadCredentials: %v", err)
	}
	if creds.Auth.Username != "u" {
		t.Errorf("Username = %q", creds.Auth.Username)
	}
}

func TestGetOrCreateFlavor_Existing(t *testing.T) {
	th.SetupHTTP()
	defer th.TeardownHTTP()
	th.Mux.HandleFunc("/flavors/detail", func(w http.ResponseWriter, r *http.Request) {
		th.TestMethod(t, r, "GET")
		jsonReply(w, http.StatusOK, `{"flavors": [
			{"id": "1", "name": "m1.tiny", "ram": 512, "disk": 1, "vcpus": 1},
			{"id": "42", "name": "custom", "ram": 1500, "disk": 10, "vcpus": 1}
		]}`)
	})

	id, err := fakeCloud().GetOrCreateFlavor(config.Default().Flavor)
	th.AssertNoErr(t, err)
	th.AssertEquals(t, "42", id)
}

func TestGetOrCreateFlavor_Create(t *testing.T) {
	th.SetupHTTP()
	defer th.TeardownHTTP()
	th.Mux.HandleFunc("/flavors/detail", func(w http.ResponseWriter, r *http.Request) {
		jsonReply(w, http.StatusOK, `{"flavors": []}`)
	})
	th.Mux.HandleFunc("/flavors", func(w http.ResponseWriter, r *http.Request) {
		th.TestMethod(t, r, "POST")
		th.TestJSONRequest(t, r, `{"flavor": {"name": "custom", "ram": 1500, "vcpus": 1, "disk": 10, "os-flavor-access:is_public": true}}`)
		jsonReply(w, http.StatusOK, `{"flavor": {"id": "77", "name": "custom", "ram": 1500, "disk": 10, "vcpus": 1}}`)
	})

	id, err := fakeCloud().GetOrCreateFlavor(config.Default().Flavor)
	th.AssertNoErr(t, err)
	th.AssertEquals(t, "77", id)
}

func TestSetupNetwork(t *testing.T) {
	th.SetupHTTP()
	defer th.TeardownHTTP()

	th.Mux.HandleFunc("/networks", func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == "POST":
			th.TestJSONRequest(t, r, `{"network": {"name": "example-net", "admin_state_up": true}}`)
			jsonReply(w, http.StatusCreated, `{"network": {"id": "net-1", "name": "example-net"}}`)
		case r.URL.Query().Get("name") == "admin_floating_net":
			jsonReply(w, http.StatusOK, `{"networks": [{"id": "ext-1", "name": "admin_floating_net"}]}`)
		default:
			jsonReply(w, http.StatusOK, `{"networks": []}`)
		}
	})
	th.Mux.HandleFunc("/subnets", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == "POST" {
			th.TestJSONRequest(t, r, `{"subnet": {"network_id": "net-1", "name": "example-subnet", "cidr": "11.0.0.0/24", "ip_version": 4}}`)
			jsonReply(w, http.StatusCreated, `{"subnet": {"id": "sub-1", "network_id": "net-1", "cidr": "11.0.0.0/24"}}`)
			return
		}
		jsonReply(w, http.StatusOK, `{"subnets": []}`)
	})
	th.Mux.HandleFunc("/routers", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == "POST" {
			th.TestJSONRequest(t, r, `{"router": {"name": "example-router", "external_gateway_info": {"network_id": "ext-1"}}}`)
			jsonReply(w, http.StatusCreated, `{"router": {"id": "r-1", "name": "example-router"}}`)
			return
		}
		jsonReply(w, http.StatusOK, `{"routers": []}`)
	})
	attached := false
	th.Mux.HandleFunc("/routers/r-1/add_router_interface", func(w http.ResponseWriter, r *http.Request) {
		th.TestMethod(t, r, "PUT")
		th.TestJSONRequest(t, r, `{"subnet_id": "sub-1"}`)
		attached = true
		jsonReply(w, http.StatusOK, `{"id": "r-1", "subnet_id": "sub-1", "port_id": "p-1"}`)
	})

	id, err := fakeCloud().SetupNetwork(config.Default().Network)
	th.AssertNoErr(t, err)
	th.AssertEquals(t, "net-1", id)
	if !attached {
		t.Error("subnet was not attached to the router")
	}
}

func TestSecurityGroupID_NotFound(t *testing.T) {
	th.SetupHTTP()
	defer th.TeardownHTTP()
	th.Mux.HandleFunc("/security-groups", func(w http.ResponseWriter, r *http.Request) {
		jsonReply(w, http.StatusOK, `{"security_groups": []}`)
	})

	_, err := fakeCloud().SecurityGroupID("example-sg")
	if !errors.Is(err, util.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestCreateSecurityGroup(t *testing.T) {
	th.SetupHTTP()
	defer th.TeardownHTTP()
	th.Mux.HandleFunc("/security-groups", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == "POST" {
			th.TestJSONRequest(t, r, `{"security_group": {"name": "example-sg", "description": "Example Security group"}}`)
			jsonReply(w, http.StatusCreated, `{"security_group": {"id": "sg-1", "name": "example-sg"}}`)
			return
		}
		jsonReply(w, http.StatusOK, `{"security_groups": []}`)
	})
	rules := 0
	th.Mux.HandleFunc("/security-group-rules", func(w http.ResponseWriter, r *http.Request) {
		th.TestMethod(t, r, "POST")
		rules++
		jsonReply(w, http.StatusCreated, fmt.Sprintf(`{"security_group_rule": {"id": "rule-%d", "security_group_id": "sg-1"}}`, rules))
	})

	id, err := fakeCloud().CreateSecurityGroup(config.Default().SecurityGroup)
	th.AssertNoErr(t, err)
	th.AssertEquals(t, "sg-1", id)
	th.AssertEquals(t, len(securityGroupRules), rules)
}

func TestAddSecurityGroup(t *testing.T) {
	th.SetupHTTP()
	defer th.TeardownHTTP()
	th.Mux.HandleFunc("/servers/s1/action", func(w http.ResponseWriter, r *http.Request) {
		th.TestMethod(t, r, "POST")
		th.TestJSONRequest(t, r, `{"addSecurityGroup": {"name": "example-sg"}}`)
		w.WriteHeader(http.StatusAccepted)
	})
	th.AssertNoErr(t, fakeCloud().AddSecurityGroup("s1", "example-sg"))
}

func TestCreateInstance(t *testing.T) {
	th.SetupHTTP()
	defer th.TeardownHTTP()
	th.Mux.HandleFunc("/servers", func(w http.ResponseWriter, r *http.Request) {
		th.TestMethod(t, r, "POST")
		th.TestJSONRequest(t, r, `{"server": {
			"name": "client", "flavorRef": "42", "imageRef": "img-1",
			"networks": [{"uuid": "net-1"}], "security_groups": [{"name": "example-sg"}],
			"availability_zone": "nova::node-4"
		}}`)
		jsonReply(w, http.StatusAccepted, `{"server": {"id": "s1", "name": "client"}}`)
	})
	gets := 0
	th.Mux.HandleFunc("/servers/s1", func(w http.ResponseWriter, r *http.Request) {
		gets++
		status := "BUILD"
		if gets > 1 {
			status = "ACTIVE"
		}
		jsonReply(w, http.StatusOK, fmt.Sprintf(`{"server": {"id": "s1", "name": "client", "status": %q,
			"addresses": {"example-net": [
				{"addr": "11.0.0.5", "version": 4, "OS-EXT-IPS:type": "fixed"},
				{"addr": "172.24.4.10", "version": 4, "OS-EXT-IPS:type": "floating"}
			]}}}`, status))
	})

	inst, err := fakeCloud().CreateInstance(InstanceSpec{
		Name:          "client",
		FlavorID:      "42",
		ImageID:       "img-1",
		NetworkID:     "net-1",
		SecurityGroup: "example-sg",
		Zone:          "nova::node-4",
	}, 5*time.Second, time.Millisecond)
	th.AssertNoErr(t, err)
	want := &Instance{ID: "s1", Name: "client", Status: "ACTIVE", FixedIPs: []string{"11.0.0.5"}, FloatingIPs: []string{"172.24.4.10"}}
	if diff := cmp.Diff(want, inst); diff != "" {
		t.Errorf("instance (-want +got):\n%s", diff)
	}
}

func TestWaitForInstance_Error(t *testing.T) {
	th.SetupHTTP()
	defer th.TeardownHTTP()
	th.Mux.HandleFunc("/servers/s1", func(w http.ResponseWriter, r *http.Request) {
		jsonReply(w, http.StatusOK, `{"server": {"id": "s1", "name": "client", "status": "ERROR"}}`)
	})
	_, err := fakeCloud().WaitForInstance("s1", time.Second, time.Millisecond)
	if !errors.Is(err, util.ErrNotReady) {
		t.Errorf("err = %v, want ErrNotReady", err)
	}
}

func TestFloatingIPs(t *testing.T) {
	th.SetupHTTP()
	defer th.TeardownHTTP()
	th.Mux.HandleFunc("/floatingips", func(w http.ResponseWriter, r *http.Request) {
		jsonReply(w, http.StatusOK, `{"floatingips": [
			{"id": "f1", "floating_ip_address": "172.24.4.10", "fixed_ip_address": "11.0.0.5"},
			{"id": "f2", "floating_ip_address": "172.24.4.11", "fixed_ip_address": ""}
		]}`)
	})
	got, err := fakeCloud().FloatingIPs()
	th.AssertNoErr(t, err)
	if diff := cmp.Diff(map[string]string{"11.0.0.5": "172.24.4.10"}, got); diff != "" {
		t.Errorf("FloatingIPs (-want +got):\n%s", diff)
	}
}

func TestAssignFloatingIP(t *testing.T) {
	th.SetupHTTP()
	defer th.TeardownHTTP()
	th.Mux.HandleFunc("/networks", func(w http.ResponseWriter, r *http.Request) {
		jsonReply(w, http.StatusOK, `{"networks": [{"id": "ext-1", "name": "admin_floating_net"}]}`)
	})
	th.Mux.HandleFunc("/ports", func(w http.ResponseWriter, r *http.Request) {
		th.TestFormValues(t, r, map[string]string{"device_id": "s1"})
		jsonReply(w, http.StatusOK, `{"ports": [{"id": "port-1", "device_id": "s1"}]}`)
	})
	th.Mux.HandleFunc("/floatingips", func(w http.ResponseWriter, r *http.Request) {
		th.TestMethod(t, r, "POST")
		th.TestJSONRequest(t, r, `{"floatingip": {"floating_network_id": "ext-1", "port_id": "port-1"}}`)
		jsonReply(w, http.StatusCreated, `{"floatingip": {"id": "f1", "floating_ip_address": "172.24.4.10", "port_id": "port-1"}}`)
	})

	ip, err := fakeCloud().AssignFloatingIP("s1", "admin_floating_net")
	th.AssertNoErr(t, err)
	th.AssertEquals(t, "172.24.4.10", ip)
}

func TestComputeZones(t *testing.T) {
	up := availabilityzones.ServiceState{Active: true, Available: true}
	down := availabilityzones.ServiceState{Active: false, Available: true}
	list := []availabilityzones.AvailabilityZone{
		{
			ZoneName:  "internal",
			ZoneState: availabilityzones.ZoneState{Available: true},
			Hosts: availabilityzones.Hosts{
				"node-1.domain.tld": availabilityzones.Services{"nova-conductor": up},
			},
		},
		{
			ZoneName:  "nova",
			ZoneState: availabilityzones.ZoneState{Available: true},
			Hosts: availabilityzones.Hosts{
				"node-5.domain.tld": availabilityzones.Services{"nova-compute": up},
				"node-4.domain.tld": availabilityzones.Services{"nova-compute": up},
				"node-6.domain.tld": availabilityzones.Services{"nova-compute": down},
			},
		},
	}
	want := []string{"nova::node-4.domain.tld", "nova::node-5.domain.tld"}
	if diff := cmp.Diff(want, computeZones(list)); diff != "" {
		t.Errorf("computeZones (-want +got):\n%s", diff)
	}
}

func TestDownloadImage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/images/sfc.qcow2" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("QFI\xfb"))
	}))
	defer srv.Close()

	img := config.Image{File: "sfc.qcow2", URL: srv.URL + "/images", Dir: t.TempDir()}
	if err := DownloadImage(context.Background(), img); err != nil {
		t.Fatalf("DownloadImage: %v", err)
	}
	data, err := os.ReadFile(img.Path())
	if err != nil || string(data) != "QFI\xfb" {
		t.Errorf("image = %q, %v", data, err)
	}

	// A second call finds the file and does not download again.
	srv.Close()
	if err := DownloadImage(context.Background(), img); err != nil {
		t.Errorf("cached DownloadImage: %v", err)
	}

	missing := config.Image{File: "nope.qcow2", URL: "http://127.0.0.1:1", Dir: t.TempDir()}
	if err := DownloadImage(context.Background(), missing); err == nil {
		t.Error("expected error for unreachable URL")
	}
}
