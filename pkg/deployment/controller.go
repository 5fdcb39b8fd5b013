package deployment

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"

	"gopkg.in/ini.v1"

	"github.com/newtron-network/sfctest/pkg/util"
)

// ML2ConfPath is where neutron keeps the ML2 plugin configuration.
const ML2ConfPath = "/etc/neutron/plugins/ml2/ml2_conf.ini"

// ControllerEndpoint finds the SDN controller northbound address (ip:port)
// from the ml2_odl section of the first controller node that has one.
func ControllerEndpoint(ctx context.Context, nodes []*Node) (ip, port string, err error) {
	controllers := Controllers(nodes)
	if len(controllers) == 0 {
		return "", "", fmt.Errorf("deployment: no controller node: %w", util.ErrNotFound)
	}
	var lastErr error
	for _, n := range controllers {
		res, err := n.Run(ctx, "cat "+ML2ConfPath)
		if err != nil {
			lastErr = err
			continue
		}
		ip, port, err := ParseML2ODLURL([]byte(res.Stdout))
		if err != nil {
			lastErr = err
			continue
		}
		util.WithNode(n.String()).Infof("OpenDaylight endpoint %s:%s", ip, port)
		return ip, port, nil
	}
	return "", "", fmt.Errorf("deployment: controller endpoint: %w", lastErr)
}

// ParseML2ODLURL extracts host and port of [ml2_odl] url from ml2_conf.ini
// content.
func ParseML2ODLURL(data []byte) (ip, port string, err error) {
	f, err := ini.Load(data)
	if err != nil {
		return "", "", fmt.Errorf("parse ml2 config: %w", err)
	}
	raw := f.Section("ml2_odl").Key("url").String()
	if raw == "" {
		return "", "", fmt.Errorf("ml2_odl url not set: %w", util.ErrNotFound)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("ml2_odl url %q: %w", raw, err)
	}
	host, p, err := net.SplitHostPort(u.Host)
	if err != nil {
		return "", "", fmt.Errorf("ml2_odl url %q has no port: %w", raw, err)
	}
	return host, p, nil
}

// WriteODLRC writes shell exports for the controller address.
func WriteODLRC(path, ip, port string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	content := fmt.Sprintf("export ODL_IP=%s\nexport ODL_PORT=%s\n", ip, port)
	return os.WriteFile(path, []byte(content), 0644)
}
