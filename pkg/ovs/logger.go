package ovs

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/newtron-network/sfctest/pkg/remote"
	"github.com/newtron-network/sfctest/pkg/util"
)

// Logger captures OVS state of compute nodes into a directory and archives
// it next to the run results.
type Logger struct {
	Dir        string
	ResultsDir string
}

// NewLogger returns a logger writing dumps under dir and archives under
// resultsDir.
func NewLogger(dir, resultsDir string) *Logger {
	return &Logger{Dir: dir, ResultsDir: resultsDir}
}

var ovsStateCommands = []struct {
	file string
	cmd  string
}{
	{"ofctl-flows.txt", "ovs-ofctl -O OpenFlow13 dump-flows " + DefaultBridge},
	{"ofctl-ports.txt", "ovs-ofctl -O OpenFlow13 dump-ports-desc " + DefaultBridge},
	{"vsctl-show.txt", "ovs-vsctl show"},
	{"ovs-vswitchd.log", "tail -n 2000 /var/log/openvswitch/ovs-vswitchd.log"},
}

// DumpNode writes the OVS state of one node into Dir/<node>/. Individual
// command failures are logged and skipped.
func (l *Logger) DumpNode(ctx context.Context, node string, host remote.Commander, user string) error {
	dir := filepath.Join(l.Dir, node)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("ovs: create log dir: %w", err)
	}
	for _, c := range ovsStateCommands {
		res, err := host.Run(ctx, util.Sudo(user, c.cmd))
		if err != nil {
			util.WithNode(node).Warnf("ovs log: %s: %v", c.cmd, err)
			continue
		}
		if err := os.WriteFile(filepath.Join(dir, c.file), []byte(res.Stdout), 0644); err != nil {
			return fmt.Errorf("ovs: write %s: %w", c.file, err)
		}
	}
	return nil
}

// CreateArchive packs Dir into ResultsDir/ovs-logs-<timestamp>.tar.gz and
// returns the archive path.
func (l *Logger) CreateArchive(now time.Time) (string, error) {
	if err := os.MkdirAll(l.ResultsDir, 0755); err != nil {
		return "", fmt.Errorf("ovs: create results dir: %w", err)
	}
	path := filepath.Join(l.ResultsDir, "ovs-logs-"+now.Format("20060102-150405")+".tar.gz")
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("ovs: create archive: %w", err)
	}
	defer f.Close()

	if err := writeTGZ(f, os.DirFS(l.Dir)); err != nil {
		return "", fmt.Errorf("ovs: archive %s: %w", l.Dir, err)
	}
	return path, f.Close()
}

func writeTGZ(w io.Writer, fsys fs.FS) error {
	gz := gzip.NewWriter(w)
	tw := tar.NewWriter(gz)

	err := fs.WalkDir(fsys, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == "." {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		header, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		header.Name = path
		if err := tw.WriteHeader(header); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		file, err := fsys.Open(path)
		if err != nil {
			return err
		}
		defer file.Close()
		_, err = io.Copy(tw, file)
		return err
	})
	if err != nil {
		return err
	}
	if err := tw.Close(); err != nil {
		return err
	}
	return gz.Close()
}
