package scenario

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/newtron-network/sfctest/pkg/ovs"
	"github.com/newtron-network/sfctest/pkg/traffic"
)

// Defaults filled in by applyDefaults.
const (
	defaultHTTPPort = 80
	protocolTCP     = 6
)

var scenarioExts = []string{".yaml", ".yml"}

func isScenarioFile(e os.DirEntry) bool {
	return !e.IsDir() && slices.Contains(scenarioExts, filepath.Ext(e.Name()))
}

func stem(file string) string {
	return strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
}

// ParseScenario reads and validates one scenario file. A scenario without a
// name: field is named after its file.
func ParseScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario %s: %w", path, err)
	}
	return parseScenario(path, data)
}

func parseScenario(path string, data []byte) (*Scenario, error) {
	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing scenario %s: %w", path, err)
	}
	if s.Name == "" {
		s.Name = stem(path)
	}
	applyDefaults(&s)
	if err := s.validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *Scenario) validate() error {
	if len(s.Steps) == 0 {
		return fmt.Errorf("scenario %s: no steps", s.Name)
	}
	for i := range s.Steps {
		step := &s.Steps[i]
		if err := step.validate(); err != nil {
			return fmt.Errorf("scenario %s step %d (%s): %w", s.Name, i, step.Name, err)
		}
	}
	return nil
}

// ParseAllScenarios parses every scenario file of dir, in file name order.
func ParseAllScenarios(dir string) ([]*Scenario, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading scenarios dir %s: %w", dir, err)
	}
	var scenarios []*Scenario
	for _, e := range entries {
		if !isScenarioFile(e) {
			continue
		}
		s, err := ParseScenario(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

// validate checks the fields the step's action depends on.
func (s *Step) validate() error {
	if !validActions[s.Action] {
		return fmt.Errorf("unknown action %q", s.Action)
	}

	var missing []string
	need := func(field string, set bool) {
		if !set {
			missing = append(missing, field)
		}
	}

	switch s.Action {
	case ActionWait:
		need("duration", s.Duration > 0)
	case ActionCreateInstance:
		if s.Instance != TargetClient && s.Instance != TargetServer {
			return fmt.Errorf("instance must be %q or %q", TargetClient, TargetServer)
		}
	case ActionCreateVNFD:
		need("vnfd", s.VNFD != "")
		need("template", s.Template != "")
	case ActionCreateVNF:
		need("vnf", s.VNF != "")
		need("vnfd", s.VNFD != "")
	case ActionWaitVNF:
		need("vnfs", len(s.VNFs) > 0)
	case ActionCreateChain:
		need("chain", s.Chain != "")
		need("vnfs", len(s.VNFs) > 0)
	case ActionCreateClassifier:
		need("classifier", s.Classifier != "")
		need("chain", s.Chain != "")
		need("match", s.Match != nil)
		if s.Match != nil && s.Match.SourcePort == 0 && s.Match.DestPort == 0 {
			return errors.New("match needs source_port or dest_port")
		}
	case ActionStartConvergenceWatch:
		for i, r := range s.Rules {
			if r.Classifier == "" {
				return fmt.Errorf("rules[%d].classifier is required", i)
			}
			if r.DestPort == 0 && r.SourcePort == 0 {
				return fmt.Errorf("rules[%d] needs dest_port or source_port", i)
			}
		}
	case ActionAssignFloatingIPs, ActionVerifyReachable, ActionVerifySSH:
		need("targets", len(s.Targets) > 0)
	case ActionStartHTTPServer, ActionStartFirewall:
		need("target", s.Target != "")
	case ActionInstallReverseFlows:
		need("chain", s.Chain != "")
		need("port", s.Port > 0)
	case ActionVerifyTraffic:
		need("source", s.Source != "")
		need("target", s.Target != "")
		need("expect", len(s.Expect) > 0)
		for i, e := range s.Expect {
			if _, err := traffic.ParseOutcome(e.Outcome); err != nil {
				return fmt.Errorf("expect[%d]: %w", i, err)
			}
			if e.Port <= 0 || e.Port > 65535 {
				return fmt.Errorf("expect[%d]: port %d out of range", i, e.Port)
			}
		}
	}

	switch len(missing) {
	case 0:
		return nil
	case 1:
		return fmt.Errorf("%s is required", missing[0])
	}
	return fmt.Errorf("%s are required", strings.Join(missing, ", "))
}

// applyDefaults fills in omitted step fields.
func applyDefaults(s *Scenario) {
	for i := range s.Steps {
		step := &s.Steps[i]
		if step.Name == "" {
			step.Name = string(step.Action)
		}
		switch step.Action {
		case ActionCreateClassifier:
			if step.Match != nil && step.Match.Protocol == 0 {
				step.Match.Protocol = protocolTCP
			}
		case ActionStartConvergenceWatch, ActionDumpClassifierFlows:
			if step.Table == 0 {
				step.Table = ovs.ClassifierTable
			}
		case ActionStartHTTPServer:
			if step.Port == 0 {
				step.Port = defaultHTTPPort
			}
		case ActionVerifyTraffic:
			for j := range step.Expect {
				if step.Expect[j].Protocol == "" {
					step.Expect[j].Protocol = "tcp"
				}
			}
		}
	}
}

// ValidateDependencyGraph checks the requires: references and returns the
// scenarios ordered so that each one comes after everything it requires.
// Unrelated scenarios keep their input order.
func ValidateDependencyGraph(scenarios []*Scenario) ([]*Scenario, error) {
	byName := make(map[string]*Scenario, len(scenarios))
	for _, s := range scenarios {
		if _, dup := byName[s.Name]; dup {
			return nil, fmt.Errorf("duplicate scenario name: %s", s.Name)
		}
		byName[s.Name] = s
	}
	for _, s := range scenarios {
		for _, req := range s.Requires {
			if req == s.Name {
				return nil, fmt.Errorf("scenario %s requires itself", s.Name)
			}
			if byName[req] == nil {
				return nil, fmt.Errorf("scenario %s requires unknown scenario %q", s.Name, req)
			}
		}
	}

	const (
		visiting = 1
		done     = 2
	)
	mark := make(map[string]int, len(scenarios))
	sorted := make([]*Scenario, 0, len(scenarios))
	var path []string

	var visit func(s *Scenario) error
	visit = func(s *Scenario) error {
		switch mark[s.Name] {
		case done:
			return nil
		case visiting:
			start := slices.Index(path, s.Name)
			return fmt.Errorf("dependency cycle: %s", strings.Join(append(path[start:], s.Name), " -> "))
		}
		mark[s.Name] = visiting
		path = append(path, s.Name)
		for _, req := range s.Requires {
			if err := visit(byName[req]); err != nil {
				return err
			}
		}
		path = path[:len(path)-1]
		mark[s.Name] = done
		sorted = append(sorted, s)
		return nil
	}
	for _, s := range scenarios {
		if err := visit(s); err != nil {
			return nil, err
		}
	}
	return sorted, nil
}

// resolveScenarioPath finds the file of a scenario name in dir: <name>.yaml,
// then a single numbered file such as 02-<name>.yaml, then the one file whose
// name: field matches.
func resolveScenarioPath(dir, name string) (string, error) {
	for _, ext := range scenarioExts {
		path := filepath.Join(dir, name+ext)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("scenario %q not found: %w", name, err)
	}

	var numbered, named []string
	for _, e := range entries {
		if !isScenarioFile(e) {
			continue
		}
		path := filepath.Join(dir, e.Name())
		if strings.HasSuffix(stem(e.Name()), "-"+name) {
			numbered = append(numbered, path)
		}
		if s, err := ParseScenario(path); err == nil && s.Name == name {
			named = append(named, path)
		}
	}

	for _, candidates := range [][]string{numbered, named} {
		switch len(candidates) {
		case 0:
			continue
		case 1:
			return candidates[0], nil
		}
		return "", fmt.Errorf("ambiguous scenario name %q: found in %s and %s",
			name, filepath.Base(candidates[0]), filepath.Base(candidates[1]))
	}
	return "", fmt.Errorf("scenario %q not found in %s", name, dir)
}
