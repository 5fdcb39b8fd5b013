// Package ovs reads and writes OpenFlow state on Open vSwitch bridges of
// compute nodes through ovs-ofctl, and collects OVS logs for failed runs.
package ovs

import (
	"regexp"
	"strconv"
	"strings"
)

// Flow is one entry of an ovs-ofctl dump-flows listing.
type Flow struct {
	Table    int
	Priority int
	Match    map[string]string // flag fields such as "tcp" map to ""
	Actions  []string
	Raw      string
}

// Fields reported by dump-flows that are statistics rather than match criteria.
var statFields = map[string]bool{
	"cookie":       true,
	"duration":     true,
	"table":        true,
	"n_packets":    true,
	"n_bytes":      true,
	"idle_age":     true,
	"hard_age":     true,
	"idle_timeout": true,
	"hard_timeout": true,
	"priority":     true,
	"reset_counts": true,
}

// ParseFlowDump parses dump-flows output. Older ovs-ofctl releases start the
// listing with an "OFPST_FLOW reply" header, which is dropped, so N lines with
// a header yield at most N-1 flows. Other lines that are not flows are ignored.
func ParseFlowDump(out string) []Flow {
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if isReplyHeader(lines[0]) {
		lines = lines[1:]
	}
	var flows []Flow
	for _, line := range lines {
		if f, ok := ParseFlow(line); ok {
			flows = append(flows, f)
		}
	}
	return flows
}

func isReplyHeader(line string) bool {
	if strings.Contains(line, "reply") {
		return true
	}
	_, ok := ParseFlow(line)
	return !ok
}

// ParseFlow parses a single dump-flows line.
func ParseFlow(line string) (Flow, bool) {
	raw := strings.TrimSpace(line)
	idx := strings.Index(raw, "actions=")
	if idx < 0 {
		return Flow{}, false
	}
	f := Flow{Raw: raw, Match: map[string]string{}}

	head := strings.TrimSpace(raw[:idx])
	for _, tok := range strings.Split(head, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		key, val, _ := strings.Cut(tok, "=")
		switch {
		case key == "table":
			f.Table, _ = strconv.Atoi(val)
		case key == "priority":
			f.Priority, _ = strconv.Atoi(val)
		case statFields[key]:
		default:
			f.Match[key] = val
		}
	}
	f.Actions = splitActions(raw[idx+len("actions="):])
	return f, true
}

// splitActions splits an action list on commas outside parentheses, so
// "resubmit(,12)" and "ct(commit,zone=1)" stay whole.
func splitActions(s string) []string {
	var actions []string
	depth, start := 0, 0
	for i, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				if a := strings.TrimSpace(s[start:i]); a != "" {
					actions = append(actions, a)
				}
				start = i + 1
			}
		}
	}
	if a := strings.TrimSpace(s[start:]); a != "" {
		actions = append(actions, a)
	}
	return actions
}

var nspLoad = regexp.MustCompile(`^load:(0x[0-9a-fA-F]+)->NXM_NX_NSP\[0\.\.23\]$`)

// NSP returns the service path ID the flow loads into NXM_NX_NSP[0..23].
func (f Flow) NSP() (uint32, bool) {
	for _, a := range f.Actions {
		if m := nspLoad.FindStringSubmatch(a); m != nil {
			v, err := strconv.ParseUint(m[1], 0, 32)
			if err != nil {
				return 0, false
			}
			return uint32(v), true
		}
	}
	return 0, false
}

// DestPort returns the L4 destination port the flow matches.
func (f Flow) DestPort() (int, bool) {
	return f.port("tp_dst", "tcp_dst")
}

// SourcePort returns the L4 source port the flow matches.
func (f Flow) SourcePort() (int, bool) {
	return f.port("tp_src", "tcp_src")
}

func (f Flow) port(keys ...string) (int, bool) {
	for _, k := range keys {
		if v, ok := f.Match[k]; ok {
			p, err := strconv.Atoi(v)
			if err != nil {
				return 0, false
			}
			return p, true
		}
	}
	return 0, false
}
