// Package verify measures how long the controller takes to render
// classification rules into the switches of the compute nodes.
//
// The verifier only reads state: it lists rendered service paths from the
// controller and dumps the classifier table of each node until every
// expected rule is present or the timeout expires. A timeout is a result,
// not an error.
package verify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/newtron-network/sfctest/pkg/ovs"
	"github.com/newtron-network/sfctest/pkg/util"
)

// Defaults applied by Options.withDefaults.
const (
	DefaultInterval = time.Second
	DefaultTimeout  = 200 * time.Second
)

// Node is a compute node whose bridge is inspected.
type Node struct {
	Name  string
	Flows ovs.FlowQuerier
}

// PathSource reports, per chain, the service path IDs the controller
// rendered for forward and for return traffic.
type PathSource interface {
	PathIDs(ctx context.Context) (forward, reverse map[string]uint32, err error)
}

// Expectation is one classification rule that must appear. DestPort selects
// the flow by tp_dst and the chain's forward path; when it is zero
// SourcePort selects by tp_src and the chain's reverse path. Nodes restricts
// the check to the named nodes; empty means all nodes.
type Expectation struct {
	Classifier string
	Chain      string
	DestPort   int
	SourcePort int
	Nodes      []string
}

func (e Expectation) String() string {
	if e.DestPort != 0 {
		return fmt.Sprintf("%s (tp_dst=%d)", e.Classifier, e.DestPort)
	}
	return fmt.Sprintf("%s (tp_src=%d)", e.Classifier, e.SourcePort)
}

func (e Expectation) reverse() bool {
	return e.DestPort == 0
}

func (e Expectation) port() int {
	if e.reverse() {
		return e.SourcePort
	}
	return e.DestPort
}

func (e Expectation) appliesTo(node string) bool {
	if len(e.Nodes) == 0 {
		return true
	}
	for _, n := range e.Nodes {
		if n == node {
			return true
		}
	}
	return false
}

// Options tune the polling loop. Zero values take the defaults.
type Options struct {
	Bridge   string
	Table    int
	Interval time.Duration
	Timeout  time.Duration
}

func (o Options) withDefaults() Options {
	if o.Bridge == "" {
		o.Bridge = ovs.DefaultBridge
	}
	if o.Table == 0 {
		o.Table = ovs.ClassifierTable
	}
	if o.Interval <= 0 {
		o.Interval = DefaultInterval
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	return o
}

// Match records the flow that satisfied an expectation on a node.
type Match struct {
	Classifier string
	Node       string
	NSP        uint32
	Flow       string
}

// Pending is an expectation not yet satisfied on a node.
type Pending struct {
	Classifier string
	Node       string
	Reason     string
}

// Result is the outcome of one convergence measurement.
type Result struct {
	Converged bool
	Started   time.Time
	Elapsed   time.Duration
	Matched   []Match
	Missing   []Pending
	Polls     int
}

// Summary is a one-line description for logs and reports.
func (r Result) Summary() string {
	if r.Converged {
		return fmt.Sprintf("classification rules converged in %s (%d polls)", r.Elapsed.Round(time.Millisecond), r.Polls)
	}
	var missing []string
	for _, p := range r.Missing {
		missing = append(missing, p.Classifier+"@"+p.Node)
	}
	return fmt.Sprintf("classification rules not converged after %s (%d polls), missing: %s",
		r.Elapsed.Round(time.Millisecond), r.Polls, strings.Join(missing, ", "))
}

// WaitForClassificationRules polls until every expectation is met on every
// node it applies to, or until opts.Timeout elapses. It returns before the
// timeout only on convergence or when ctx is cancelled. Query failures count
// as "not yet converged".
func WaitForClassificationRules(ctx context.Context, nodes []Node, paths PathSource, expectations []Expectation, opts Options) Result {
	opts = opts.withDefaults()
	res := Result{Started: time.Now()}
	deadline := res.Started.Add(opts.Timeout)
	log := util.WithOperation("convergence")

	for {
		res.Polls++
		res.Matched, res.Missing = poll(ctx, nodes, paths, expectations, opts)
		if len(res.Missing) == 0 {
			res.Converged = true
			break
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		wait := opts.Interval
		if remaining < wait {
			wait = remaining
		}
		select {
		case <-ctx.Done():
			res.Elapsed = time.Since(res.Started)
			log.Warnf("convergence watch cancelled: %v", ctx.Err())
			return res
		case <-time.After(wait):
		}
	}

	res.Elapsed = time.Since(res.Started)
	if res.Converged {
		log.Info(res.Summary())
	} else {
		log.Warn(res.Summary())
	}
	return res
}

func poll(ctx context.Context, nodes []Node, paths PathSource, expectations []Expectation, opts Options) ([]Match, []Pending) {
	var forward, reverse map[string]uint32
	if paths != nil {
		var err error
		forward, reverse, err = paths.PathIDs(ctx)
		if err != nil {
			util.WithOperation("convergence").Debugf("controller query failed: %v", err)
			return nil, pendingAll(nodes, expectations, "controller query failed")
		}
	}

	var matched []Match
	var missing []Pending
	for _, n := range nodes {
		flows, err := n.Flows.DumpFlows(ctx, opts.Bridge, opts.Table)
		if err != nil {
			util.WithNode(n.Name).Debugf("flow dump failed: %v", err)
		}
		tags := ovs.ClassificationTags(flows)
		for _, e := range expectations {
			if !e.appliesTo(n.Name) {
				continue
			}
			pending := Pending{Classifier: e.Classifier, Node: n.Name}
			if err != nil {
				pending.Reason = "flow dump failed"
				missing = append(missing, pending)
				continue
			}
			ids := forward
			if e.reverse() {
				ids = reverse
			}
			nsp, known := ids[e.Chain]
			if paths != nil && !known {
				pending.Reason = "chain not rendered"
				if e.reverse() {
					pending.Reason = "reverse path not rendered"
				}
				missing = append(missing, pending)
				continue
			}
			t, ok := ovs.FindTag(tags, e.port(), e.reverse(), nsp)
			if !ok {
				pending.Reason = "no classifier flow"
				missing = append(missing, pending)
				continue
			}
			matched = append(matched, Match{Classifier: e.Classifier, Node: n.Name, NSP: t.NSP, Flow: t.Raw})
		}
	}
	return matched, missing
}

func pendingAll(nodes []Node, expectations []Expectation, reason string) []Pending {
	var out []Pending
	for _, n := range nodes {
		for _, e := range expectations {
			if e.appliesTo(n.Name) {
				out = append(out, Pending{Classifier: e.Classifier, Node: n.Name, Reason: reason})
			}
		}
	}
	return out
}
