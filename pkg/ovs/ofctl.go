package ovs

import (
	"context"
	"fmt"

	"github.com/newtron-network/sfctest/pkg/remote"
	"github.com/newtron-network/sfctest/pkg/util"
)

// DefaultBridge is the integration bridge carrying tenant traffic.
const DefaultBridge = "br-int"

// ClassifierTable is the OpenFlow table holding SFC classification rules.
const ClassifierTable = 11

// AllTables asks DumpFlows for every table.
const AllTables = -1

// FlowQuerier returns the flows installed on a bridge. It never modifies
// switch state.
type FlowQuerier interface {
	DumpFlows(ctx context.Context, bridge string, table int) ([]Flow, error)
}

// OfctlQuerier implements FlowQuerier by running ovs-ofctl over a Commander
// and parsing its text output.
type OfctlQuerier struct {
	Host remote.Commander
	User string // remote login user, used to decide on sudo
}

// NewOfctlQuerier returns a querier running commands on host as user.
func NewOfctlQuerier(host remote.Commander, user string) *OfctlQuerier {
	return &OfctlQuerier{Host: host, User: user}
}

// DumpFlows implements FlowQuerier.
func (q *OfctlQuerier) DumpFlows(ctx context.Context, bridge string, table int) ([]Flow, error) {
	out, err := q.DumpRaw(ctx, bridge, table)
	if err != nil {
		return nil, err
	}
	return ParseFlowDump(out), nil
}

// DumpRaw returns the unparsed dump-flows output.
func (q *OfctlQuerier) DumpRaw(ctx context.Context, bridge string, table int) (string, error) {
	res, err := q.Host.Run(ctx, util.Sudo(q.User, dumpFlowsCmd(bridge, table)))
	if err != nil {
		return "", fmt.Errorf("ovs: dump-flows %s: %w", bridge, err)
	}
	return res.Stdout, nil
}

// AddFlow installs one flow on bridge.
func (q *OfctlQuerier) AddFlow(ctx context.Context, bridge, flow string) error {
	cmd := fmt.Sprintf("ovs-ofctl -O OpenFlow13 add-flow %s %s", bridge, util.SingleQuote(flow))
	if _, err := q.Host.Run(ctx, util.Sudo(q.User, cmd)); err != nil {
		return fmt.Errorf("ovs: add-flow %s: %w", bridge, err)
	}
	return nil
}

func dumpFlowsCmd(bridge string, table int) string {
	cmd := "ovs-ofctl -O OpenFlow13 dump-flows " + bridge
	if table >= 0 {
		cmd += fmt.Sprintf(" table=%d", table)
	}
	return cmd
}

// ReverseClassifierFlow builds a classifier flow for return traffic: TCP
// from srcPort is tagged with the reverse path ID and resubmitted to the
// next table.
func ReverseClassifierFlow(table, srcPort int, nsp uint32) string {
	return fmt.Sprintf("table=%d,priority=1000,tcp,tp_src=%d,actions=load:%#x->NXM_NX_NSP[0..23],resubmit(,%d)",
		table, srcPort, nsp, table+1)
}
