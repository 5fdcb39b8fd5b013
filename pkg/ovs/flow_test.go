package ovs

import (
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

const table11Dump = `OFPST_FLOW reply (OF1.3) (xid=0x2):
 cookie=0x0, duration=43.118s, table=11, n_packets=0, n_bytes=0, priority=1000,tcp,reg0=0x1,tp_dst=80 actions=load:0x27->NXM_NX_NSP[0..23],load:0xff->NXM_NX_NSI[],resubmit(,12)
 cookie=0x0, duration=43.020s, table=11, n_packets=3, n_bytes=222, priority=1000,tcp,reg0=0x1,tp_dst=22 actions=load:0x28->NXM_NX_NSP[0..23],load:0xff->NXM_NX_NSI[],resubmit(,12)
 cookie=0x8000000, duration=302.5s, table=11, n_packets=12, n_bytes=840, priority=0 actions=goto_table:21
`

func TestParseFlow(t *testing.T) {
	line := " cookie=0x0, duration=43.118s, table=11, n_packets=0, n_bytes=0, priority=1000,tcp,reg0=0x1,tp_dst=80 actions=load:0x27->NXM_NX_NSP[0..23],load:0xff->NXM_NX_NSI[],resubmit(,12)"
	f, ok := ParseFlow(line)
	if !ok {
		t.Fatal("ParseFlow returned !ok")
	}
	want := Flow{
		Table:    11,
		Priority: 1000,
		Match:    map[string]string{"tcp": "", "reg0": "0x1", "tp_dst": "80"},
		Actions:  []string{"load:0x27->NXM_NX_NSP[0..23]", "load:0xff->NXM_NX_NSI[]", "resubmit(,12)"},
		Raw:      strings.TrimSpace(line),
	}
	if diff := cmp.Diff(want, f); diff != "" {
		t.Errorf("ParseFlow mismatch (-want +got):\n%s", diff)
	}

	nsp, ok := f.NSP()
	if !ok || nsp != 0x27 {
		t.Errorf("NSP() = %#x, %v; want 0x27, true", nsp, ok)
	}
	port, ok := f.DestPort()
	if !ok || port != 80 {
		t.Errorf("DestPort() = %d, %v; want 80, true", port, ok)
	}
	if _, ok := f.SourcePort(); ok {
		t.Error("SourcePort() should be absent")
	}
}

func TestParseFlow_NotAFlow(t *testing.T) {
	for _, line := range []string{"", "OFPST_FLOW reply (OF1.3) (xid=0x2):", "garbage"} {
		if _, ok := ParseFlow(line); ok {
			t.Errorf("ParseFlow(%q) should fail", line)
		}
	}
}

func TestParseFlowDump(t *testing.T) {
	flows := ParseFlowDump(table11Dump)
	if len(flows) != 3 {
		t.Fatalf("got %d flows, want 3", len(flows))
	}
	if flows[2].Priority != 0 || len(flows[2].Match) != 0 {
		t.Errorf("default flow = %+v", flows[2])
	}
	if _, ok := flows[2].NSP(); ok {
		t.Error("default flow has no NSP")
	}
}

func TestParseFlowDump_Header(t *testing.T) {
	const header = "OFPST_FLOW reply (OF1.3) (xid=0x2):"
	flow := " cookie=0x0, table=11, priority=1 actions=drop"
	for n := 1; n <= 5; n++ {
		lines := []string{header}
		for i := 1; i < n; i++ {
			lines = append(lines, flow)
		}
		if got := ParseFlowDump(strings.Join(lines, "\n")); len(got) != n-1 {
			t.Errorf("header + %d flows: got %d flows, want %d", n-1, len(got), n-1)
		}
	}
}

func TestParseFlowDump_NoHeader(t *testing.T) {
	flow := " cookie=0x0, table=11, priority=1 actions=drop"
	for n := 0; n <= 5; n++ {
		lines := make([]string, n)
		for i := range lines {
			lines[i] = flow
		}
		if got := ParseFlowDump(strings.Join(lines, "\n")); len(got) != n {
			t.Errorf("%d flows without header: got %d", n, len(got))
		}
	}
}

func TestParseFlowDump_SingleClassifierWithoutHeader(t *testing.T) {
	dump := " cookie=0x0, duration=2.1s, table=11, n_packets=0, n_bytes=0, priority=1000,tcp,reg0=0x1,tp_dst=80 actions=load:0x27->NXM_NX_NSP[0..23],load:0xff->NXM_NX_NSI[],resubmit(,12)\n"
	tags := ClassificationTags(ParseFlowDump(dump))
	if len(tags) != 1 || tags[0].Port != 80 || tags[0].NSP != 0x27 {
		t.Errorf("tags = %+v, want tp_dst=80 nsp=0x27", tags)
	}
}

func TestParseFlowDump_Pure(t *testing.T) {
	a := ParseFlowDump(table11Dump)
	b := ParseFlowDump(table11Dump)
	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("parsing the same input twice differs:\n%s", diff)
	}
}

func TestSplitActions(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"drop", []string{"drop"}},
		{"resubmit(,12),goto_table:21", []string{"resubmit(,12)", "goto_table:21"}},
		{"ct(commit,zone=1),output:2", []string{"ct(commit,zone=1)", "output:2"}},
		{"", nil},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, splitActions(tt.in)); diff != "" {
				t.Errorf("splitActions(%q) (-want +got):\n%s", tt.in, diff)
			}
		})
	}
}

func TestClassificationTags(t *testing.T) {
	dump := table11Dump + ReverseClassifierFlow(11, 80, 0x29) + "\n"
	tags := ClassificationTags(ParseFlowDump(dump))
	want := []ClassificationTag{
		{Port: 80, NSP: 0x27},
		{Port: 22, NSP: 0x28},
		{Port: 80, Reverse: true, NSP: 0x29},
	}
	if diff := cmp.Diff(want, tags, cmpopts.IgnoreFields(ClassificationTag{}, "Raw")); diff != "" {
		t.Errorf("ClassificationTags (-want +got):\n%s", diff)
	}
	if tags[0].Raw == "" {
		t.Error("Raw should hold the flow line")
	}
	if got := tags[2].String(); got != "tp_src=80 nsp=0x29" {
		t.Errorf("String() = %q", got)
	}
}

func TestFindTag(t *testing.T) {
	tags := []ClassificationTag{
		{Port: 80, NSP: 39},
		{Port: 80, NSP: 40},
		{Port: 22, NSP: 41},
		{Port: 80, Reverse: true, NSP: 42},
	}
	tests := []struct {
		port    int
		reverse bool
		nsp     uint32
		wantNSP uint32
		wantOK  bool
	}{
		{80, false, 0, 39, true},
		{80, false, 40, 40, true},
		{22, false, 0, 41, true},
		{22, false, 39, 0, false},
		{443, false, 0, 0, false},
		{80, true, 0, 42, true},
		{80, true, 39, 0, false},
		{22, true, 0, 0, false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d/%v/%d", tt.port, tt.reverse, tt.nsp), func(t *testing.T) {
			got, ok := FindTag(tags, tt.port, tt.reverse, tt.nsp)
			if ok != tt.wantOK || got.NSP != tt.wantNSP {
				t.Errorf("FindTag = %+v, %v; want nsp %d, %v", got, ok, tt.wantNSP, tt.wantOK)
			}
		})
	}
}
