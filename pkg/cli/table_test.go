package cli

import (
	"bytes"
	"testing"
)

func TestTable_Empty(t *testing.T) {
	var buf bytes.Buffer
	tbl := NewTable(&buf, "NODE", "TABLE", "FLOWS")
	if err := tbl.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if buf.Len() != 0 {
		t.Errorf("empty table wrote %q", buf.String())
	}
}

func TestTable_Rows(t *testing.T) {
	var buf bytes.Buffer
	tbl := NewTable(&buf, "NODE", "TP_DST", "NSP")
	tbl.Row("node-4", "80", "0x2f")
	tbl.Rowf("node-5", 22, "0x30")
	if err := tbl.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	want := "NODE    TP_DST  NSP\n" +
		"----    ------  ---\n" +
		"node-4  80      0x2f\n" +
		"node-5  22      0x30\n"
	if got := buf.String(); got != want {
		t.Errorf("got:\n%s\nwant:\n%s", got, want)
	}
}

func TestTable_Prefix(t *testing.T) {
	var buf bytes.Buffer
	tbl := NewTable(&buf, "A", "B").WithPrefix("  ")
	tbl.Row("1", "2")
	tbl.Flush()

	want := "  A  B\n  -  -\n  1  2\n"
	if got := buf.String(); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
