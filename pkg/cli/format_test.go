package cli

import (
	"strings"
	"testing"
)

func TestDotPad(t *testing.T) {
	tests := []struct {
		name  string
		width int
		want  string
	}{
		{"basic", 12, "basic ......"},
		{"create-endpoints", 22, "create-endpoints ....."},
		{"abcde", 7, "abcde ."},
		{"abcde", 6, "abcde"},
		{"advanced", 4, "advanced"},
		{"", 3, " .."},
		{"", 0, ""},
	}
	for _, tt := range tests {
		if got := DotPad(tt.name, tt.width); got != tt.want {
			t.Errorf("DotPad(%q, %d) = %q, want %q", tt.name, tt.width, got, tt.want)
		}
	}
}

func TestDotPad_AlignsColumn(t *testing.T) {
	for _, name := range []string{"basic", "advanced", "create-endpoints"} {
		if got := DotPad(name, 22); len(got) != 22 {
			t.Errorf("DotPad(%q, 22) has length %d", name, len(got))
		}
	}
}

func TestColors(t *testing.T) {
	saved := ColorEnabled
	t.Cleanup(func() { ColorEnabled = saved })

	tests := []struct {
		name string
		fn   func(string) string
		code string
	}{
		{"green", Green, ansiGreen},
		{"yellow", Yellow, ansiYellow},
		{"red", Red, ansiRed},
		{"dim", Dim, ansiDim},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ColorEnabled = true
			if got := tt.fn("PASS"); got != tt.code+"PASS"+ansiReset {
				t.Errorf("colored = %q", got)
			}
			ColorEnabled = false
			if got := tt.fn("PASS"); got != "PASS" {
				t.Errorf("plain = %q", got)
			}
		})
	}
}

func TestColors_NoEscapesWhenDisabled(t *testing.T) {
	saved := ColorEnabled
	t.Cleanup(func() { ColorEnabled = saved })
	ColorEnabled = false

	out := Red("FAIL") + Yellow("WARN") + Green("PASS") + Dim("detail")
	if strings.Contains(out, "\033") {
		t.Errorf("escape codes with color disabled: %q", out)
	}
}
