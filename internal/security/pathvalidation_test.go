package security

import (
	"path/filepath"
	"testing"
)

func TestJoinWithin(t *testing.T) {
	tests := []struct {
		name      string
		dir       string
		file      string
		want      string
		wantError bool
	}{
		{name: "plain file", dir: "frames", file: "image1.png", want: filepath.Join("frames", "image1.png")},
		{name: "nested", dir: "/tmp/out", file: "run/report.html", want: "/tmp/out/run/report.html"},
		{name: "dot dot inside", dir: "/tmp/out", file: "a/../b.png", want: "/tmp/out/b.png"},
		{name: "escape", dir: "/tmp/out", file: "../etc/passwd", wantError: true},
		{name: "escape deep", dir: "frames", file: "a/../../x.png", wantError: true},
		{name: "absolute", dir: "frames", file: "/etc/passwd", wantError: true},
		{name: "the directory itself", dir: "frames", file: ".", wantError: true},
		{name: "empty", dir: "frames", file: "", wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := JoinWithin(tt.dir, tt.file)
			if tt.wantError {
				if err == nil {
					t.Errorf("JoinWithin(%q, %q) = %q, expected error", tt.dir, tt.file, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("JoinWithin(%q, %q) unexpected error: %v", tt.dir, tt.file, err)
			}
			if got != tt.want {
				t.Errorf("JoinWithin(%q, %q) = %q, want %q", tt.dir, tt.file, got, tt.want)
			}
		})
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"DICT_6X6_250 5x7 marker=0.04 sep=0.01", "DICT_6X6_250_5x7_marker_0.04_sep_0.01"},
		{"../../etc", "etc"},
		{"", "unknown"},
		{"***", "unknown"},
		{"run-1.png", "run-1.png"},
	}
	for _, tt := range tests {
		if got := SanitizeFilename(tt.in); got != tt.want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
