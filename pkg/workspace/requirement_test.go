package workspace

import (
	"testing"

	"github.com/Masterminds/semver/v3"
)

func mustVersion(t *testing.T, s string) *semver.Version {
	t.Helper()
	v, err := semver.NewVersion(s)
	if err != nil {
		t.Fatal(err)
	}
	return v
}

func TestParseRequirement_Classes(t *testing.T) {
	tests := []struct {
		raw   string
		class ReqClass
		inner string
	}{
		{"^1.2.3", ReqSemver, "^1.2.3"},
		{"~1.0", ReqSemver, "~1.0"},
		{"1.x", ReqSemver, "1.x"},
		{">=1 <2", ReqSemver, ">=1 <2"},
		{"workspace:*", ReqWorkspace, "*"},
		{"workspace:^", ReqWorkspace, "^"},
		{"workspace:~", ReqWorkspace, "~"},
		{"workspace:^1.2.0", ReqWorkspace, "^1.2.0"},
		{"file:../lib", ReqLocal, "../lib"},
		{"link:../lib", ReqLocal, "../lib"},
		{"portal:../lib", ReqLocal, "../lib"},
	}

	for _, tt := range tests {
		r := ParseRequirement(tt.raw)
		if r.Class != tt.class {
			t.Errorf("ParseRequirement(%q).Class = %v, want %v", tt.raw, r.Class, tt.class)
		}
		if r.Inner != tt.inner {
			t.Errorf("ParseRequirement(%q).Inner = %q, want %q", tt.raw, r.Inner, tt.inner)
		}
	}
}

func TestRequirement_Admits(t *testing.T) {
	v := mustVersion(t, "1.5.0")

	tests := []struct {
		raw  string
		want bool
	}{
		{"^1.2.3", true},
		{"^2.0.0", false},
		{"~1.5.0", true},
		{"~1.4.0", false},
		{"1.x", true},
		{">=1 <2", true},
		{"workspace:*", true},
		{"workspace:^", true},
		{"workspace:^1.0.0", true},
		{"workspace:^2.0.0", false},
		{"file:../lib", true},
	}

	for _, tt := range tests {
		if got := ParseRequirement(tt.raw).Admits(v); got != tt.want {
			t.Errorf("ParseRequirement(%q).Admits(1.5.0) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestRequirement_Rewritten(t *testing.T) {
	v := mustVersion(t, "2.0.0")

	tests := []struct {
		raw  string
		want string
	}{
		{"^1.2.3", "^2.0.0"},
		{"~1.2.3", "~2.0.0"},
		{"1.2.3", "2.0.0"},
		{"=1.2.3", "=2.0.0"},
		{"workspace:*", "workspace:*"},
		{"workspace:^1.2.3", "workspace:^2.0.0"},
		{"file:../lib", "file:../lib"},
	}

	for _, tt := range tests {
		if got := ParseRequirement(tt.raw).Rewritten(v); got != tt.want {
			t.Errorf("ParseRequirement(%q).Rewritten(2.0.0) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}
