package manifest

import (
	"os"
	"strings"
	"testing"
)

const patchFixture = `{
	"name": "@acme/app",
	"version": "1.2.3",
	"description": "version: 9.9.9 appears in prose too",
	"dependencies": {
		"lodash": "^4.17.21",
		"@acme/lib": "workspace:^"
	},
	"devDependencies": {
		"lodash": "^4.0.0"
	},
	"scripts": {
		"build": "tsc -p ."
	}
}
`

func TestPatchVersion_Minimal(t *testing.T) {
	path := writeFixture(t, patchFixture)

	if err := NewStore().PatchVersion(path, "1.3.0"); err != nil {
		t.Fatalf("PatchVersion() error = %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	want := strings.Replace(patchFixture, `"version": "1.2.3"`, `"version": "1.3.0"`, 1)
	if string(got) != want {
		t.Errorf("patched bytes mismatch:\ngot  %q\nwant %q", got, want)
	}
	// The prose mention of a version must be untouched.
	if !strings.Contains(string(got), "version: 9.9.9 appears in prose too") {
		t.Error("patch touched unrelated bytes")
	}
}

func TestPatchDepRequirement_TargetsSection(t *testing.T) {
	path := writeFixture(t, patchFixture)

	// Only the devDependencies entry changes; the runtime lodash entry must not.
	if err := NewStore().PatchDepRequirement(path, SectionDev, "lodash", "^5.0.0"); err != nil {
		t.Fatalf("PatchDepRequirement() error = %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(got), `"lodash": "^4.17.21"`) {
		t.Error("runtime lodash requirement was modified")
	}
	if !strings.Contains(string(got), `"lodash": "^5.0.0"`) {
		t.Error("dev lodash requirement was not updated")
	}
}

func TestPatch_MissingKey(t *testing.T) {
	path := writeFixture(t, patchFixture)

	err := NewStore().PatchDepRequirement(path, SectionOptional, "lodash", "^5.0.0")
	if err == nil {
		t.Fatal("PatchDepRequirement() on absent section succeeded, want error")
	}
}

func TestSpliceStringValue_Escapes(t *testing.T) {
	data := []byte(`{"name": "a", "scripts": {"weird \"key\"": "echo hi", "build": "tsc"}, "version": "1.0.0"}`)

	out, err := spliceStringValue(data, []string{"version"}, "2.0.0")
	if err != nil {
		t.Fatalf("spliceStringValue() error = %v", err)
	}
	want := `{"name": "a", "scripts": {"weird \"key\"": "echo hi", "build": "tsc"}, "version": "2.0.0"}`
	if string(out) != want {
		t.Errorf("got  %s\nwant %s", out, want)
	}
}

func TestSpliceStringValue_ValueNotString(t *testing.T) {
	data := []byte(`{"private": true, "version": "1.0.0"}`)

	if _, err := spliceStringValue(data, []string{"private"}, "x"); err == nil {
		t.Error("splicing a non-string value succeeded, want error")
	}
}
