package errors

import "testing"

func TestValidatePackageName(t *testing.T) {
	tests := []struct {
		name  string
		input string
		ok    bool
	}{
		{"simple", "lodash", true},
		{"scoped", "@acme/ui", true},
		{"empty", "", false},
		{"traversal", "../etc/passwd", false},
		{"backslash", `pkg\name`, false},
		{"control char", "pkg\x01name", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePackageName(tt.input)
			if (err == nil) != tt.ok {
				t.Errorf("ValidatePackageName(%q) error = %v, want ok=%v", tt.input, err, tt.ok)
			}
		})
	}
}

func TestValidateNpmPackageName(t *testing.T) {
	tests := []struct {
		name  string
		input string
		ok    bool
	}{
		{"simple", "left-pad", true},
		{"scoped", "@acme/ui", true},
		{"uppercase", "LoDash", false},
		{"leading dot", ".hidden", false},
		{"bad scope", "@/ui", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateNpmPackageName(tt.input)
			if (err == nil) != tt.ok {
				t.Errorf("ValidateNpmPackageName(%q) error = %v, want ok=%v", tt.input, err, tt.ok)
			}
		})
	}
}

func TestValidateBranchName(t *testing.T) {
	tests := []struct {
		name  string
		input string
		ok    bool
	}{
		{"feature branch", "feature/add-auth", true},
		{"empty", "", false},
		{"space", "feature branch", false},
		{"traversal", "feature/../main", false},
		{"leading dash", "-rf", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateBranchName(tt.input)
			if (err == nil) != tt.ok {
				t.Errorf("ValidateBranchName(%q) error = %v, want ok=%v", tt.input, err, tt.ok)
			}
		})
	}
}

func TestValidateURL(t *testing.T) {
	if err := ValidateURL("https://registry.npmjs.org"); err != nil {
		t.Errorf("ValidateURL(https) error = %v", err)
	}
	if err := ValidateURL("ftp://example.com"); err == nil {
		t.Error("ValidateURL(ftp) = nil, want error")
	}
	if err := ValidateURL(""); err == nil {
		t.Error("ValidateURL(empty) = nil, want error")
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitOK},
		{"config", New(ErrCodeConfigInvalid, "bad"), ExitConfig},
		{"validation", New(ErrCodeChangesetInvalid, "bad"), ExitValidation},
		{"task", New(ErrCodeTaskFailed, "bad"), ExitTask},
		{"cancelled", New(ErrCodeCancelled, "bad"), ExitCancelled},
		{"other", New(ErrCodeNetwork, "bad"), ExitGeneric},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}
