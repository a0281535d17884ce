package errors

import (
	"regexp"
	"strings"
	"unicode"
)

// ValidatePackageName validates a workspace package name for safety and
// correctness. It rejects names that could be used for path traversal or
// injection attacks.
//
// The validation rules are intentionally conservative:
//   - No empty names
//   - No control characters
//   - No path traversal sequences (.., //, backslashes)
//   - No null bytes
//   - Maximum length of 256 characters
//
// npm-specific shape checks are done separately by ValidateNpmPackageName.
func ValidatePackageName(name string) error {
	if name == "" {
		return New(ErrCodeManifestShape, "package name cannot be empty")
	}

	if len(name) > 256 {
		return New(ErrCodeManifestShape, "package name too long (max 256 characters)")
	}

	for _, r := range name {
		if unicode.IsControl(r) {
			return New(ErrCodeManifestShape, "package name contains invalid control characters")
		}
	}

	dangerousPatterns := []string{
		"..",   // Parent directory
		"//",   // Double slash
		"\x00", // Null byte
		"\\",   // Backslash (Windows path)
	}

	for _, pattern := range dangerousPatterns {
		if strings.Contains(name, pattern) {
			return New(ErrCodeManifestShape, "package name contains invalid characters: %q", pattern)
		}
	}

	return nil
}

// npmPackageNameRegex matches valid npm package names, including scoped names.
var npmPackageNameRegex = regexp.MustCompile(`^(@[a-z0-9-~][a-z0-9-._~]*/)?[a-z0-9-~][a-z0-9-._~]*$`)

// ValidateNpmPackageName validates an npm package name.
func ValidateNpmPackageName(name string) error {
	if err := ValidatePackageName(name); err != nil {
		return err
	}

	// npm names must be lowercase
	if strings.ToLower(name) != name {
		return New(ErrCodeManifestShape, "npm package names must be lowercase: %q", name)
	}

	if !npmPackageNameRegex.MatchString(name) {
		return New(ErrCodeManifestShape, "invalid npm package name: %q", name)
	}

	return nil
}

// ValidateBranchName validates a git branch name for use in changeset files.
// It rejects names git itself refuses plus anything unsafe for our filenames.
func ValidateBranchName(branch string) error {
	if branch == "" {
		return New(ErrCodeChangesetInvalid, "branch name cannot be empty")
	}
	if len(branch) > 255 {
		return New(ErrCodeChangesetInvalid, "branch name too long (max 255 characters)")
	}
	for _, r := range branch {
		if unicode.IsControl(r) || r == ' ' {
			return New(ErrCodeChangesetInvalid, "branch name contains invalid characters: %q", branch)
		}
	}
	if strings.Contains(branch, "..") || strings.HasPrefix(branch, "-") {
		return New(ErrCodeChangesetInvalid, "branch name contains invalid sequences: %q", branch)
	}
	return nil
}

// ValidatePath validates a file path within a repository for safety.
// It prevents path traversal attacks and ensures reasonable path length.
//
// Validation rules:
//   - Path cannot be empty
//   - Maximum length of 500 characters
//   - No null bytes or control characters
//   - No absolute paths (must be relative)
//   - No path traversal sequences (..)
//   - No backslashes (Windows-style paths)
func ValidatePath(path string) error {
	if path == "" {
		return New(ErrCodeConfigInvalid, "path cannot be empty")
	}

	const maxPathLength = 500
	if len(path) > maxPathLength {
		return New(ErrCodeConfigInvalid, "path too long (max %d characters)", maxPathLength)
	}

	for _, r := range path {
		if r == '\x00' || unicode.IsControl(r) {
			return New(ErrCodeConfigInvalid, "path contains invalid characters")
		}
	}

	if strings.HasPrefix(path, "/") {
		return New(ErrCodeConfigInvalid, "path must be relative (cannot start with /)")
	}

	if strings.Contains(path, "..") {
		return New(ErrCodeConfigInvalid, "path cannot contain path traversal sequences (..)")
	}

	if strings.Contains(path, "\\") {
		return New(ErrCodeConfigInvalid, "path cannot contain backslashes")
	}

	return nil
}

// ValidateURL validates a registry URL string for safety.
// It ensures the URL has a safe scheme (http or https).
func ValidateURL(rawURL string) error {
	if rawURL == "" {
		return New(ErrCodeConfigInvalid, "URL cannot be empty")
	}

	// Simple scheme validation without full URL parsing
	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		return New(ErrCodeConfigInvalid, "URL must use http or https scheme")
	}

	return nil
}
