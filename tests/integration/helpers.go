//go:build integration

// Package integration runs live tests against the Anthropic API.
// Run with: go test -tags integration ./tests/integration/...
package integration

import (
	"os"
	"testing"
)

// isCI returns true if running in a CI environment.
// It checks for common CI environment variables.
func isCI() bool {
	// GitHub Actions, GitLab CI, CircleCI, Travis, Jenkins, etc.
	ciVars := []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "CIRCLECI", "TRAVIS", "JENKINS_URL"}
	for _, v := range ciVars {
		if os.Getenv(v) != "" {
			return true
		}
	}
	return false
}

// getAnthropicKey returns the API key, skipping the test when it is unset.
// In CI it fails unless ANTHROPIC_GO_SKIP_INTEGRATION is set.
func getAnthropicKey(t *testing.T) string {
	t.Helper()
	key := os.Getenv("ANTHROPIC_API_KEY")
	if key != "" {
		return key
	}
	if isCI() && os.Getenv("ANTHROPIC_GO_SKIP_INTEGRATION") == "" {
		t.Fatal("ANTHROPIC_API_KEY not set (CI environment detected; set ANTHROPIC_GO_SKIP_INTEGRATION=1 to skip)")
	}
	t.Skip("ANTHROPIC_API_KEY not set")
	return ""
}
