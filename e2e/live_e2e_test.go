//go:build e2e

package e2e

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// provision imports settings and credentials once per test; both writes are
// idempotent.
func provision(t *testing.T) {
	t.Helper()

	mustRunCLI(t, "settings", "import", settingsPath)
	mustRunCLI(t, "credentials", "set", "--username", username, "--password", password)
}

func TestE2E_WarmupIssuesAndPersistsToken(t *testing.T) {
	provision(t)

	var snap map[string]any
	require.NoError(t, json.Unmarshal([]byte(mustRunCLI(t, "--json", "warmup")), &snap))
	assert.Equal(t, true, snap["has_token"])
	assert.Equal(t, username, snap["username"])

	// The second warm-up reads the stored token; no grant is logged.
	_, stderr, err := runCLI(t, "--verbose", "warmup")
	require.NoError(t, err)
	assert.NotContains(t, stderr, "no stored token")
}

func TestE2E_HomeInfo(t *testing.T) {
	provision(t)

	stdout := mustRunCLI(t, "--json", "home", "info")

	var body map[string]any
	require.NoError(t, json.Unmarshal([]byte(stdout), &body))
	assert.Contains(t, body, "body")
}

func TestE2E_ForcedRefreshKeepsWorking(t *testing.T) {
	provision(t)
	mustRunCLI(t, "warmup")

	stdout := mustRunCLI(t, "token", "--grant", "refresh_token")
	assert.Contains(t, stdout, "refresh_token grant succeeded")

	mustRunCLI(t, "home", "info")
}

func TestE2E_WrongPasswordFails(t *testing.T) {
	mustRunCLI(t, "settings", "import", settingsPath)
	mustRunCLI(t, "--user", "velux-e2e-bad", "credentials", "set", "--username", username, "--password", "not-the-password")

	_, stderr, err := runCLI(t, "--user", "velux-e2e-bad", "warmup")
	require.Error(t, err)
	assert.Contains(t, stderr, "password grant failed")
}
