package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/miq-labs/miq-be/internal/shared"
)

func TestLintCommandJSONSuccess(t *testing.T) {
	cli := NewPolicyCLI(shared.RolePermissions())

	stdout := new(bytes.Buffer)
	stderr := new(bytes.Buffer)
	exitCode := cli.LintCommand(PolicyLintOptions{JSONOutput: true, Stdout: stdout, Stderr: stderr})
	require.Zero(t, exitCode)
	require.Empty(t, stderr.String())

	var summary PolicyLintSummary
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &summary))
	require.True(t, summary.OK)
	require.Empty(t, summary.Orphans)
	require.Len(t, summary.Roles, 2)
}

func TestLintCommandJSONOrphans(t *testing.T) {
	cli := NewPolicyCLI(map[string][]string{"viewer": {shared.PermUsersView}})

	stdout := new(bytes.Buffer)
	stderr := new(bytes.Buffer)
	exitCode := cli.LintCommand(PolicyLintOptions{
		Referenced: []string{shared.PermUsersView, shared.PermAuditView, "reports.generate"},
		JSONOutput: true,
		Stdout:     stdout,
		Stderr:     stderr,
	})
	require.Equal(t, 10, exitCode)
	require.Empty(t, stderr.String())

	var summary PolicyLintSummary
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &summary))
	require.False(t, summary.OK)
	require.Equal(t, []string{shared.PermAuditView, "reports.generate"}, summary.Orphans)
}

func TestLintCommandHumanOutput(t *testing.T) {
	cli := NewPolicyCLI(shared.RolePermissions())

	stdout := new(bytes.Buffer)
	exitCode := cli.LintCommand(PolicyLintOptions{Stdout: stdout, Stderr: new(bytes.Buffer)})
	require.Zero(t, exitCode)
	require.Contains(t, stdout.String(), "admin: ")
	require.Contains(t, stdout.String(), "granted by at least one role")
}
