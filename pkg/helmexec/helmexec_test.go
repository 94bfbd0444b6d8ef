package helmexec_test

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chartfarm/chartfarm/pkg/cmdexec"
	"github.com/chartfarm/chartfarm/pkg/exectest"
	"github.com/chartfarm/chartfarm/pkg/helmexec"
)

const statusJSON = `{"name":"demo","version":3,"info":{"status":"deployed"}}`

func newAdapter(runner cmdexec.Runner) *helmexec.Adapter {
	return helmexec.New(zap.NewNop().Sugar(), runner)
}

func TestUpgradeInstallArgv(t *testing.T) {
	var capturedValues map[string]interface{}
	var valuesFile string
	runner := &exectest.Runner{
		Stub: func(argv []string) (cmdexec.CommandResult, error) {
			if argv[1] == "status" {
				return cmdexec.CommandResult{Argv: argv, Stdout: statusJSON}, nil
			}
			for i, arg := range argv {
				if arg == "--values" {
					valuesFile = argv[i+1]
					payload, err := os.ReadFile(valuesFile)
					require.NoError(t, err)
					require.NoError(t, json.Unmarshal(payload, &capturedValues))
				}
			}
			return cmdexec.CommandResult{Argv: argv}, nil
		},
	}
	adapter := newAdapter(runner)

	result, err := adapter.UpgradeInstall(context.Background(), helmexec.UpgradeSpec{
		Release:      "wiki-alice-abc123",
		Namespace:    "wiki-alice-abc123",
		ChartRef:     "oci://registry.local/charts/wiki",
		ChartVersion: "1.2.3",
		Values:       map[string]interface{}{"user": map[string]interface{}{"message": "hi"}},
		Timeout:      300 * time.Second,
		Atomic:       true,
		Wait:         true,
	})
	require.NoError(t, err)
	assert.True(t, result.Changed)
	assert.Equal(t, "deployed", result.Status)
	assert.Equal(t, 3, result.Revision)

	calls := runner.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, []string{
		"helm", "upgrade", "--install", "wiki-alice-abc123", "oci://registry.local/charts/wiki",
		"--namespace", "wiki-alice-abc123",
		"--version", "1.2.3",
		"--timeout", "300s",
		"--values", valuesFile,
		"--plain-http", "--atomic", "--wait",
	}, calls[0])
	assert.Equal(t, []string{"helm", "status", "wiki-alice-abc123", "--namespace", "wiki-alice-abc123", "--output", "json"}, calls[1])

	assert.Equal(t, map[string]interface{}{"user": map[string]interface{}{"message": "hi"}}, capturedValues)

	_, err = os.Stat(valuesFile)
	assert.True(t, os.IsNotExist(err), "values file must be removed after the run")
}

func TestUpgradeInstallDigestPinning(t *testing.T) {
	runner := &exectest.Runner{
		Stub: func(argv []string) (cmdexec.CommandResult, error) {
			if argv[1] == "status" {
				return cmdexec.CommandResult{Argv: argv, Stdout: statusJSON}, nil
			}
			return cmdexec.CommandResult{Argv: argv}, nil
		},
	}
	adapter := newAdapter(runner)

	_, err := adapter.UpgradeInstall(context.Background(), helmexec.UpgradeSpec{
		Release:      "demo",
		Namespace:    "demo",
		ChartRef:     "oci://registry.local/charts/wiki",
		ChartVersion: "1.2.3",
		ChartDigest:  "sha256:deadbeef",
		Timeout:      60 * time.Second,
	})
	require.NoError(t, err)

	argv := runner.Calls()[0]
	assert.Contains(t, argv, "oci://registry.local/charts/wiki@sha256:deadbeef")
	assert.NotContains(t, argv, "--version")
}

func TestUpgradeInstallFailureRemovesValuesFile(t *testing.T) {
	var valuesFile string
	runner := &exectest.Runner{
		Stub: func(argv []string) (cmdexec.CommandResult, error) {
			for i, arg := range argv {
				if arg == "--values" {
					valuesFile = argv[i+1]
				}
			}
			return cmdexec.CommandResult{Argv: argv, ExitCode: 1, Stderr: "Error: timed out waiting for the condition"}, nil
		},
	}
	adapter := newAdapter(runner)

	_, err := adapter.UpgradeInstall(context.Background(), helmexec.UpgradeSpec{
		Release:   "demo",
		Namespace: "demo",
		ChartRef:  "oci://r/c",
		Timeout:   10 * time.Second,
	})
	require.Error(t, err)
	assert.True(t, cmdexec.IsRetryable(err))

	require.NotEmpty(t, valuesFile)
	_, statErr := os.Stat(valuesFile)
	assert.True(t, os.IsNotExist(statErr))
}

func TestUninstall(t *testing.T) {
	runner := &exectest.Runner{}
	adapter := newAdapter(runner)

	result, err := adapter.Uninstall(context.Background(), "demo", "demo", 120*time.Second, true)
	require.NoError(t, err)
	assert.True(t, result.Changed)
	assert.Equal(t, "uninstalled", result.Status)

	calls := runner.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, []string{"helm", "uninstall", "demo", "--namespace", "demo", "--timeout", "120s", "--wait"}, calls[0])
}

func TestUninstallToleratesMissingRelease(t *testing.T) {
	runner := &exectest.Runner{
		Stub: func(argv []string) (cmdexec.CommandResult, error) {
			return cmdexec.CommandResult{Argv: argv, ExitCode: 1, Stderr: "Error: uninstall: Release not loaded: demo: release: not found"}, nil
		},
	}
	adapter := newAdapter(runner)

	result, err := adapter.Uninstall(context.Background(), "demo", "demo", time.Minute, false)
	require.NoError(t, err)
	assert.False(t, result.Changed)
	assert.Equal(t, "not-found", result.Status)
}

func TestReleaseStatusParses(t *testing.T) {
	runner := &exectest.Runner{
		Stub: func(argv []string) (cmdexec.CommandResult, error) {
			return cmdexec.CommandResult{Argv: argv, Stdout: statusJSON}, nil
		},
	}
	adapter := newAdapter(runner)

	status, err := adapter.ReleaseStatus(context.Background(), "demo", "demo")
	require.NoError(t, err)
	assert.True(t, status.Exists)
	assert.Equal(t, "deployed", status.Status)
	assert.Equal(t, 3, status.Revision)
}

func TestReleaseStatusMissingRelease(t *testing.T) {
	runner := &exectest.Runner{
		Stub: func(argv []string) (cmdexec.CommandResult, error) {
			return cmdexec.CommandResult{Argv: argv, ExitCode: 1, Stderr: "Error: release: not found"}, nil
		},
	}
	adapter := newAdapter(runner)

	status, err := adapter.ReleaseStatus(context.Background(), "demo", "demo")
	require.NoError(t, err)
	assert.False(t, status.Exists)
}

func TestReleaseStatusMalformedJSONIsFatal(t *testing.T) {
	runner := &exectest.Runner{
		Stub: func(argv []string) (cmdexec.CommandResult, error) {
			return cmdexec.CommandResult{Argv: argv, Stdout: "{not-json"}, nil
		},
	}
	adapter := newAdapter(runner)

	_, err := adapter.ReleaseStatus(context.Background(), "demo", "demo")
	require.Error(t, err)
	assert.False(t, cmdexec.IsRetryable(err))
	assert.Contains(t, err.Error(), "invalid JSON")
}
