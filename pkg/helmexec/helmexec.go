package helmexec

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/chartfarm/chartfarm/pkg/cmdexec"
)

// UpgradeSpec carries everything needed for one helm upgrade --install.
type UpgradeSpec struct {
	Release      string
	Namespace    string
	ChartRef     string
	ChartVersion string
	ChartDigest  string
	Values       map[string]interface{}
	Timeout      time.Duration
	Atomic       bool
	Wait         bool
}

// ReleaseResult is the outcome of a release mutation.
type ReleaseResult struct {
	Release   string
	Namespace string
	Changed   bool
	Status    string
	Revision  int
}

// StatusResult is the parsed outcome of `helm status -o json`.
type StatusResult struct {
	Release   string
	Namespace string
	Exists    bool
	Status    string
	Revision  int
	Raw       map[string]interface{}
}

// Adapter wraps helm release lifecycle operations.
type Adapter struct {
	binary string
	runner cmdexec.Runner
	logger *zap.SugaredLogger
}

func New(logger *zap.SugaredLogger, runner cmdexec.Runner) *Adapter {
	return &Adapter{
		binary: "helm",
		runner: runner,
		logger: logger,
	}
}

func (a *Adapter) SetHelmBinary(bin string) {
	a.binary = bin
}

// UpgradeInstall runs `helm upgrade --install` for the spec. Values are
// written to a temporary JSON file which is removed on every exit path.
// When a chart digest is given and the ref carries none, the chart is
// pinned as ref@digest and --version is omitted.
func (a *Adapter) UpgradeInstall(ctx context.Context, spec UpgradeSpec) (ReleaseResult, error) {
	a.logger.Infof("Upgrading release=%s namespace=%s chart=%s", spec.Release, spec.Namespace, spec.ChartRef)

	valuesFile, err := writeValuesFile(spec.Values)
	if err != nil {
		return ReleaseResult{Release: spec.Release, Namespace: spec.Namespace}, err
	}
	defer os.Remove(valuesFile)

	chart, pinned := resolveChart(spec.ChartRef, spec.ChartDigest)
	argv := []string{
		a.binary, "upgrade", "--install", spec.Release, chart,
		"--namespace", spec.Namespace,
	}
	if !pinned {
		argv = append(argv, "--version", spec.ChartVersion)
	}
	argv = append(argv,
		"--timeout", fmt.Sprintf("%ds", int(spec.Timeout.Seconds())),
		"--values", valuesFile,
	)
	if strings.HasPrefix(spec.ChartRef, "oci://") {
		argv = append(argv, "--plain-http")
	}
	if spec.Atomic {
		argv = append(argv, "--atomic")
	}
	if spec.Wait {
		argv = append(argv, "--wait")
	}

	_, err = cmdexec.Execute(ctx, a.runner, argv,
		fmt.Sprintf("failed to upgrade/install release %s", spec.Release))
	if err != nil {
		return ReleaseResult{Release: spec.Release, Namespace: spec.Namespace}, err
	}

	status, err := a.ReleaseStatus(ctx, spec.Release, spec.Namespace)
	if err != nil {
		return ReleaseResult{Release: spec.Release, Namespace: spec.Namespace}, err
	}
	return ReleaseResult{
		Release:   spec.Release,
		Namespace: spec.Namespace,
		Changed:   true,
		Status:    status.Status,
		Revision:  status.Revision,
	}, nil
}

// Uninstall removes the release, tolerating its absence.
func (a *Adapter) Uninstall(ctx context.Context, release, namespace string, timeout time.Duration, wait bool) (ReleaseResult, error) {
	a.logger.Infof("Uninstalling release=%s namespace=%s", release, namespace)
	argv := []string{
		a.binary, "uninstall", release,
		"--namespace", namespace,
		"--timeout", fmt.Sprintf("%ds", int(timeout.Seconds())),
	}
	if wait {
		argv = append(argv, "--wait")
	}

	_, err := cmdexec.Execute(ctx, a.runner, argv,
		fmt.Sprintf("failed to uninstall release %s", release))
	if err != nil {
		if releaseNotFound(err) {
			return ReleaseResult{Release: release, Namespace: namespace, Changed: false, Status: "not-found"}, nil
		}
		return ReleaseResult{Release: release, Namespace: namespace}, err
	}
	return ReleaseResult{Release: release, Namespace: namespace, Changed: true, Status: "uninstalled"}, nil
}

// ReleaseStatus fetches and parses `helm status -o json`. A missing release
// yields Exists=false; malformed JSON from helm is a fatal error.
func (a *Adapter) ReleaseStatus(ctx context.Context, release, namespace string) (StatusResult, error) {
	result, err := cmdexec.Execute(ctx, a.runner,
		[]string{a.binary, "status", release, "--namespace", namespace, "--output", "json"},
		fmt.Sprintf("failed to fetch release status for %s", release))
	if err != nil {
		if releaseNotFound(err) {
			return StatusResult{Release: release, Namespace: namespace, Exists: false}, nil
		}
		return StatusResult{Release: release, Namespace: namespace}, err
	}

	var payload map[string]interface{}
	if err := json.Unmarshal([]byte(result.Stdout), &payload); err != nil {
		return StatusResult{Release: release, Namespace: namespace},
			fmt.Errorf("invalid JSON from helm status for release %s: %w", release, err)
	}

	status := StatusResult{
		Release:   release,
		Namespace: namespace,
		Exists:    true,
		Raw:       payload,
	}
	if info, ok := payload["info"].(map[string]interface{}); ok {
		if s, ok := info["status"].(string); ok {
			status.Status = s
		}
	}
	if v, ok := payload["version"].(float64); ok {
		status.Revision = int(v)
	}
	return status, nil
}

func resolveChart(chartRef, chartDigest string) (chart string, pinned bool) {
	if chartDigest == "" || strings.Contains(chartRef, "@") {
		return chartRef, false
	}
	return chartRef + "@" + chartDigest, true
}

func writeValuesFile(values map[string]interface{}) (string, error) {
	payload, err := json.Marshal(values)
	if err != nil {
		return "", fmt.Errorf("failed to encode values: %w", err)
	}
	tmp, err := os.CreateTemp("", "chartfarm-values-*.json")
	if err != nil {
		return "", err
	}
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	return tmp.Name(), nil
}

func releaseNotFound(err error) bool {
	var cmdErr *cmdexec.CommandError
	if !errors.As(err, &cmdErr) {
		return false
	}
	return strings.Contains(strings.ToLower(cmdErr.Result.Combined()), "not found")
}
