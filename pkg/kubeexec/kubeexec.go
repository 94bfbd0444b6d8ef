package kubeexec

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/chartfarm/chartfarm/pkg/cmdexec"
)

// NamespaceResult describes the observed outcome of a namespace operation.
type NamespaceResult struct {
	Name        string
	Exists      bool
	Changed     bool
	Terminating bool
}

// Adapter wraps kubectl namespace lifecycle operations. All operations are
// idempotent: "not found" is translated into an absent outcome, never
// surfaced as an error.
type Adapter struct {
	binary string
	runner cmdexec.Runner
	logger *zap.SugaredLogger
}

func New(logger *zap.SugaredLogger, runner cmdexec.Runner) *Adapter {
	return &Adapter{
		binary: "kubectl",
		runner: runner,
		logger: logger,
	}
}

func (a *Adapter) SetKubectlBinary(bin string) {
	a.binary = bin
}

// EnsureNamespace creates the namespace when absent.
func (a *Adapter) EnsureNamespace(ctx context.Context, name string) (NamespaceResult, error) {
	exists, err := a.NamespaceExists(ctx, name)
	if err != nil {
		return NamespaceResult{Name: name}, err
	}
	if exists {
		return NamespaceResult{Name: name, Exists: true, Changed: false}, nil
	}

	a.logger.Infof("Creating namespace %s", name)
	_, err = cmdexec.Execute(ctx, a.runner,
		[]string{a.binary, "create", "namespace", name},
		fmt.Sprintf("failed to create namespace %s", name))
	if err != nil {
		return NamespaceResult{Name: name}, err
	}
	return NamespaceResult{Name: name, Exists: true, Changed: true}, nil
}

// DeleteNamespace deletes the namespace, tolerating its absence.
func (a *Adapter) DeleteNamespace(ctx context.Context, name string) (NamespaceResult, error) {
	a.logger.Infof("Deleting namespace %s", name)
	_, err := cmdexec.Execute(ctx, a.runner,
		[]string{a.binary, "delete", "namespace", name, "--ignore-not-found=true"},
		fmt.Sprintf("failed to delete namespace %s", name))
	if err != nil {
		if notFound(err) {
			return NamespaceResult{Name: name, Exists: false, Changed: false}, nil
		}
		return NamespaceResult{Name: name}, err
	}
	return NamespaceResult{Name: name, Exists: false, Changed: true}, nil
}

// NamespaceExists reports whether the namespace is present.
func (a *Adapter) NamespaceExists(ctx context.Context, name string) (bool, error) {
	_, err := cmdexec.Execute(ctx, a.runner,
		[]string{a.binary, "get", "namespace", name, "-o", "name"},
		fmt.Sprintf("failed to check namespace %s", name))
	if err != nil {
		if notFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// NamespaceTerminating reports whether the namespace phase is Terminating.
// An absent namespace is not terminating.
func (a *Adapter) NamespaceTerminating(ctx context.Context, name string) (bool, error) {
	result, err := cmdexec.Execute(ctx, a.runner,
		[]string{a.binary, "get", "namespace", name, "-o", "jsonpath={.status.phase}"},
		fmt.Sprintf("failed to inspect namespace %s", name))
	if err != nil {
		if notFound(err) {
			return false, nil
		}
		return false, err
	}
	return strings.EqualFold(strings.TrimSpace(result.Stdout), "terminating"), nil
}

func notFound(err error) bool {
	var cmdErr *cmdexec.CommandError
	if !errors.As(err, &cmdErr) {
		return false
	}
	return strings.Contains(strings.ToLower(cmdErr.Result.Combined()), "not found")
}
