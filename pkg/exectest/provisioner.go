package exectest

import (
	"context"
	"sync"
	"time"

	"github.com/chartfarm/chartfarm/pkg/helmexec"
	"github.com/chartfarm/chartfarm/pkg/kubeexec"
)

// Provisioner is a recording fake of the reconciler's provisioner handle.
// Failure injection fields let tests exercise the retry and failure paths.
type Provisioner struct {
	mu sync.Mutex

	EnsuredNamespaces []string
	DeletedNamespaces []string
	Upgrades          []helmexec.UpgradeSpec
	Uninstalls        []UninstallCall

	FailEnsureNamespace error
	FailUpgrade         error
	FailUninstall       error

	ReleaseStatuses map[string]helmexec.StatusResult
}

type UninstallCall struct {
	Release   string
	Namespace string
	Timeout   time.Duration
	Wait      bool
}

func (p *Provisioner) EnsureNamespace(ctx context.Context, name string) (kubeexec.NamespaceResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.FailEnsureNamespace != nil {
		return kubeexec.NamespaceResult{Name: name}, p.FailEnsureNamespace
	}
	p.EnsuredNamespaces = append(p.EnsuredNamespaces, name)
	return kubeexec.NamespaceResult{Name: name, Exists: true, Changed: true}, nil
}

func (p *Provisioner) DeleteNamespace(ctx context.Context, name string) (kubeexec.NamespaceResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.DeletedNamespaces = append(p.DeletedNamespaces, name)
	return kubeexec.NamespaceResult{Name: name, Exists: false, Changed: true}, nil
}

func (p *Provisioner) UpgradeInstall(ctx context.Context, spec helmexec.UpgradeSpec) (helmexec.ReleaseResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.FailUpgrade != nil {
		return helmexec.ReleaseResult{Release: spec.Release, Namespace: spec.Namespace}, p.FailUpgrade
	}
	p.Upgrades = append(p.Upgrades, spec)
	return helmexec.ReleaseResult{
		Release:   spec.Release,
		Namespace: spec.Namespace,
		Changed:   true,
		Status:    "deployed",
		Revision:  len(p.Upgrades),
	}, nil
}

func (p *Provisioner) Uninstall(ctx context.Context, release, namespace string, timeout time.Duration, wait bool) (helmexec.ReleaseResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.FailUninstall != nil {
		return helmexec.ReleaseResult{Release: release, Namespace: namespace}, p.FailUninstall
	}
	p.Uninstalls = append(p.Uninstalls, UninstallCall{Release: release, Namespace: namespace, Timeout: timeout, Wait: wait})
	return helmexec.ReleaseResult{Release: release, Namespace: namespace, Changed: true, Status: "uninstalled"}, nil
}

func (p *Provisioner) ReleaseStatus(ctx context.Context, release, namespace string) (helmexec.StatusResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if status, ok := p.ReleaseStatuses[release]; ok {
		return status, nil
	}
	return helmexec.StatusResult{Release: release, Namespace: namespace, Exists: false}, nil
}
