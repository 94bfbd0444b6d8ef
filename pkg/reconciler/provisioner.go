package reconciler

import (
	"context"
	"time"

	"github.com/chartfarm/chartfarm/pkg/helmexec"
	"github.com/chartfarm/chartfarm/pkg/kubeexec"
)

// Provisioner is the handle the reconciler drives to converge cluster
// state. Tests inject a recording fake.
type Provisioner interface {
	EnsureNamespace(ctx context.Context, name string) (kubeexec.NamespaceResult, error)
	DeleteNamespace(ctx context.Context, name string) (kubeexec.NamespaceResult, error)
	UpgradeInstall(ctx context.Context, spec helmexec.UpgradeSpec) (helmexec.ReleaseResult, error)
	Uninstall(ctx context.Context, release, namespace string, timeout time.Duration, wait bool) (helmexec.ReleaseResult, error)
	ReleaseStatus(ctx context.Context, release, namespace string) (helmexec.StatusResult, error)
}

// ClusterProvisioner combines the kubectl and helm adapters into the real
// provisioner.
type ClusterProvisioner struct {
	Kube *kubeexec.Adapter
	Helm *helmexec.Adapter
}

func (p *ClusterProvisioner) EnsureNamespace(ctx context.Context, name string) (kubeexec.NamespaceResult, error) {
	return p.Kube.EnsureNamespace(ctx, name)
}

func (p *ClusterProvisioner) DeleteNamespace(ctx context.Context, name string) (kubeexec.NamespaceResult, error) {
	return p.Kube.DeleteNamespace(ctx, name)
}

func (p *ClusterProvisioner) UpgradeInstall(ctx context.Context, spec helmexec.UpgradeSpec) (helmexec.ReleaseResult, error) {
	return p.Helm.UpgradeInstall(ctx, spec)
}

func (p *ClusterProvisioner) Uninstall(ctx context.Context, release, namespace string, timeout time.Duration, wait bool) (helmexec.ReleaseResult, error) {
	return p.Helm.Uninstall(ctx, release, namespace, timeout, wait)
}

func (p *ClusterProvisioner) ReleaseStatus(ctx context.Context, release, namespace string) (helmexec.StatusResult, error) {
	return p.Helm.ReleaseStatus(ctx, release, namespace)
}
