// Package reconciler drives claimed jobs through the provisioner to
// converge each deployment's cluster state with its declared desired
// state.
package reconciler

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/chartfarm/chartfarm/pkg/app"
	"github.com/chartfarm/chartfarm/pkg/cmdexec"
	"github.com/chartfarm/chartfarm/pkg/helmexec"
	"github.com/chartfarm/chartfarm/pkg/model"
	"github.com/chartfarm/chartfarm/pkg/queue"
	"github.com/chartfarm/chartfarm/pkg/store"
	"github.com/chartfarm/chartfarm/pkg/values"
)

const defaultHealthTimeout = 300 * time.Second

type Reconciler struct {
	store  *store.Store
	queue  *queue.Queue
	prov   Provisioner
	logger *zap.SugaredLogger
}

func New(s *store.Store, q *queue.Queue, prov Provisioner, logger *zap.SugaredLogger) *Reconciler {
	return &Reconciler{store: s, queue: q, prov: prov, logger: logger}
}

// outcome is what one reconcile pass persists on the deployment.
type outcome struct {
	status            string
	appliedTemplateID *int64
	lastError         *string
}

// ReconcileOne claims and processes a single job. It reports whether a job
// was claimed; an empty queue is not an error.
func (r *Reconciler) ReconcileOne(ctx context.Context, workerID string) (bool, error) {
	job, err := r.queue.ClaimNext(ctx, workerID)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}
	return true, r.process(ctx, job)
}

// process runs one claimed job to resolution. Every reconcile error is
// recovered here: it is recorded on the deployment, and the job is either
// requeued (retryable) or terminally failed.
func (r *Reconciler) process(ctx context.Context, job *model.ReconcileJob) error {
	r.logger.Infof("Starting reconcile job=%d deployment=%d reason=%s attempt=%d",
		job.ID, job.DeploymentID, job.Reason, job.Attempt)

	detail, err := r.store.GetDeploymentDetail(ctx, r.store.DB(), job.DeploymentID, true)
	if err != nil {
		// The deployment row is gone; nothing can be converged.
		return r.queue.MarkFailed(ctx, job.ID, err.Error())
	}

	result, reconcileErr := r.reconcile(ctx, detail)
	if err := r.persistOutcome(ctx, &detail.Deployment, result); err != nil {
		return err
	}

	if reconcileErr == nil {
		return r.queue.MarkDone(ctx, job.ID)
	}
	if cmdexec.IsRetryable(reconcileErr) {
		return r.queue.Requeue(ctx, job.ID, reconcileErr.Error(), retryDelay(job.Attempt))
	}
	return r.queue.MarkFailed(ctx, job.ID, reconcileErr.Error())
}

func (r *Reconciler) reconcile(ctx context.Context, detail *model.DeploymentDetail) (outcome, error) {
	deployment := &detail.Deployment

	if err := validateInputs(detail); err != nil {
		msg := err.Error()
		return outcome{
			status:            model.StatusError,
			appliedTemplateID: deployment.AppliedTemplateID,
			lastError:         &msg,
		}, err
	}

	var result outcome
	var err error
	if deployment.DeletedAt != nil {
		result, err = r.reconcileDelete(ctx, detail)
	} else {
		result, err = r.reconcileApply(ctx, detail)
	}
	if err != nil {
		msg := err.Error()
		return outcome{
			status:            model.StatusError,
			appliedTemplateID: deployment.AppliedTemplateID,
			lastError:         &msg,
		}, err
	}
	return result, nil
}

func validateInputs(detail *model.DeploymentDetail) error {
	if detail.Deployment.DeploymentUID == "" {
		return app.NewIntegrity("deployment is missing deployment_uid")
	}
	if detail.User == nil {
		return app.NewIntegrity("deployment is missing its user")
	}
	template := detail.DesiredTemplate
	if template == nil {
		return app.NewIntegrity("deployment is missing its desired template")
	}
	if template.DeletedAt != nil {
		return app.NewIntegrity("desired template is deleted")
	}
	if template.ChartRef == "" || template.ChartVersion == "" {
		return app.NewIntegrity("desired template chart_ref and chart_version are required")
	}
	if detail.DesiredProduct == nil {
		return app.NewIntegrity("desired template is missing its product")
	}
	return nil
}

func (r *Reconciler) reconcileApply(ctx context.Context, detail *model.DeploymentDetail) (outcome, error) {
	deployment := &detail.Deployment
	template := detail.DesiredTemplate
	release, namespace := identity(deployment)

	merged, err := r.buildMergedValues(detail)
	if err != nil {
		return outcome{}, err
	}

	r.logger.Debugf("Applying deployment=%d release=%s namespace=%s template=%d",
		deployment.ID, release, namespace, deployment.DesiredTemplateID)

	if _, err := r.prov.EnsureNamespace(ctx, namespace); err != nil {
		return outcome{}, err
	}

	spec := helmUpgradeSpec(release, namespace, template, merged)
	if _, err := r.prov.UpgradeInstall(ctx, spec); err != nil {
		return outcome{}, err
	}

	appliedID := deployment.DesiredTemplateID
	return outcome{
		status:            model.StatusReady,
		appliedTemplateID: &appliedID,
	}, nil
}

func (r *Reconciler) reconcileDelete(ctx context.Context, detail *model.DeploymentDetail) (outcome, error) {
	deployment := &detail.Deployment
	release, namespace := identity(deployment)

	r.logger.Debugf("Deleting deployment=%d release=%s namespace=%s", deployment.ID, release, namespace)

	if _, err := r.prov.Uninstall(ctx, release, namespace, healthTimeout(detail.DesiredTemplate), true); err != nil {
		return outcome{}, err
	}
	if _, err := r.prov.DeleteNamespace(ctx, namespace); err != nil {
		return outcome{}, err
	}

	return outcome{
		status:            model.StatusDeleted,
		appliedTemplateID: deployment.AppliedTemplateID,
	}, nil
}

func (r *Reconciler) buildMergedValues(detail *model.DeploymentDetail) (map[string]interface{}, error) {
	template := detail.DesiredTemplate
	schema := template.ValuesSchema.Object()
	userValues := detail.Deployment.UserValues.Object()

	if err := values.ValidateUserValues(userValues, schema); err != nil {
		return nil, err
	}
	merged := values.MergeScoped(template.DefaultValues.Object(), userValues, systemOverrides(detail))
	if err := values.ValidateMergedValues(merged, schema); err != nil {
		return nil, err
	}
	return merged, nil
}

// systemOverrides is the hook for platform-forced values. Nothing is
// forced today.
func systemOverrides(detail *model.DeploymentDetail) map[string]interface{} {
	return map[string]interface{}{}
}

func (r *Reconciler) persistOutcome(ctx context.Context, deployment *model.Deployment, result outcome) error {
	ts := time.Now().UTC().Truncate(time.Microsecond)
	deployment.Status = result.status
	deployment.AppliedTemplateID = result.appliedTemplateID
	deployment.LastError = result.lastError
	deployment.LastReconcileAt = &ts

	err := r.store.UpdateDeployment(ctx, r.store.DB(), deployment)
	if err != nil {
		return err
	}
	r.logger.Infof("Finished reconcile deployment=%d status=%s", deployment.ID, deployment.Status)
	return nil
}

// identity resolves the single DNS-label identity: the release name and
// namespace are both the deployment uid.
func identity(d *model.Deployment) (release, namespace string) {
	return d.DeploymentUID, d.DeploymentUID
}

func helmUpgradeSpec(release, namespace string, template *model.Template, merged map[string]interface{}) helmexec.UpgradeSpec {
	spec := helmexec.UpgradeSpec{
		Release:      release,
		Namespace:    namespace,
		ChartRef:     template.ChartRef,
		ChartVersion: template.ChartVersion,
		Values:       merged,
		Timeout:      healthTimeout(template),
		Atomic:       true,
		Wait:         true,
	}
	if template.ChartDigest != nil {
		spec.ChartDigest = *template.ChartDigest
	}
	return spec
}

func healthTimeout(template *model.Template) time.Duration {
	if template != nil && template.HealthTimeoutSec != nil && *template.HealthTimeoutSec > 0 {
		return time.Duration(*template.HealthTimeoutSec) * time.Second
	}
	return defaultHealthTimeout
}

// retryDelay grows exponentially with the attempt count, capped at ten
// minutes.
func retryDelay(attempt int) time.Duration {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = 5 * time.Second
	eb.RandomizationFactor = 0
	eb.Multiplier = 2
	eb.MaxInterval = 10 * time.Minute

	delay := eb.NextBackOff()
	for i := 0; i < attempt; i++ {
		delay = eb.NextBackOff()
	}
	return delay
}
