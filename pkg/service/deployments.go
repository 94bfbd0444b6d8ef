package service

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/chartfarm/chartfarm/pkg/app"
	"github.com/chartfarm/chartfarm/pkg/model"
	"github.com/chartfarm/chartfarm/pkg/naming"
	"github.com/chartfarm/chartfarm/pkg/queue"
	"github.com/chartfarm/chartfarm/pkg/store"
	"github.com/chartfarm/chartfarm/pkg/values"
)

// DeploymentCreate is the boundary payload for requesting a new deployment.
type DeploymentCreate struct {
	UserID            int64                  `json:"user_id"`
	DesiredTemplateID int64                  `json:"desired_template_id"`
	Domainname        string                 `json:"domainname"`
	UserValues        map[string]interface{} `json:"user_values_json,omitempty"`
}

// DeploymentUpdate requests an upgrade to a newer template version.
type DeploymentUpdate struct {
	ID                int64 `json:"id"`
	UserID            int64 `json:"user_id"`
	DesiredTemplateID int64 `json:"desired_template_id"`
}

type Deployments struct {
	store  *store.Store
	queue  *queue.Queue
	logger *zap.SugaredLogger
}

func NewDeployments(s *store.Store, q *queue.Queue, logger *zap.SugaredLogger) *Deployments {
	return &Deployments{store: s, queue: q, logger: logger}
}

// Create declares a new deployment and enqueues its create job, all in one
// transaction.
func (d *Deployments) Create(ctx context.Context, payload DeploymentCreate) (*model.Deployment, error) {
	var deployment *model.Deployment
	err := d.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		user, err := d.store.GetUser(ctx, tx, payload.UserID)
		if err != nil {
			return err
		}
		template, err := d.store.GetTemplate(ctx, tx, payload.DesiredTemplateID)
		if err != nil {
			return err
		}
		product, err := d.store.GetProduct(ctx, tx, template.ProductID)
		if err != nil {
			return err
		}

		if err := preflightValues(template, payload.UserValues); err != nil {
			return err
		}

		uid, err := naming.NewDeploymentUID(product.Name, user.Email)
		if err != nil {
			return err
		}

		created := &model.Deployment{
			UserID:            payload.UserID,
			Domainname:        payload.Domainname,
			DeploymentUID:     uid,
			DesiredTemplateID: payload.DesiredTemplateID,
			Status:            model.StatusProvisioning,
			Generation:        1,
		}
		if payload.UserValues != nil {
			created.UserValues = model.NewJSON(payload.UserValues)
		}
		if err := d.store.InsertDeployment(ctx, tx, created); err != nil {
			return err
		}
		if _, err := d.queue.Enqueue(ctx, tx, created.ID, model.ReasonCreate, time.Time{}); err != nil {
			return err
		}
		deployment = created
		return nil
	})
	if err != nil {
		return nil, err
	}
	d.logger.Infof("Created deployment id=%d uid=%s domain=%s", deployment.ID, deployment.DeploymentUID, deployment.Domainname)
	return deployment, nil
}

// Update moves the deployment to a strictly newer template of the same
// product and enqueues the upgrade job.
func (d *Deployments) Update(ctx context.Context, payload DeploymentUpdate) (*model.Deployment, error) {
	var deployment *model.Deployment
	err := d.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		current, err := d.store.GetDeploymentForUser(ctx, tx, payload.ID, payload.UserID)
		if err != nil {
			return err
		}
		if payload.DesiredTemplateID <= current.DesiredTemplateID {
			return app.NewIntegrity("can only upgrade to newer versions, not downgrade")
		}
		target, err := d.store.GetTemplate(ctx, tx, payload.DesiredTemplateID)
		if err != nil {
			return err
		}
		currentTemplate, err := d.store.GetTemplate(ctx, tx, current.DesiredTemplateID)
		if err == nil && target.ProductID != currentTemplate.ProductID {
			return app.NewIntegrity("upgrade template must belong to the same product")
		}

		if err := preflightValues(target, current.UserValues.Object()); err != nil {
			return err
		}

		current.DesiredTemplateID = payload.DesiredTemplateID
		current.Status = model.StatusProvisioning
		current.Generation++
		current.LastError = nil
		if err := d.store.UpdateDeployment(ctx, tx, current); err != nil {
			return err
		}
		if _, err := d.queue.Enqueue(ctx, tx, current.ID, model.ReasonUpdate, time.Time{}); err != nil {
			return err
		}
		deployment = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	d.logger.Infof("Updated deployment id=%d to template=%d generation=%d",
		deployment.ID, deployment.DesiredTemplateID, deployment.Generation)
	return deployment, nil
}

// Delete marks the deployment for teardown and enqueues the delete job.
// Repeated deletes are a no-op success and enqueue nothing further.
func (d *Deployments) Delete(ctx context.Context, deploymentID, userID int64) (*model.Deployment, error) {
	var deployment *model.Deployment
	err := d.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		current, err := d.store.GetDeployment(ctx, tx, deploymentID, true)
		if err != nil {
			return err
		}
		if current.UserID != userID {
			return app.NewNotFound("deployment")
		}
		if current.Status == model.StatusDeleting || current.Status == model.StatusDeleted {
			deployment = current
			return nil
		}

		ts := time.Now().UTC().Truncate(time.Microsecond)
		current.Status = model.StatusDeleting
		current.Generation++
		current.LastError = nil
		current.DeletedAt = &ts
		if err := d.store.UpdateDeployment(ctx, tx, current); err != nil {
			return err
		}
		if _, err := d.queue.Enqueue(ctx, tx, current.ID, model.ReasonDelete, time.Time{}); err != nil {
			return err
		}
		deployment = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	d.logger.Infof("Marked deployment id=%d for deletion", deploymentID)
	return deployment, nil
}

// Get loads one active deployment with relationships for the read surface.
func (d *Deployments) Get(ctx context.Context, deploymentID, userID int64) (*model.DeploymentDetail, error) {
	detail, err := d.store.GetDeploymentDetail(ctx, d.store.DB(), deploymentID, false)
	if err != nil {
		return nil, err
	}
	if detail.Deployment.UserID != userID {
		return nil, app.NewNotFound("deployment")
	}
	return detail, nil
}

// List returns the user's active deployments with relationships.
func (d *Deployments) List(ctx context.Context, userID int64) ([]model.DeploymentDetail, error) {
	deployments, err := d.store.ListDeployments(ctx, d.store.DB(), userID)
	if err != nil {
		return nil, err
	}
	details := make([]model.DeploymentDetail, 0, len(deployments))
	for _, dep := range deployments {
		detail, err := d.store.GetDeploymentDetail(ctx, d.store.DB(), dep.ID, false)
		if err != nil {
			return nil, err
		}
		details = append(details, *detail)
	}
	return details, nil
}

// preflightValues validates the user delta against the template schema and
// additionally validates the merged defaults+user document, so schema
// violations are caught even when the user supplies nothing.
func preflightValues(template *model.Template, userValues map[string]interface{}) error {
	schema := template.ValuesSchema.Object()
	if err := values.ValidateUserValues(userValues, schema); err != nil {
		return err
	}
	merged := values.MergeScoped(template.DefaultValues.Object(), userValues, map[string]interface{}{})
	return values.ValidateMergedValues(merged, schema)
}
