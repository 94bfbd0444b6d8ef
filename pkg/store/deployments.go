package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/chartfarm/chartfarm/pkg/app"
	"github.com/chartfarm/chartfarm/pkg/model"
)

// InsertDeployment persists a new deployment, filling in the generated id
// and created_at. Unique-index violations on domainname or deployment_uid
// surface as integrity errors.
func (s *Store) InsertDeployment(ctx context.Context, q sqlx.ExtContext, d *model.Deployment) error {
	d.CreatedAt = now()
	query := q.Rebind(`
		INSERT INTO deployment
			(user_id, domainname, deployment_uid, desired_template_id, applied_template_id,
			 user_values_json, status, generation, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`)
	err := sqlx.GetContext(ctx, q, &d.ID, query,
		d.UserID, d.Domainname, d.DeploymentUID, d.DesiredTemplateID, d.AppliedTemplateID,
		d.UserValues, d.Status, d.Generation, d.CreatedAt)
	if err != nil {
		if constraint, ok := UniqueViolation(err); ok {
			if strings.Contains(constraint, "uid") {
				return app.NewIntegrity("deployment uid %q already exists", d.DeploymentUID)
			}
			return app.NewIntegrity("deployment with domain %q already exists", d.Domainname)
		}
		return err
	}
	return nil
}

// UpdateDeployment writes back every mutable field of the deployment.
func (s *Store) UpdateDeployment(ctx context.Context, q sqlx.ExtContext, d *model.Deployment) error {
	query := q.Rebind(`
		UPDATE deployment
		SET desired_template_id = ?, applied_template_id = ?, user_values_json = ?,
		    status = ?, generation = ?, last_error = ?, last_reconcile_at = ?, deleted_at = ?
		WHERE id = ?`)
	res, err := q.ExecContext(ctx, query,
		d.DesiredTemplateID, d.AppliedTemplateID, d.UserValues,
		d.Status, d.Generation, d.LastError, d.LastReconcileAt, d.DeletedAt, d.ID)
	if err != nil {
		if _, ok := UniqueViolation(err); ok {
			return app.NewIntegrity("deployment update violates a uniqueness constraint")
		}
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return app.NewNotFound("deployment")
	}
	return nil
}

// GetDeployment loads a deployment row. Soft-deleted rows are only visible
// when includeDeleted is set; the reconciler needs them for the delete path.
func (s *Store) GetDeployment(ctx context.Context, q sqlx.ExtContext, id int64, includeDeleted bool) (*model.Deployment, error) {
	query := `SELECT * FROM deployment WHERE id = ?`
	if !includeDeleted {
		query += ` AND deleted_at IS NULL`
	}
	var d model.Deployment
	if err := sqlx.GetContext(ctx, q, &d, q.Rebind(query), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, app.NewNotFound("deployment")
		}
		return nil, err
	}
	return &d, nil
}

// GetDeploymentForUser loads an active deployment owned by the user.
func (s *Store) GetDeploymentForUser(ctx context.Context, q sqlx.ExtContext, id, userID int64) (*model.Deployment, error) {
	var d model.Deployment
	query := q.Rebind(`SELECT * FROM deployment WHERE id = ? AND user_id = ? AND deleted_at IS NULL`)
	if err := sqlx.GetContext(ctx, q, &d, query, id, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, app.NewNotFound("deployment")
		}
		return nil, err
	}
	return &d, nil
}

func (s *Store) ListDeployments(ctx context.Context, q sqlx.ExtContext, userID int64) ([]model.Deployment, error) {
	deployments := []model.Deployment{}
	query := q.Rebind(`SELECT * FROM deployment WHERE user_id = ? AND deleted_at IS NULL ORDER BY id`)
	if err := sqlx.SelectContext(ctx, q, &deployments, query, userID); err != nil {
		return nil, err
	}
	return deployments, nil
}

// GetDeploymentDetail loads a deployment together with its user, desired
// template (and that template's product) and applied template.
func (s *Store) GetDeploymentDetail(ctx context.Context, q sqlx.ExtContext, id int64, includeDeleted bool) (*model.DeploymentDetail, error) {
	deployment, err := s.GetDeployment(ctx, q, id, includeDeleted)
	if err != nil {
		return nil, err
	}
	detail := &model.DeploymentDetail{Deployment: *deployment}

	var user model.User
	if err := sqlx.GetContext(ctx, q, &user, q.Rebind(`SELECT * FROM user_account WHERE id = ?`), deployment.UserID); err == nil {
		if user.DeletedAt == nil {
			detail.User = &user
		}
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	var desired model.Template
	err = sqlx.GetContext(ctx, q, &desired, q.Rebind(`SELECT * FROM product_template_version WHERE id = ?`), deployment.DesiredTemplateID)
	if err == nil {
		detail.DesiredTemplate = &desired
		var product model.Product
		err := sqlx.GetContext(ctx, q, &product, q.Rebind(`SELECT * FROM product WHERE id = ?`), desired.ProductID)
		if err == nil {
			detail.DesiredProduct = &product
		} else if !errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	if deployment.AppliedTemplateID != nil {
		var applied model.Template
		err := sqlx.GetContext(ctx, q, &applied, q.Rebind(`SELECT * FROM product_template_version WHERE id = ?`), *deployment.AppliedTemplateID)
		if err == nil {
			detail.AppliedTemplate = &applied
		} else if !errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
	}
	return detail, nil
}
