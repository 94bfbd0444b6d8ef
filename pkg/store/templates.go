package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/chartfarm/chartfarm/pkg/app"
	"github.com/chartfarm/chartfarm/pkg/model"
)

// CreateTemplate inserts a new immutable template version, filling in the
// generated id and created_at.
func (s *Store) CreateTemplate(ctx context.Context, q sqlx.ExtContext, template *model.Template) error {
	template.CreatedAt = now()
	query := q.Rebind(`
		INSERT INTO product_template_version
			(product_id, chart_ref, chart_version, chart_digest, version_label,
			 default_values_json, values_schema_json, capabilities_json, health_timeout_sec, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`)
	err := sqlx.GetContext(ctx, q, &template.ID, query,
		template.ProductID, template.ChartRef, template.ChartVersion, template.ChartDigest,
		template.VersionLabel, template.DefaultValues, template.ValuesSchema,
		template.Capabilities, template.HealthTimeoutSec, template.CreatedAt)
	if err != nil {
		if _, ok := UniqueViolation(err); ok {
			return app.NewIntegrity("template with chart %s version %s already exists for product %d",
				template.ChartRef, template.ChartVersion, template.ProductID)
		}
		return err
	}
	return nil
}

func (s *Store) GetTemplate(ctx context.Context, q sqlx.ExtContext, id int64) (*model.Template, error) {
	var template model.Template
	query := q.Rebind(`SELECT * FROM product_template_version WHERE id = ? AND deleted_at IS NULL`)
	if err := sqlx.GetContext(ctx, q, &template, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, app.NewNotFound("template")
		}
		return nil, err
	}
	return &template, nil
}

func (s *Store) ListTemplates(ctx context.Context, q sqlx.ExtContext, productID int64) ([]model.Template, error) {
	templates := []model.Template{}
	query := q.Rebind(`SELECT * FROM product_template_version WHERE product_id = ? AND deleted_at IS NULL ORDER BY id`)
	if err := sqlx.SelectContext(ctx, q, &templates, query, productID); err != nil {
		return nil, err
	}
	return templates, nil
}

func (s *Store) SoftDeleteTemplate(ctx context.Context, q sqlx.ExtContext, id int64) error {
	query := q.Rebind(`UPDATE product_template_version SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`)
	res, err := q.ExecContext(ctx, query, now(), id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return app.NewNotFound("template")
	}
	return nil
}
