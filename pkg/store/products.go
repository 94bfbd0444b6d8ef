package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/chartfarm/chartfarm/pkg/app"
	"github.com/chartfarm/chartfarm/pkg/model"
)

func (s *Store) CreateProduct(ctx context.Context, q sqlx.ExtContext, name string, description *string) (*model.Product, error) {
	product := model.Product{
		Name:        name,
		Description: description,
		CreatedAt:   now(),
	}
	query := q.Rebind(`INSERT INTO product (name, description, created_at) VALUES (?, ?, ?) RETURNING id`)
	if err := sqlx.GetContext(ctx, q, &product.ID, query, product.Name, product.Description, product.CreatedAt); err != nil {
		if _, ok := UniqueViolation(err); ok {
			return nil, app.NewIntegrity("product with name %q already exists", name)
		}
		return nil, err
	}
	return &product, nil
}

func (s *Store) GetProduct(ctx context.Context, q sqlx.ExtContext, id int64) (*model.Product, error) {
	var product model.Product
	query := q.Rebind(`SELECT * FROM product WHERE id = ? AND deleted_at IS NULL`)
	if err := sqlx.GetContext(ctx, q, &product, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, app.NewNotFound("product")
		}
		return nil, err
	}
	return &product, nil
}

func (s *Store) ListProducts(ctx context.Context, q sqlx.ExtContext) ([]model.Product, error) {
	products := []model.Product{}
	query := `SELECT * FROM product WHERE deleted_at IS NULL ORDER BY id`
	if err := sqlx.SelectContext(ctx, q, &products, query); err != nil {
		return nil, err
	}
	return products, nil
}

// SetCanonicalTemplate points the product at its canonical template. The
// template must belong to the product.
func (s *Store) SetCanonicalTemplate(ctx context.Context, q sqlx.ExtContext, productID, templateID int64) error {
	template, err := s.GetTemplate(ctx, q, templateID)
	if err != nil {
		return err
	}
	if template.ProductID != productID {
		return app.NewIntegrity("template %d does not belong to product %d", templateID, productID)
	}
	query := q.Rebind(`UPDATE product SET canonical_template_id = ? WHERE id = ? AND deleted_at IS NULL`)
	res, err := q.ExecContext(ctx, query, templateID, productID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return app.NewNotFound("product")
	}
	return nil
}

func (s *Store) SoftDeleteProduct(ctx context.Context, q sqlx.ExtContext, id int64) error {
	query := q.Rebind(`UPDATE product SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`)
	res, err := q.ExecContext(ctx, query, now(), id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return app.NewNotFound("product")
	}
	return nil
}
