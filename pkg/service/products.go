package service

import (
	"context"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/chartfarm/chartfarm/pkg/model"
	"github.com/chartfarm/chartfarm/pkg/store"
)

type Products struct {
	store  *store.Store
	logger *zap.SugaredLogger
}

func NewProducts(s *store.Store, logger *zap.SugaredLogger) *Products {
	return &Products{store: s, logger: logger}
}

func (p *Products) Create(ctx context.Context, name string, description *string) (*model.Product, error) {
	var product *model.Product
	err := p.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		created, err := p.store.CreateProduct(ctx, tx, name, description)
		if err != nil {
			return err
		}
		product = created
		return nil
	})
	if err != nil {
		return nil, err
	}
	p.logger.Infof("Created product id=%d name=%s", product.ID, product.Name)
	return product, nil
}

func (p *Products) Get(ctx context.Context, id int64) (*model.Product, error) {
	return p.store.GetProduct(ctx, p.store.DB(), id)
}

func (p *Products) List(ctx context.Context) ([]model.Product, error) {
	return p.store.ListProducts(ctx, p.store.DB())
}

// SetCanonicalTemplate marks one of the product's template versions as the
// version offered by default.
func (p *Products) SetCanonicalTemplate(ctx context.Context, productID, templateID int64) error {
	return p.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		return p.store.SetCanonicalTemplate(ctx, tx, productID, templateID)
	})
}

func (p *Products) Delete(ctx context.Context, id int64) error {
	return p.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		return p.store.SoftDeleteProduct(ctx, tx, id)
	})
}
