// Package service implements the write-side operations over the catalog
// and deployments. Every method runs in a single transaction; on failure
// after state mutations the transaction is rolled back.
package service

import (
	"context"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/chartfarm/chartfarm/pkg/model"
	"github.com/chartfarm/chartfarm/pkg/store"
)

type Users struct {
	store  *store.Store
	logger *zap.SugaredLogger
}

func NewUsers(s *store.Store, logger *zap.SugaredLogger) *Users {
	return &Users{store: s, logger: logger}
}

func (u *Users) Create(ctx context.Context, email string, isAdmin bool) (*model.User, error) {
	var user *model.User
	err := u.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		created, err := u.store.CreateUser(ctx, tx, email, isAdmin)
		if err != nil {
			return err
		}
		user = created
		return nil
	})
	if err != nil {
		return nil, err
	}
	u.logger.Infof("Created user id=%d email=%s", user.ID, user.Email)
	return user, nil
}

func (u *Users) Get(ctx context.Context, id int64) (*model.User, error) {
	return u.store.GetUser(ctx, u.store.DB(), id)
}

func (u *Users) List(ctx context.Context) ([]model.User, error) {
	return u.store.ListUsers(ctx, u.store.DB())
}

func (u *Users) Delete(ctx context.Context, id int64) error {
	return u.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		return u.store.SoftDeleteUser(ctx, tx, id)
	})
}
