package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/chartfarm/chartfarm/pkg/app"
	"github.com/chartfarm/chartfarm/pkg/model"
)

func (s *Store) CreateUser(ctx context.Context, q sqlx.ExtContext, email string, isAdmin bool) (*model.User, error) {
	user := model.User{
		Email:     email,
		IsAdmin:   isAdmin,
		CreatedAt: now(),
	}
	query := q.Rebind(`INSERT INTO user_account (email, is_admin, created_at) VALUES (?, ?, ?) RETURNING id`)
	if err := sqlx.GetContext(ctx, q, &user.ID, query, user.Email, user.IsAdmin, user.CreatedAt); err != nil {
		if _, ok := UniqueViolation(err); ok {
			return nil, app.NewIntegrity("user with email %q already exists", email)
		}
		return nil, err
	}
	return &user, nil
}

func (s *Store) GetUser(ctx context.Context, q sqlx.ExtContext, id int64) (*model.User, error) {
	var user model.User
	query := q.Rebind(`SELECT * FROM user_account WHERE id = ? AND deleted_at IS NULL`)
	if err := sqlx.GetContext(ctx, q, &user, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, app.NewNotFound("user")
		}
		return nil, err
	}
	return &user, nil
}

func (s *Store) ListUsers(ctx context.Context, q sqlx.ExtContext) ([]model.User, error) {
	users := []model.User{}
	query := `SELECT * FROM user_account WHERE deleted_at IS NULL ORDER BY id`
	if err := sqlx.SelectContext(ctx, q, &users, query); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) SoftDeleteUser(ctx context.Context, q sqlx.ExtContext, id int64) error {
	query := q.Rebind(`UPDATE user_account SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`)
	res, err := q.ExecContext(ctx, query, now(), id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return app.NewNotFound("user")
	}
	return nil
}
