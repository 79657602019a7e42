package sqlxrepos

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/trezcool/campus/core"
	"github.com/trezcool/campus/core/user"
)

type userRepository struct {
	baseRepository
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *sqlx.DB) user.Repository {
	return &userRepository{baseRepository{db: db}}
}

type userRow struct {
	user.User
	Roles pq.StringArray `db:"roles"`
}

func (repo userRepository) GetUser(ctx context.Context, id string, exec ...core.DBExecutor) (user.User, error) {
	query, args, err := psql.
		Select("id", "name", "email", "is_active", "roles", "created_at").
		From(`"user"`).
		Where("id = ?", id).
		ToSql()
	if err != nil {
		return user.User{}, err
	}
	var row userRow
	if err = sqlx.GetContext(ctx, repo.getExec(exec), &row, query, args...); err != nil {
		return user.User{}, trapNoRowsErr(err, user.ErrNotFound, "getting user")
	}
	usr := row.User
	usr.Roles = []string(row.Roles)
	return usr, nil
}
