package user

import (
	"context"
	"errors"

	"github.com/trezcool/campus/core"
)

var ErrNotFound = errors.New("user not found")

// Repository reads the identities the platform knows about. Accounts are managed elsewhere.
type Repository interface {
	GetUser(ctx context.Context, id string, exec ...core.DBExecutor) (User, error)
}
