package inmemdb

import (
	"context"

	"github.com/trezcool/campus/core"
	"github.com/trezcool/campus/core/user"
)

type userRepository struct {
	db *DB
}

var _ user.Repository = (*userRepository)(nil)

func NewUserRepository(db *DB) user.Repository {
	return &userRepository{db: db}
}

func (repo *userRepository) GetUser(_ context.Context, id string, _ ...core.DBExecutor) (user.User, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if usr, ok := repo.db.data.users[id]; ok {
		return usr, nil
	}
	return user.User{}, user.ErrNotFound
}

// AddUser stores usr as is.
func (db *DB) AddUser(usr user.User) user.User {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.data.users[usr.ID] = usr
	return usr
}
