// Package repository declares the storage interfaces the service layer
// depends on. Implementations live in sub-packages (see repository/sqlite).
package repository

import (
	"context"

	"github.com/sakif/student-registry/internal/model"
)

// UserRepository is CRUD over the single users table.
//
// Lookups return an apperror.ErrNotFound error when no row matches.
// Create returns apperror.ErrDuplicateEmail when the email is taken.
type UserRepository interface {
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	FindByID(ctx context.Context, id int64) (*model.User, error)
	List(ctx context.Context) ([]model.User, error)
	Count(ctx context.Context) (int, error)
	Create(ctx context.Context, user *model.User) error
	Update(ctx context.Context, id int64, fields model.StudentFields) (*model.User, error)
	Delete(ctx context.Context, id int64) error
}
