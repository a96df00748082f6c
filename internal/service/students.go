package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sakif/student-registry/internal/apperror"
	"github.com/sakif/student-registry/internal/model"
	"github.com/sakif/student-registry/internal/repository"
)

// StudentService holds the admin operations over student records. Access
// control happens before these methods are reached (the admin gate); the
// service itself only enforces data rules.
type StudentService struct {
	repo   repository.UserRepository
	logger *slog.Logger
}

// NewStudentService creates a new StudentService.
func NewStudentService(repo repository.UserRepository, logger *slog.Logger) *StudentService {
	return &StudentService{
		repo:   repo,
		logger: logger,
	}
}

// List returns every student ordered by id.
func (s *StudentService) List(ctx context.Context) ([]model.User, error) {
	users, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("service/students: listing: %w", err)
	}
	return users, nil
}

// Count returns the number of students.
func (s *StudentService) Count(ctx context.Context) (int, error) {
	n, err := s.repo.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("service/students: counting: %w", err)
	}
	return n, nil
}

// Get returns one student. Returns apperror.ErrNotFound if the id is unknown.
func (s *StudentService) Get(ctx context.Context, id int64) (*model.User, error) {
	if id < 1 {
		return nil, apperror.NotFound("student", fmt.Sprint(id))
	}
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service/students: getting %d: %w", id, err)
	}
	return user, nil
}

// Update validates fields and overwrites every mutable field of the student.
func (s *StudentService) Update(ctx context.Context, id int64, fields model.StudentFields) (*model.User, error) {
	fields.Normalize()
	if err := validationError(fields.Validate()); err != nil {
		return nil, err
	}
	if id < 1 {
		return nil, apperror.NotFound("student", fmt.Sprint(id))
	}

	user, err := s.repo.Update(ctx, id, fields)
	if err != nil {
		if !errors.Is(err, apperror.ErrNotFound) {
			s.logger.Error("student update failed",
				slog.Int64("studentID", id),
				slog.String("error", err.Error()),
			)
		}
		return nil, fmt.Errorf("service/students: updating %d: %w", id, err)
	}

	s.logger.Info("student updated by admin", slog.Int64("studentID", id))
	return user, nil
}

// Delete removes a student. Returns apperror.ErrNotFound if the id is unknown.
func (s *StudentService) Delete(ctx context.Context, id int64) error {
	if id < 1 {
		return apperror.NotFound("student", fmt.Sprint(id))
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("service/students: deleting %d: %w", id, err)
	}

	s.logger.Info("student deleted by admin", slog.Int64("studentID", id))
	return nil
}
