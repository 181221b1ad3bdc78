package service

import (
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/process-tracker/internal/repository"
	apperrors "github.com/spec-kit/process-tracker/pkg/util"
)

// mapRepoError converts repository failures into the service error taxonomy.
// Domain errors pass through untouched.
func mapRepoError(err error, resource string, details map[string]any) error {
	if err == nil {
		return nil
	}
	var domainErr *apperrors.DomainError
	if errors.As(err, &domainErr) {
		return err
	}
	if errors.Is(err, pgx.ErrNoRows) || repository.IsInvalidInput(err) {
		return apperrors.NewNotFound(resource, details)
	}
	if errors.Is(err, repository.ErrDuplicate) {
		return apperrors.NewConflict(resource+" already exists", details)
	}
	return apperrors.NewPersistenceError(resource+" storage failure", err, details)
}

func ptrString(v string) *string {
	return &v
}
