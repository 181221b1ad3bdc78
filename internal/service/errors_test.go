package service

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/spec-kit/process-tracker/internal/repository"
	apperrors "github.com/spec-kit/process-tracker/pkg/util"
)

func TestMapRepoError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code string
	}{
		{name: "no rows", err: pgx.ErrNoRows, code: apperrors.CodeNotFound},
		{name: "malformed id", err: fmt.Errorf("get process: %w", &pgconn.PgError{Code: "22P02"}), code: apperrors.CodeNotFound},
		{name: "duplicate", err: repository.ErrDuplicate, code: apperrors.CodeConflict},
		{name: "domain error", err: apperrors.NewInvalidState("nope", nil), code: apperrors.CodeInvalidState},
		{name: "backend down", err: errors.New("connection refused"), code: apperrors.CodePersistence},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := mapRepoError(tt.err, "process", nil)
			assert.True(t, apperrors.HasCode(err, tt.code), "got %v", err)
		})
	}
	assert.NoError(t, mapRepoError(nil, "process", nil))
}
