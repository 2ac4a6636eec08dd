package postgres

import (
	"context"
	_ "embed"

	coreerrors "ghostline-core/internal/core/errors"
)

//go:embed schema.sql
var schemaSQL string

// Schema returns the bootstrap DDL
func Schema() string {
	return schemaSQL
}

// Migrate applies the bootstrap schema. Every statement is idempotent.
func (s *Storage) Migrate(ctx context.Context) error {
	if _, err := s.Exec(ctx, schemaSQL); err != nil {
		return coreerrors.Wrap(err, coreerrors.CodeStorageError, "failed to apply schema")
	}
	s.logger.Infof("database schema is up to date")
	return nil
}
