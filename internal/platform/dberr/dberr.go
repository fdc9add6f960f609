// Copyright (c) 2026 Castellan Authors. All rights reserved.

// Package dberr provides a bridge between low-level database errors and
// higher-level application errors.
package dberr

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/castellan-io/castellan/internal/platform/apperr"
)

// Wrap classifies a database error into a meaningful application error,
// hiding storage internals from the client.
//
// A missing row becomes NOT_FOUND for the named resource; anything else is
// wrapped with the failed action for server-side logs.
func Wrap(err error, resource, action string) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound(resource)
	}

	return fmt.Errorf("%s_failed: %w", action, err)
}
