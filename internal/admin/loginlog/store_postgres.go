// Copyright (c) 2026 Castellan Authors. All rights reserved.

package loginlog

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/castellan-io/castellan/pkg/pagination"
)

// PostgresStore persists login records in the sys_login_log table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ Recorder = (*PostgresStore)(nil)

// NewPostgresStore creates a PostgreSQL-backed login log store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Create inserts one login record.
func (s *PostgresStore) Create(ctx context.Context, record Record) error {
	const query = `
		INSERT INTO sys_login_log
			(user_uuid, username, status, ip_address, user_agent, msg, login_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := s.pool.Exec(ctx, query,
		record.UserUUID,
		record.Username,
		record.Status,
		record.IPAddress,
		record.UserAgent,
		record.Msg,
		record.LoginTime,
	)
	if err != nil {
		return fmt.Errorf("loginlog_store_create_failed: %w", err)
	}
	return nil
}

// List returns login records newest-first, plus the total count for
// pagination metadata.
func (s *PostgresStore) List(ctx context.Context, params pagination.Params) ([]Record, int, error) {
	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM sys_login_log`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("loginlog_store_count_failed: %w", err)
	}

	const query = `
		SELECT id, user_uuid, username, status, ip_address, user_agent, msg,
		       login_time, created_at
		FROM sys_login_log
		ORDER BY login_time DESC, id DESC
		LIMIT $1 OFFSET $2`

	rows, err := s.pool.Query(ctx, query, params.Limit, params.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("loginlog_store_list_failed: %w", err)
	}
	defer rows.Close()

	records := make([]Record, 0, params.Limit)
	for rows.Next() {
		var record Record
		if err := rows.Scan(
			&record.ID,
			&record.UserUUID,
			&record.Username,
			&record.Status,
			&record.IPAddress,
			&record.UserAgent,
			&record.Msg,
			&record.LoginTime,
			&record.CreatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("loginlog_store_scan_failed: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("loginlog_store_rows_failed: %w", err)
	}

	return records, total, nil
}
