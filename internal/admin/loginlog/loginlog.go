// Copyright (c) 2026 Castellan Authors. All rights reserved.

// Package loginlog records and lists authentication attempts.
package loginlog

import (
	"context"
	"time"
)

// Outcome values for a recorded attempt.
const (
	StatusFailure = 0
	StatusSuccess = 1
)

// Record is one authentication attempt, successful or not.
type Record struct {
	ID        int64     `json:"id"`
	UserUUID  string    `json:"user_uuid"`
	Username  string    `json:"username"`
	Status    int       `json:"status"`
	IPAddress string    `json:"ip_address"`
	UserAgent string    `json:"user_agent"`
	Msg       string    `json:"msg"`
	LoginTime time.Time `json:"login_time"`
	CreatedAt time.Time `json:"created_at"`
}

// Recorder persists authentication attempts. Recording is best-effort from
// the caller's point of view: login flow never fails on a recorder error.
type Recorder interface {
	Create(ctx context.Context, record Record) error
}
