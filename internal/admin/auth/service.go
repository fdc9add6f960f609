// Copyright (c) 2026 Castellan Authors. All rights reserved.

package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/castellan-io/castellan/internal/admin/identity"
	"github.com/castellan-io/castellan/internal/admin/loginlog"
	"github.com/castellan-io/castellan/internal/platform/apperr"
	"github.com/castellan-io/castellan/internal/platform/sec"
	"github.com/castellan-io/castellan/internal/platform/validate"
)

// LoginResult bundles the authenticated identity with its freshly issued
// token pair.
type LoginResult struct {
	Identity *identity.Identity
	Tokens   TokenPair
}

// Options carries the tunable parts of the service.
type Options struct {
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	// IdentityCacheTTL bounds how long a cached identity may serve the
	// authentication path without a relational re-read.
	IdentityCacheTTL time.Duration

	// MultiLoginDefault permits concurrent sessions even for users whose
	// own multi-login flag is off.
	MultiLoginDefault bool
}

// Service implements the authentication lifecycle: credential verification,
// session issuance, refresh rotation, bearer authentication, and logout.
type Service struct {
	identities    identity.Store
	sessions      SessionStore
	identityCache IdentityCache
	codec         *sec.TokenCodec
	loginLog      loginlog.Recorder
	logger        *slog.Logger
	opts          Options

	// now and newSessionUUID are injection points for tests.
	now            func() time.Time
	newSessionUUID func() string
}

// NewService wires the authentication service.
func NewService(
	identities identity.Store,
	sessions SessionStore,
	identityCache IdentityCache,
	codec *sec.TokenCodec,
	loginLog loginlog.Recorder,
	logger *slog.Logger,
	opts Options,
) *Service {
	return &Service{
		identities:     identities,
		sessions:       sessions,
		identityCache:  identityCache,
		codec:          codec,
		loginLog:       loginLog,
		logger:         logger,
		opts:           opts,
		now:            time.Now,
		newSessionUUID: uuid.NewString,
	}
}

// # Credential Verification

// VerifyCredentials checks a username/password pair and the account gates.
//
// The gate order is fixed: unknown user, empty stored hash, and password
// mismatch all collapse into the same INVALID_CREDENTIALS error so the
// response never reveals whether the username exists. Account, department,
// and role state are only examined after the password has matched.
func (s *Service) VerifyCredentials(ctx context.Context, username, password string) (*identity.Identity, error) {
	ident, err := s.identities.FindByUsername(ctx, username)
	if err != nil {
		if appErr := apperr.As(err); appErr != nil && appErr.Code == "NOT_FOUND" {
			return nil, apperr.InvalidCredentials()
		}
		return nil, apperr.Internal(err)
	}

	if ident.PasswordHash == "" || !sec.CheckPasswordHash(password, ident.PasswordHash) {
		return nil, apperr.InvalidCredentials()
	}

	if !ident.IsActive() {
		return nil, apperr.AccountDisabled()
	}

	if ident.Dept != nil && ident.Dept.Status != identity.StatusEnabled {
		return nil, apperr.DepartmentDisabled()
	}

	if len(ident.Roles) > 0 && !ident.HasEnabledRole() {
		return nil, apperr.NoActiveRole()
	}

	return ident, nil
}

// # Login

// Login verifies credentials and mints a new session.
//
// Unless multi-login applies, every existing session of the user is swept
// before the new one is created, enforcing one active session per user.
// Audit recording, last-login updates, and identity-cache priming are
// best-effort: their failure never fails a successful login.
func (s *Service) Login(ctx context.Context, input LoginInput) (*LoginResult, error) {
	v := &validate.Validator{}
	if err := v.
		Required("username", input.Username).
		Required("password", input.Password).
		Err(); err != nil {
		return nil, err
	}

	ident, err := s.VerifyCredentials(ctx, input.Username, input.Password)
	if err != nil {
		s.recordLogin(ctx, nil, input, loginlog.StatusFailure, loginFailureMsg(err))
		return nil, err
	}

	if !s.multiLoginAllowed(ident) {
		if err := s.sessions.DeleteAllForUser(ctx, ident.ID); err != nil {
			return nil, apperr.Internal(err)
		}
	}

	sessionUUID := s.newSessionUUID()
	pair, err := s.issuePair(ctx, ident.ID, sessionUUID)
	if err != nil {
		return nil, err
	}

	meta := SessionMeta{
		IPAddress: input.IPAddress,
		UserAgent: input.UserAgent,
		LoginTime: s.now(),
	}
	if err := s.sessions.PutMeta(ctx, ident.ID, sessionUUID, meta, s.opts.RefreshTokenTTL); err != nil {
		return nil, apperr.Internal(err)
	}

	now := s.now()
	if err := s.identities.UpdateLastLogin(ctx, ident.ID, now); err != nil {
		s.logger.WarnContext(ctx, "last_login_update_failed",
			slog.Int64("user_id", ident.ID), slog.String("error", err.Error()))
	} else {
		ident.LastLoginTime = &now
	}

	s.recordLogin(ctx, ident, input, loginlog.StatusSuccess, "login succeeded")
	s.primeIdentityCache(ctx, ident)

	return &LoginResult{Identity: ident, Tokens: pair}, nil
}

// multiLoginAllowed combines the per-user flag with the global default.
func (s *Service) multiLoginAllowed(ident *identity.Identity) bool {
	return ident.IsMultiLogin || s.opts.MultiLoginDefault
}

// issuePair mints an access/refresh token pair bound to the session and
// registers both in the session store.
func (s *Service) issuePair(ctx context.Context, userID int64, sessionUUID string) (TokenPair, error) {
	now := s.now()
	accessExpiresAt := now.Add(s.opts.AccessTokenTTL)
	refreshExpiresAt := now.Add(s.opts.RefreshTokenTTL)

	accessToken, err := s.codec.Encode(userID, sessionUUID, accessExpiresAt)
	if err != nil {
		return TokenPair{}, apperr.Internal(err)
	}

	refreshToken, err := s.codec.Encode(userID, sessionUUID, refreshExpiresAt)
	if err != nil {
		return TokenPair{}, apperr.Internal(err)
	}

	if err := s.sessions.PutAccess(ctx, userID, sessionUUID, accessToken, s.opts.AccessTokenTTL); err != nil {
		return TokenPair{}, apperr.Internal(err)
	}
	if err := s.sessions.PutRefresh(ctx, userID, sessionUUID, refreshToken, s.opts.RefreshTokenTTL); err != nil {
		return TokenPair{}, apperr.Internal(err)
	}

	return TokenPair{
		AccessToken:      accessToken,
		AccessExpiresAt:  accessExpiresAt,
		RefreshToken:     refreshToken,
		RefreshExpiresAt: refreshExpiresAt,
		SessionUUID:      sessionUUID,
	}, nil
}

// # Refresh Rotation

// Refresh exchanges a live refresh token for a new token pair on the same
// session. The presented token must byte-for-byte match the stored one; the
// old pair is revoked before the new pair is issued, so a refresh token is
// single-use.
//
// Every verification failure collapses into REFRESH_TOKEN_INVALID so the
// response does not reveal which check rejected the token.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	payload, err := s.codec.Decode(refreshToken)
	if err != nil {
		return nil, apperr.RefreshTokenInvalid()
	}

	stored, found, err := s.sessions.GetRefresh(ctx, payload.UserID, payload.SessionUUID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if !found || stored != refreshToken {
		return nil, apperr.RefreshTokenInvalid()
	}

	ident, err := s.resolveIdentity(ctx, payload.UserID)
	if err != nil {
		if appErr := apperr.As(err); appErr != nil && appErr.Code == "NOT_FOUND" {
			return nil, apperr.RefreshTokenInvalid()
		}
		return nil, apperr.Internal(err)
	}
	if !ident.IsActive() {
		return nil, apperr.RefreshTokenInvalid()
	}

	// Revoke before reissue: the old pair must never outlive the exchange.
	if err := s.sessions.DeleteAccess(ctx, payload.UserID, payload.SessionUUID); err != nil {
		return nil, apperr.Internal(err)
	}
	if err := s.sessions.DeleteRefresh(ctx, payload.UserID, payload.SessionUUID); err != nil {
		return nil, apperr.Internal(err)
	}

	pair, err := s.issuePair(ctx, payload.UserID, payload.SessionUUID)
	if err != nil {
		return nil, err
	}
	return &pair, nil
}

// # Bearer Authentication

// Authenticate validates a bearer token and returns the live principal.
//
// A token that verifies cryptographically but is absent from the session
// store has been revoked; it is reported as expired so clients follow their
// ordinary refresh path.
func (s *Service) Authenticate(ctx context.Context, token string) (*identity.Principal, error) {
	payload, err := s.codec.Decode(token)
	if err != nil {
		switch {
		case errors.Is(err, sec.ErrTokenExpired):
			return nil, apperr.TokenExpired()
		case errors.Is(err, sec.ErrTokenIncomplete):
			return nil, apperr.TokenIncomplete()
		default:
			return nil, apperr.TokenMalformed()
		}
	}

	stored, found, err := s.sessions.GetAccess(ctx, payload.UserID, payload.SessionUUID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if !found || stored != token {
		return nil, apperr.TokenExpired()
	}

	ident, err := s.resolveIdentity(ctx, payload.UserID)
	if err != nil {
		if appErr := apperr.As(err); appErr != nil && appErr.Code == "NOT_FOUND" {
			return nil, apperr.Unauthenticated("account no longer exists")
		}
		return nil, apperr.Internal(err)
	}
	if !ident.IsActive() {
		return nil, apperr.AccountDisabled()
	}

	return &identity.Principal{Identity: ident, SessionUUID: payload.SessionUUID}, nil
}

// resolveIdentity loads an identity through the cache, falling back to the
// relational store and re-priming the cache on a miss. Cache failures fall
// through to the store.
func (s *Service) resolveIdentity(ctx context.Context, userID int64) (*identity.Identity, error) {
	cached, found, err := s.identityCache.Get(ctx, userID)
	if err != nil {
		s.logger.WarnContext(ctx, "identity_cache_read_failed",
			slog.Int64("user_id", userID), slog.String("error", err.Error()))
	} else if found {
		return cached, nil
	}

	ident, err := s.identities.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	s.primeIdentityCache(ctx, ident)
	return ident, nil
}

// primeIdentityCache writes an identity to the cache, best-effort.
func (s *Service) primeIdentityCache(ctx context.Context, ident *identity.Identity) {
	if err := s.identityCache.Set(ctx, ident, s.opts.IdentityCacheTTL); err != nil {
		s.logger.WarnContext(ctx, "identity_cache_write_failed",
			slog.Int64("user_id", ident.ID), slog.String("error", err.Error()))
	}
}

// # Logout

// Logout revokes one session. It is idempotent: revoking an already-dead
// session succeeds.
func (s *Service) Logout(ctx context.Context, userID int64, sessionUUID string) error {
	if err := s.sessions.DeleteAccess(ctx, userID, sessionUUID); err != nil {
		return apperr.Internal(err)
	}
	if err := s.sessions.DeleteRefresh(ctx, userID, sessionUUID); err != nil {
		return apperr.Internal(err)
	}
	if err := s.sessions.DeleteMeta(ctx, userID, sessionUUID); err != nil {
		return apperr.Internal(err)
	}
	return nil
}

// # Audit

// recordLogin writes one login-log row, best-effort. ident is nil for
// failed attempts against unknown or rejected accounts.
func (s *Service) recordLogin(ctx context.Context, ident *identity.Identity, input LoginInput, status int, msg string) {
	record := loginlog.Record{
		Username:  input.Username,
		Status:    status,
		IPAddress: input.IPAddress,
		UserAgent: input.UserAgent,
		Msg:       msg,
		LoginTime: s.now(),
	}
	if ident != nil {
		record.UserUUID = ident.UUID
	}

	if err := s.loginLog.Create(ctx, record); err != nil {
		s.logger.WarnContext(ctx, "login_log_write_failed",
			slog.String("username", input.Username), slog.String("error", err.Error()))
	}
}

// loginFailureMsg maps a verification error to the audit message without
// leaking internals.
func loginFailureMsg(err error) string {
	if appErr := apperr.As(err); appErr != nil {
		return appErr.Message
	}
	return "login failed"
}
