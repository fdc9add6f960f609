// Copyright (c) 2026 Castellan Authors. All rights reserved.

package auth

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/castellan-io/castellan/internal/admin/identity"
	"github.com/castellan-io/castellan/internal/admin/loginlog"
	"github.com/castellan-io/castellan/internal/platform/apperr"
	"github.com/castellan-io/castellan/internal/platform/sec"
)

// # Fakes

type fakeIdentityStore struct {
	byUsername map[string]*identity.Identity
	byID       map[int64]*identity.Identity
	findByID   int
	lastLogin  map[int64]time.Time
}

func newFakeIdentityStore(idents ...*identity.Identity) *fakeIdentityStore {
	s := &fakeIdentityStore{
		byUsername: make(map[string]*identity.Identity),
		byID:       make(map[int64]*identity.Identity),
		lastLogin:  make(map[int64]time.Time),
	}
	for _, ident := range idents {
		s.byUsername[ident.Username] = ident
		s.byID[ident.ID] = ident
	}
	return s
}

func (s *fakeIdentityStore) FindByUsername(_ context.Context, username string) (*identity.Identity, error) {
	ident, ok := s.byUsername[username]
	if !ok {
		return nil, apperr.NotFound("User")
	}
	clone := *ident
	return &clone, nil
}

func (s *fakeIdentityStore) FindByID(_ context.Context, id int64) (*identity.Identity, error) {
	s.findByID++
	ident, ok := s.byID[id]
	if !ok {
		return nil, apperr.NotFound("User")
	}
	clone := *ident
	return &clone, nil
}

func (s *fakeIdentityStore) EnabledPermissions(_ context.Context, _ int64) ([]string, error) {
	return nil, nil
}

func (s *fakeIdentityStore) UserIDsForRole(_ context.Context, _ int64) ([]int64, error) {
	return nil, nil
}

func (s *fakeIdentityStore) UpdateLastLogin(_ context.Context, userID int64, at time.Time) error {
	s.lastLogin[userID] = at
	return nil
}

type fakeSessionStore struct {
	access  map[string]string
	refresh map[string]string
	meta    map[string]SessionMeta
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{
		access:  make(map[string]string),
		refresh: make(map[string]string),
		meta:    make(map[string]SessionMeta),
	}
}

func sessionKey(userID int64, sessionUUID string) string {
	return fmt.Sprintf("%d:%s", userID, sessionUUID)
}

func (s *fakeSessionStore) PutAccess(_ context.Context, userID int64, sid, token string, _ time.Duration) error {
	s.access[sessionKey(userID, sid)] = token
	return nil
}

func (s *fakeSessionStore) GetAccess(_ context.Context, userID int64, sid string) (string, bool, error) {
	token, found := s.access[sessionKey(userID, sid)]
	return token, found, nil
}

func (s *fakeSessionStore) DeleteAccess(_ context.Context, userID int64, sid string) error {
	delete(s.access, sessionKey(userID, sid))
	return nil
}

func (s *fakeSessionStore) PutRefresh(_ context.Context, userID int64, sid, token string, _ time.Duration) error {
	s.refresh[sessionKey(userID, sid)] = token
	return nil
}

func (s *fakeSessionStore) GetRefresh(_ context.Context, userID int64, sid string) (string, bool, error) {
	token, found := s.refresh[sessionKey(userID, sid)]
	return token, found, nil
}

func (s *fakeSessionStore) DeleteRefresh(_ context.Context, userID int64, sid string) error {
	delete(s.refresh, sessionKey(userID, sid))
	return nil
}

func (s *fakeSessionStore) PutMeta(_ context.Context, userID int64, sid string, meta SessionMeta, _ time.Duration) error {
	s.meta[sessionKey(userID, sid)] = meta
	return nil
}

func (s *fakeSessionStore) DeleteMeta(_ context.Context, userID int64, sid string) error {
	delete(s.meta, sessionKey(userID, sid))
	return nil
}

func (s *fakeSessionStore) DeleteAllForUser(_ context.Context, userID int64) error {
	prefix := fmt.Sprintf("%d:", userID)
	for _, family := range []map[string]string{s.access, s.refresh} {
		for key := range family {
			if len(key) > len(prefix) && key[:len(prefix)] == prefix {
				delete(family, key)
			}
		}
	}
	for key := range s.meta {
		if len(key) > len(prefix) && key[:len(prefix)] == prefix {
			delete(s.meta, key)
		}
	}
	return nil
}

type fakeIdentityCache struct {
	entries map[int64]*identity.Identity
}

func newFakeIdentityCache() *fakeIdentityCache {
	return &fakeIdentityCache{entries: make(map[int64]*identity.Identity)}
}

func (c *fakeIdentityCache) Get(_ context.Context, userID int64) (*identity.Identity, bool, error) {
	ident, found := c.entries[userID]
	return ident, found, nil
}

func (c *fakeIdentityCache) Set(_ context.Context, ident *identity.Identity, _ time.Duration) error {
	c.entries[ident.ID] = ident
	return nil
}

func (c *fakeIdentityCache) Invalidate(_ context.Context, userID int64) error {
	delete(c.entries, userID)
	return nil
}

type fakeRecorder struct {
	records []loginlog.Record
}

func (r *fakeRecorder) Create(_ context.Context, record loginlog.Record) error {
	r.records = append(r.records, record)
	return nil
}

// # Fixture

const testPassword = "correct-horse-battery"

type fixture struct {
	service  *Service
	idents   *fakeIdentityStore
	sessions *fakeSessionStore
	cache    *fakeIdentityCache
	recorder *fakeRecorder
	codec    *sec.TokenCodec
}

func testIdentity(t *testing.T) *identity.Identity {
	t.Helper()
	hash, err := sec.HashPassword(testPassword)
	require.NoError(t, err)

	return &identity.Identity{
		ID:           1,
		UUID:         "0e6f1d1c-user",
		Username:     "carol",
		Nickname:     "Carol",
		PasswordHash: hash,
		Status:       identity.StatusEnabled,
		IsStaff:      true,
		Dept:         &identity.Dept{ID: 1, Name: "ops", Status: identity.StatusEnabled},
		Roles:        []identity.Role{{ID: 1, Name: "admin", Status: identity.StatusEnabled}},
	}
}

func newFixture(t *testing.T, idents ...*identity.Identity) *fixture {
	t.Helper()

	codec, err := sec.NewTokenCodec("service-test-secret", "HS256", "castellan.io")
	require.NoError(t, err)

	f := &fixture{
		idents:   newFakeIdentityStore(idents...),
		sessions: newFakeSessionStore(),
		cache:    newFakeIdentityCache(),
		recorder: &fakeRecorder{},
		codec:    codec,
	}

	f.service = NewService(f.idents, f.sessions, f.cache, codec, f.recorder,
		slog.New(slog.NewTextHandler(io.Discard, nil)), Options{
			AccessTokenTTL:   time.Hour,
			RefreshTokenTTL:  2 * time.Hour,
			IdentityCacheTTL: time.Hour,
		})

	return f
}

func login(t *testing.T, f *fixture) *LoginResult {
	t.Helper()
	result, err := f.service.Login(context.Background(), LoginInput{
		Username:  "carol",
		Password:  testPassword,
		IPAddress: "203.0.113.9",
		UserAgent: "test-agent",
	})
	require.NoError(t, err)
	return result
}

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	appErr := apperr.As(err)
	require.NotNil(t, appErr, "expected an AppError, got %v", err)
	assert.Equal(t, code, appErr.Code)
}

// # Login

/*
TestService_Login_Success verifies the full happy path: token pair, session

	registration, metadata, audit record, and last-login update.
*/
func TestService_Login_Success(t *testing.T) {
	f := newFixture(t, testIdentity(t))
	result := login(t, f)

	assert.Equal(t, "carol", result.Identity.Username)
	assert.NotEmpty(t, result.Tokens.SessionUUID)
	assert.True(t, result.Tokens.RefreshExpiresAt.After(result.Tokens.AccessExpiresAt))

	// Both tokens decode and carry the same session UUID.
	accessPayload, err := f.codec.Decode(result.Tokens.AccessToken)
	require.NoError(t, err)
	refreshPayload, err := f.codec.Decode(result.Tokens.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, result.Tokens.SessionUUID, accessPayload.SessionUUID)
	assert.Equal(t, result.Tokens.SessionUUID, refreshPayload.SessionUUID)

	// Both tokens are registered in the session store.
	key := sessionKey(1, result.Tokens.SessionUUID)
	assert.Equal(t, result.Tokens.AccessToken, f.sessions.access[key])
	assert.Equal(t, result.Tokens.RefreshToken, f.sessions.refresh[key])

	meta := f.sessions.meta[key]
	assert.Equal(t, "203.0.113.9", meta.IPAddress)
	assert.Equal(t, "test-agent", meta.UserAgent)

	require.Len(t, f.recorder.records, 1)
	assert.Equal(t, loginlog.StatusSuccess, f.recorder.records[0].Status)
	assert.Contains(t, f.idents.lastLogin, int64(1))
}

/* TestService_Login_Failures exercises the credential and account gates. */
func TestService_Login_Failures(t *testing.T) {
	disabled := testIdentity(t)
	disabled.ID = 2
	disabled.Username = "dave"
	disabled.Status = identity.StatusDisabled

	frozenDept := testIdentity(t)
	frozenDept.ID = 3
	frozenDept.Username = "erin"
	frozenDept.Dept = &identity.Dept{ID: 2, Name: "mothballed", Status: identity.StatusDisabled}

	lockedRoles := testIdentity(t)
	lockedRoles.ID = 4
	lockedRoles.Username = "frank"
	lockedRoles.Roles = []identity.Role{{ID: 9, Name: "legacy", Status: identity.StatusDisabled}}

	f := newFixture(t, testIdentity(t), disabled, frozenDept, lockedRoles)

	tests := []struct {
		name     string
		username string
		password string
		wantCode string
	}{
		{"unknown user", "nobody", testPassword, "INVALID_CREDENTIALS"},
		{"wrong password", "carol", "wrong", "INVALID_CREDENTIALS"},
		{"disabled account", "dave", testPassword, "ACCOUNT_DISABLED"},
		{"disabled department", "erin", testPassword, "DEPARTMENT_DISABLED"},
		{"all roles disabled", "frank", testPassword, "NO_ACTIVE_ROLE"},
		{"missing username", "", testPassword, "VALIDATION_ERROR"},
		{"missing password", "carol", "", "VALIDATION_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.service.Login(context.Background(), LoginInput{
				Username: tt.username,
				Password: tt.password,
			})
			assertCode(t, err, tt.wantCode)
		})
	}

	// Failed attempts past validation are audited.
	assert.NotEmpty(t, f.recorder.records)
	for _, record := range f.recorder.records {
		assert.Equal(t, loginlog.StatusFailure, record.Status)
	}
}

/*
TestService_Login_SingleLoginSweep verifies that a second login revokes the

	first session when multi-login is off.
*/
func TestService_Login_SingleLoginSweep(t *testing.T) {
	f := newFixture(t, testIdentity(t))

	first := login(t, f)
	second := login(t, f)
	require.NotEqual(t, first.Tokens.SessionUUID, second.Tokens.SessionUUID)

	_, err := f.service.Authenticate(context.Background(), first.Tokens.AccessToken)
	assertCode(t, err, "TOKEN_EXPIRED")

	principal, err := f.service.Authenticate(context.Background(), second.Tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, second.Tokens.SessionUUID, principal.SessionUUID)
}

/*
TestService_Login_MultiLogin verifies that concurrent sessions survive when

	the user's multi-login flag is set.
*/
func TestService_Login_MultiLogin(t *testing.T) {
	ident := testIdentity(t)
	ident.IsMultiLogin = true
	f := newFixture(t, ident)

	first := login(t, f)
	second := login(t, f)

	for _, result := range []*LoginResult{first, second} {
		principal, err := f.service.Authenticate(context.Background(), result.Tokens.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, result.Tokens.SessionUUID, principal.SessionUUID)
	}
}

// # Authenticate

/* TestService_Authenticate covers the bearer-token verification path. */
func TestService_Authenticate(t *testing.T) {
	f := newFixture(t, testIdentity(t))
	result := login(t, f)

	t.Run("valid token yields principal", func(t *testing.T) {
		principal, err := f.service.Authenticate(context.Background(), result.Tokens.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, int64(1), principal.Identity.ID)
		assert.Equal(t, result.Tokens.SessionUUID, principal.SessionUUID)
	})

	t.Run("garbage token is malformed", func(t *testing.T) {
		_, err := f.service.Authenticate(context.Background(), "garbage")
		assertCode(t, err, "TOKEN_MALFORMED")
	})

	t.Run("revoked token reads as expired", func(t *testing.T) {
		require.NoError(t, f.sessions.DeleteAccess(context.Background(), 1, result.Tokens.SessionUUID))
		_, err := f.service.Authenticate(context.Background(), result.Tokens.AccessToken)
		assertCode(t, err, "TOKEN_EXPIRED")
	})
}

/*
TestService_Authenticate_StoreMismatch verifies that a verifiable token

	which is not the stored one is treated as revoked.
*/
func TestService_Authenticate_StoreMismatch(t *testing.T) {
	f := newFixture(t, testIdentity(t))
	result := login(t, f)

	// Another token issued out-of-band for the same session is not live.
	rogue, err := f.codec.Encode(1, result.Tokens.SessionUUID, time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.NotEqual(t, result.Tokens.AccessToken, rogue)

	_, err = f.service.Authenticate(context.Background(), rogue)
	assertCode(t, err, "TOKEN_EXPIRED")
}

/*
TestService_Authenticate_DisabledAfterIssue verifies that disabling an

	account kills its live tokens once the cached identity is dropped.
*/
func TestService_Authenticate_DisabledAfterIssue(t *testing.T) {
	f := newFixture(t, testIdentity(t))
	result := login(t, f)

	f.idents.byID[1].Status = identity.StatusDisabled
	require.NoError(t, f.cache.Invalidate(context.Background(), 1))

	_, err := f.service.Authenticate(context.Background(), result.Tokens.AccessToken)
	assertCode(t, err, "ACCOUNT_DISABLED")
}

/*
TestService_Authenticate_UsesIdentityCache verifies the relational store is

	not consulted while the cache holds the identity.
*/
func TestService_Authenticate_UsesIdentityCache(t *testing.T) {
	f := newFixture(t, testIdentity(t))
	result := login(t, f)

	before := f.idents.findByID
	for i := 0; i < 3; i++ {
		_, err := f.service.Authenticate(context.Background(), result.Tokens.AccessToken)
		require.NoError(t, err)
	}
	assert.Equal(t, before, f.idents.findByID, "cached identity must serve repeat authentications")
}

// # Refresh

/* TestService_Refresh verifies rotation: same session, new pair, old pair dead. */
func TestService_Refresh(t *testing.T) {
	f := newFixture(t, testIdentity(t))
	result := login(t, f)

	pair, err := f.service.Refresh(context.Background(), result.Tokens.RefreshToken)
	require.NoError(t, err)

	assert.Equal(t, result.Tokens.SessionUUID, pair.SessionUUID, "rotation keeps the session")
	assert.NotEqual(t, result.Tokens.RefreshToken, pair.RefreshToken)

	// Old access token is revoked; the new one authenticates.
	_, err = f.service.Authenticate(context.Background(), result.Tokens.AccessToken)
	assertCode(t, err, "TOKEN_EXPIRED")

	principal, err := f.service.Authenticate(context.Background(), pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, pair.SessionUUID, principal.SessionUUID)

	// A refresh token is single-use.
	_, err = f.service.Refresh(context.Background(), result.Tokens.RefreshToken)
	assertCode(t, err, "REFRESH_TOKEN_INVALID")
}

/*
TestService_Refresh_Rejections covers the uniform REFRESH_TOKEN_INVALID

	mapping across failure causes.
*/
func TestService_Refresh_Rejections(t *testing.T) {
	f := newFixture(t, testIdentity(t))
	result := login(t, f)

	t.Run("garbage token", func(t *testing.T) {
		_, err := f.service.Refresh(context.Background(), "garbage")
		assertCode(t, err, "REFRESH_TOKEN_INVALID")
	})

	t.Run("access token is not a refresh token", func(t *testing.T) {
		_, err := f.service.Refresh(context.Background(), result.Tokens.AccessToken)
		assertCode(t, err, "REFRESH_TOKEN_INVALID")
	})

	t.Run("disabled account", func(t *testing.T) {
		f.idents.byID[1].Status = identity.StatusDisabled
		require.NoError(t, f.cache.Invalidate(context.Background(), 1))

		_, err := f.service.Refresh(context.Background(), result.Tokens.RefreshToken)
		assertCode(t, err, "REFRESH_TOKEN_INVALID")
	})
}

// # Logout

/* TestService_Logout verifies revocation and idempotency. */
func TestService_Logout(t *testing.T) {
	f := newFixture(t, testIdentity(t))
	result := login(t, f)

	ctx := context.Background()
	require.NoError(t, f.service.Logout(ctx, 1, result.Tokens.SessionUUID))

	_, err := f.service.Authenticate(ctx, result.Tokens.AccessToken)
	assertCode(t, err, "TOKEN_EXPIRED")

	_, err = f.service.Refresh(ctx, result.Tokens.RefreshToken)
	assertCode(t, err, "REFRESH_TOKEN_INVALID")

	// Logging out an already-dead session succeeds.
	require.NoError(t, f.service.Logout(ctx, 1, result.Tokens.SessionUUID))
}
