// Copyright (c) 2026 Castellan Authors. All rights reserved.

package middleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/castellan-io/castellan/internal/admin/identity"
	"github.com/castellan-io/castellan/internal/platform/apperr"
	"github.com/castellan-io/castellan/internal/platform/ctxutil"
	"github.com/castellan-io/castellan/internal/platform/middleware"
)

type stubAuthenticator struct {
	principal *identity.Principal
	err       error
	sawToken  string
}

func (s *stubAuthenticator) Authenticate(_ context.Context, token string) (*identity.Principal, error) {
	s.sawToken = token
	if s.err != nil {
		return nil, s.err
	}
	return s.principal, nil
}

type stubDecider struct {
	err           error
	sawIdent      *identity.Identity
	sawPermission string
}

func (s *stubDecider) Decide(_ context.Context, ident *identity.Identity, required, _, _ string) error {
	s.sawIdent = ident
	s.sawPermission = required
	return s.err
}

func principalCapturingHandler(captured **identity.Principal) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		*captured = ctxutil.GetPrincipal(request.Context())
		writer.WriteHeader(http.StatusOK)
	})
}

/* TestAuthenticate verifies bearer extraction, anonymous pass-through, and
   rejection of invalid tokens. */
func TestAuthenticate(t *testing.T) {
	validPrincipal := &identity.Principal{
		Identity:    &identity.Identity{ID: 7, Username: "carol"},
		SessionUUID: "sess-1",
	}

	tests := []struct {
		name          string
		header        string
		authErr       error
		wantStatus    int
		wantPrincipal bool
	}{
		{"no header passes anonymously", "", nil, http.StatusOK, false},
		{"non-bearer scheme passes anonymously", "Basic dXNlcjpwYXNz", nil, http.StatusOK, false},
		{"valid bearer yields principal", "Bearer token-1", nil, http.StatusOK, true},
		{"case-insensitive scheme", "bearer token-1", nil, http.StatusOK, true},
		{"invalid token rejected", "Bearer bad", apperr.TokenExpired(), http.StatusUnauthorized, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			authenticator := &stubAuthenticator{principal: validPrincipal, err: tt.authErr}

			var captured *identity.Principal
			handler := middleware.Authenticate(authenticator)(principalCapturingHandler(&captured))

			request := httptest.NewRequest(http.MethodGet, "/api/v1/auth/userinfo", nil)
			if tt.header != "" {
				request.Header.Set("Authorization", tt.header)
			}

			recorder := httptest.NewRecorder()
			handler.ServeHTTP(recorder, request)

			assert.Equal(t, tt.wantStatus, recorder.Code)
			if tt.wantPrincipal {
				require.NotNil(t, captured)
				assert.Equal(t, int64(7), captured.Identity.ID)
			} else {
				assert.Nil(t, captured)
			}
		})
	}
}

/* TestRequireAuth verifies the anonymous-request gate. */
func TestRequireAuth(t *testing.T) {
	handler := middleware.RequireAuth()(http.HandlerFunc(func(writer http.ResponseWriter, _ *http.Request) {
		writer.WriteHeader(http.StatusOK)
	}))

	t.Run("anonymous rejected", func(t *testing.T) {
		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusUnauthorized, recorder.Code)
	})

	t.Run("authenticated passes", func(t *testing.T) {
		request := httptest.NewRequest(http.MethodGet, "/", nil)
		ctx := ctxutil.WithPrincipal(request.Context(), &identity.Principal{
			Identity: &identity.Identity{ID: 1},
		})

		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, request.WithContext(ctx))
		assert.Equal(t, http.StatusOK, recorder.Code)
	})
}

/* TestRequirePermission verifies the decision procedure is consulted with the
   route's permission code and its verdict is enforced. */
func TestRequirePermission(t *testing.T) {
	ident := &identity.Identity{ID: 7, Username: "carol"}

	t.Run("allowed", func(t *testing.T) {
		decider := &stubDecider{}
		handler := middleware.RequirePermission(decider, "log:login:list")(
			http.HandlerFunc(func(writer http.ResponseWriter, _ *http.Request) {
				writer.WriteHeader(http.StatusOK)
			}))

		request := httptest.NewRequest(http.MethodGet, "/api/v1/logs/login", nil)
		ctx := ctxutil.WithPrincipal(request.Context(), &identity.Principal{Identity: ident})

		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, request.WithContext(ctx))

		assert.Equal(t, http.StatusOK, recorder.Code)
		assert.Equal(t, "log:login:list", decider.sawPermission)
		assert.Same(t, ident, decider.sawIdent)
	})

	t.Run("denied", func(t *testing.T) {
		decider := &stubDecider{err: apperr.PermissionDenied()}
		handler := middleware.RequirePermission(decider, "user:delete")(
			http.HandlerFunc(func(writer http.ResponseWriter, _ *http.Request) {
				writer.WriteHeader(http.StatusOK)
			}))

		request := httptest.NewRequest(http.MethodDelete, "/api/v1/users/3", nil)
		ctx := ctxutil.WithPrincipal(request.Context(), &identity.Principal{Identity: ident})

		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, request.WithContext(ctx))

		assert.Equal(t, http.StatusForbidden, recorder.Code)
	})

	t.Run("anonymous reaches decider with nil identity", func(t *testing.T) {
		decider := &stubDecider{err: apperr.Unauthenticated("authentication required")}
		handler := middleware.RequirePermission(decider, "")(
			http.HandlerFunc(func(writer http.ResponseWriter, _ *http.Request) {
				writer.WriteHeader(http.StatusOK)
			}))

		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/users", nil))

		assert.Equal(t, http.StatusUnauthorized, recorder.Code)
		assert.Nil(t, decider.sawIdent)
	})
}
