// Copyright (c) 2026 Castellan Authors. All rights reserved.

package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/castellan-io/castellan/internal/admin/identity"
	"github.com/castellan-io/castellan/internal/platform/apperr"
	"github.com/castellan-io/castellan/internal/platform/constants"
	"github.com/castellan-io/castellan/internal/platform/ctxutil"
	"github.com/castellan-io/castellan/internal/platform/respond"
)

// # Authentication

// Authenticator validates a bearer token and resolves its live principal.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*identity.Principal, error)
}

// Authenticate resolves the Authorization header into a context principal.
//
// Requests without a bearer token pass through anonymously — route-level
// authorization decides whether anonymous access is acceptable. A present
// but invalid token is rejected here, never silently downgraded.
func Authenticate(authenticator Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {

			token, ok := bearerToken(request)
			if !ok {
				next.ServeHTTP(writer, request)
				return
			}

			principal, err := authenticator.Authenticate(request.Context(), token)
			if err != nil {
				respond.Error(writer, request, err)
				return
			}

			ctx := ctxutil.WithPrincipal(request.Context(), principal)
			next.ServeHTTP(writer, request.WithContext(ctx))
		})
	}
}

// bearerToken extracts the token from "Authorization: Bearer <token>".
func bearerToken(request *http.Request) (string, bool) {
	header := request.Header.Get(constants.HeaderAuthorization)
	if header == "" {
		return "", false
	}

	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", false
	}
	return strings.TrimSpace(token), true
}

// # Authorization

// PermissionDecider is the authorization decision procedure.
type PermissionDecider interface {
	Decide(ctx context.Context, ident *identity.Identity, required, method, path string) error
}

// RequireAuth rejects anonymous requests before the handler runs.
func RequireAuth() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {

			if ctxutil.GetPrincipal(request.Context()) == nil {
				respond.Error(writer, request, apperr.Unauthenticated("authentication required"))
				return
			}

			next.ServeHTTP(writer, request)
		})
	}
}

// RequirePermission gates a route behind the decision procedure with the
// given required permission code. An empty code still runs the account,
// staff, and exemption gates.
func RequirePermission(decider PermissionDecider, permission string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {

			ident := ctxutil.GetIdentity(request.Context())

			err := decider.Decide(request.Context(), ident, permission,
				request.Method, request.URL.Path)
			if err != nil {
				respond.Error(writer, request, err)
				return
			}

			next.ServeHTTP(writer, request)
		})
	}
}
