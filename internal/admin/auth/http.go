// Copyright (c) 2026 Castellan Authors. All rights reserved.

package auth

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/castellan-io/castellan/internal/admin/identity"
	"github.com/castellan-io/castellan/internal/platform/apperr"
	"github.com/castellan-io/castellan/internal/platform/constants"
	requestutil "github.com/castellan-io/castellan/internal/platform/request"
	"github.com/castellan-io/castellan/internal/platform/respond"
)

// Handler exposes the authentication lifecycle over HTTP.
type Handler struct {
	service      *Service
	secureCookie bool
}

// NewHandler creates the authentication HTTP handler. secureCookie should be
// true everywhere TLS terminates in front of the server.
func NewHandler(service *Service, secureCookie bool) *Handler {
	return &Handler{service: service, secureCookie: secureCookie}
}

// Routes returns the chi router for the /auth route group.
//
// Login and refresh are anonymous by design; logout and userinfo enforce
// authentication inside their handlers.
func (h *Handler) Routes() chi.Router {
	router := chi.NewRouter()
	router.Post("/login", h.Login)
	router.Post("/refresh", h.Refresh)
	router.Post("/logout", h.Logout)
	router.Get("/userinfo", h.UserInfo)
	return router
}

// # Payloads

type loginPayload struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type refreshPayload struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenResponse struct {
	AccessToken      string    `json:"access_token"`
	AccessExpiresAt  time.Time `json:"access_token_expire_time"`
	RefreshToken     string    `json:"refresh_token"`
	RefreshExpiresAt time.Time `json:"refresh_token_expire_time"`
	SessionUUID      string    `json:"session_uuid"`
}

type userInfoResponse struct {
	ID            int64           `json:"id"`
	UUID          string          `json:"uuid"`
	Username      string          `json:"username"`
	Nickname      string          `json:"nickname"`
	IsSuperuser   bool            `json:"is_superuser"`
	IsStaff       bool            `json:"is_staff"`
	IsMultiLogin  bool            `json:"is_multi_login"`
	Dept          *identity.Dept  `json:"dept,omitempty"`
	Roles         []identity.Role `json:"roles"`
	LastLoginTime *time.Time      `json:"last_login_time,omitempty"`
}

func newTokenResponse(pair TokenPair) tokenResponse {
	return tokenResponse{
		AccessToken:      pair.AccessToken,
		AccessExpiresAt:  pair.AccessExpiresAt,
		RefreshToken:     pair.RefreshToken,
		RefreshExpiresAt: pair.RefreshExpiresAt,
		SessionUUID:      pair.SessionUUID,
	}
}

// # Handlers

// Login handles POST /api/v1/auth/login.
func (h *Handler) Login(writer http.ResponseWriter, request *http.Request) {
	var payload loginPayload
	if err := requestutil.DecodeJSON(request, &payload); err != nil {
		respond.Error(writer, request, err)
		return
	}

	result, err := h.service.Login(request.Context(), LoginInput{
		Username:  payload.Username,
		Password:  payload.Password,
		IPAddress: requestutil.ClientIP(request),
		UserAgent: request.UserAgent(),
	})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	h.setRefreshCookie(writer, result.Tokens)
	respond.OK(writer, newTokenResponse(result.Tokens))
}

// Refresh handles POST /api/v1/auth/refresh. The refresh token is read from
// the scoped cookie first, then from the JSON body for non-browser clients.
func (h *Handler) Refresh(writer http.ResponseWriter, request *http.Request) {
	token := h.refreshTokenFromRequest(request)
	if token == "" {
		respond.Error(writer, request, apperr.RefreshTokenInvalid())
		return
	}

	pair, err := h.service.Refresh(request.Context(), token)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	h.setRefreshCookie(writer, *pair)
	respond.OK(writer, newTokenResponse(*pair))
}

// Logout handles POST /api/v1/auth/logout. It revokes the caller's own
// session and clears the refresh cookie.
func (h *Handler) Logout(writer http.ResponseWriter, request *http.Request) {
	principal, err := requestutil.RequiredPrincipal(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := h.service.Logout(request.Context(), principal.Identity.ID, principal.SessionUUID); err != nil {
		respond.Error(writer, request, err)
		return
	}

	h.clearRefreshCookie(writer)
	respond.NoContent(writer)
}

// UserInfo handles GET /api/v1/auth/userinfo.
func (h *Handler) UserInfo(writer http.ResponseWriter, request *http.Request) {
	principal, err := requestutil.RequiredPrincipal(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	ident := principal.Identity
	respond.OK(writer, userInfoResponse{
		ID:            ident.ID,
		UUID:          ident.UUID,
		Username:      ident.Username,
		Nickname:      ident.Nickname,
		IsSuperuser:   ident.IsSuperuser,
		IsStaff:       ident.IsStaff,
		IsMultiLogin:  ident.IsMultiLogin,
		Dept:          ident.Dept,
		Roles:         ident.Roles,
		LastLoginTime: ident.LastLoginTime,
	})
}

// # Cookie Handling

func (h *Handler) refreshTokenFromRequest(request *http.Request) string {
	if cookie, err := request.Cookie(constants.RefreshTokenCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	var payload refreshPayload
	if err := requestutil.DecodeJSON(request, &payload); err == nil {
		return payload.RefreshToken
	}
	return ""
}

func (h *Handler) setRefreshCookie(writer http.ResponseWriter, pair TokenPair) {
	http.SetCookie(writer, &http.Cookie{
		Name:     constants.RefreshTokenCookieName,
		Value:    pair.RefreshToken,
		Path:     constants.RefreshTokenCookiePath,
		Expires:  pair.RefreshExpiresAt,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *Handler) clearRefreshCookie(writer http.ResponseWriter) {
	http.SetCookie(writer, &http.Cookie{
		Name:     constants.RefreshTokenCookieName,
		Value:    "",
		Path:     constants.RefreshTokenCookiePath,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteStrictMode,
	})
}
