// Copyright (c) 2026 Castellan Authors. All rights reserved.

package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/castellan-io/castellan/internal/admin/identity"
	"github.com/castellan-io/castellan/internal/platform/constants"
	"github.com/castellan-io/castellan/internal/platform/ctxutil"
)

func doLogin(t *testing.T, handler *Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	request := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(body))
	recorder := httptest.NewRecorder()
	handler.Login(recorder, request)
	return recorder
}

func decodeTokens(t *testing.T, recorder *httptest.ResponseRecorder) tokenResponse {
	t.Helper()
	var envelope struct {
		Data tokenResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &envelope))
	return envelope.Data
}

func refreshCookie(recorder *httptest.ResponseRecorder) *http.Cookie {
	for _, cookie := range recorder.Result().Cookies() {
		if cookie.Name == constants.RefreshTokenCookieName {
			return cookie
		}
	}
	return nil
}

/* TestHandler_Login verifies the response envelope and the refresh cookie. */
func TestHandler_Login(t *testing.T) {
	f := newFixture(t, testIdentity(t))
	handler := NewHandler(f.service, true)

	recorder := doLogin(t, handler, `{"username":"carol","password":"`+testPassword+`"}`)
	require.Equal(t, http.StatusOK, recorder.Code)

	tokens := decodeTokens(t, recorder)
	assert.NotEmpty(t, tokens.AccessToken)
	assert.NotEmpty(t, tokens.SessionUUID)

	cookie := refreshCookie(recorder)
	require.NotNil(t, cookie, "login must set the refresh cookie")
	assert.Equal(t, tokens.RefreshToken, cookie.Value)
	assert.Equal(t, constants.RefreshTokenCookiePath, cookie.Path)
	assert.True(t, cookie.HttpOnly)
	assert.True(t, cookie.Secure)
}

/* TestHandler_Login_BadCredentials verifies the generic 401 envelope. */
func TestHandler_Login_BadCredentials(t *testing.T) {
	f := newFixture(t, testIdentity(t))
	handler := NewHandler(f.service, true)

	recorder := doLogin(t, handler, `{"username":"carol","password":"wrong"}`)
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)

	var envelope struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &envelope))
	assert.Equal(t, "INVALID_CREDENTIALS", envelope.Code)
}

/* TestHandler_Refresh verifies rotation via cookie and via JSON body. */
func TestHandler_Refresh(t *testing.T) {
	f := newFixture(t, testIdentity(t))
	handler := NewHandler(f.service, true)

	t.Run("from cookie", func(t *testing.T) {
		loginRecorder := doLogin(t, handler, `{"username":"carol","password":"`+testPassword+`"}`)
		require.Equal(t, http.StatusOK, loginRecorder.Code)

		request := httptest.NewRequest(http.MethodPost, "/api/v1/auth/refresh", nil)
		request.AddCookie(refreshCookie(loginRecorder))

		recorder := httptest.NewRecorder()
		handler.Refresh(recorder, request)
		require.Equal(t, http.StatusOK, recorder.Code)

		rotated := decodeTokens(t, recorder)
		assert.Equal(t, decodeTokens(t, loginRecorder).SessionUUID, rotated.SessionUUID)
		assert.NotNil(t, refreshCookie(recorder), "refresh must rotate the cookie")
	})

	t.Run("from body", func(t *testing.T) {
		loginRecorder := doLogin(t, handler, `{"username":"carol","password":"`+testPassword+`"}`)
		tokens := decodeTokens(t, loginRecorder)

		request := httptest.NewRequest(http.MethodPost, "/api/v1/auth/refresh",
			strings.NewReader(`{"refresh_token":"`+tokens.RefreshToken+`"}`))

		recorder := httptest.NewRecorder()
		handler.Refresh(recorder, request)
		assert.Equal(t, http.StatusOK, recorder.Code)
	})

	t.Run("missing token", func(t *testing.T) {
		request := httptest.NewRequest(http.MethodPost, "/api/v1/auth/refresh", nil)
		recorder := httptest.NewRecorder()
		handler.Refresh(recorder, request)
		assert.Equal(t, http.StatusUnauthorized, recorder.Code)
	})
}

/* TestHandler_Logout verifies revocation and cookie clearing. */
func TestHandler_Logout(t *testing.T) {
	f := newFixture(t, testIdentity(t))
	handler := NewHandler(f.service, true)

	loginRecorder := doLogin(t, handler, `{"username":"carol","password":"`+testPassword+`"}`)
	tokens := decodeTokens(t, loginRecorder)

	principal, err := f.service.Authenticate(context.Background(), tokens.AccessToken)
	require.NoError(t, err)

	request := httptest.NewRequest(http.MethodPost, "/api/v1/auth/logout", nil)
	request = request.WithContext(ctxutil.WithPrincipal(request.Context(), principal))

	recorder := httptest.NewRecorder()
	handler.Logout(recorder, request)
	assert.Equal(t, http.StatusNoContent, recorder.Code)

	cookie := refreshCookie(recorder)
	require.NotNil(t, cookie)
	assert.Empty(t, cookie.Value)
	assert.Negative(t, cookie.MaxAge)

	_, err = f.service.Authenticate(context.Background(), tokens.AccessToken)
	assert.Error(t, err)
}

/* TestHandler_UserInfo verifies the authenticated profile projection. */
func TestHandler_UserInfo(t *testing.T) {
	f := newFixture(t, testIdentity(t))
	handler := NewHandler(f.service, true)

	t.Run("anonymous rejected", func(t *testing.T) {
		recorder := httptest.NewRecorder()
		handler.UserInfo(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/auth/userinfo", nil))
		assert.Equal(t, http.StatusUnauthorized, recorder.Code)
	})

	t.Run("authenticated", func(t *testing.T) {
		request := httptest.NewRequest(http.MethodGet, "/api/v1/auth/userinfo", nil)
		request = request.WithContext(ctxutil.WithPrincipal(request.Context(), &identity.Principal{
			Identity:    testIdentity(t),
			SessionUUID: "sess-1",
		}))

		recorder := httptest.NewRecorder()
		handler.UserInfo(recorder, request)
		require.Equal(t, http.StatusOK, recorder.Code)

		var envelope struct {
			Data userInfoResponse `json:"data"`
		}
		require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &envelope))
		assert.Equal(t, "carol", envelope.Data.Username)
		assert.True(t, envelope.Data.IsStaff)
		require.NotNil(t, envelope.Data.Dept)
		assert.Equal(t, "ops", envelope.Data.Dept.Name)
	})
}
