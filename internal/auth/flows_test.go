package auth_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shindakun/resetpassword/internal/auth"
	"github.com/shindakun/resetpassword/internal/identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlowSignIn(t *testing.T) {
	_, client, sm := setup(t)
	flows := auth.InitFlows(client, sm)

	rec := httptest.NewRecorder()
	require.NoError(t, flows.SignIn(rec, httptest.NewRequest(http.MethodPost, "/login", nil), "ana@example.com", "old-password"))

	session, err := sm.GetSession(httptest.NewRecorder(), withCookies(rec))
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", session.Email)

	err = flows.SignIn(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/login", nil), "ana@example.com", "nope")
	_, ok := identity.AsAPIError(err)
	assert.True(t, ok)
}

func TestFlowConfirmRecovery(t *testing.T) {
	srv, client, sm := setup(t)
	flows := auth.InitFlows(client, sm)
	srv.AddRecoveryToken("hash-1", "ana@example.com")

	req := httptest.NewRequest(http.MethodGet, "/auth/confirm", nil)

	require.Error(t, flows.ConfirmRecovery(httptest.NewRecorder(), req, "", "recovery"))
	require.Error(t, flows.ConfirmRecovery(httptest.NewRecorder(), req, "hash-1", "signup"))

	rec := httptest.NewRecorder()
	require.NoError(t, flows.ConfirmRecovery(rec, req, "hash-1", ""))

	session, err := sm.GetSession(httptest.NewRecorder(), withCookies(rec))
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", session.Email)
}

func TestFlowSignOut(t *testing.T) {
	srv, client, sm := setup(t)
	flows := auth.InitFlows(client, sm)
	issued := srv.IssueSession("ana@example.com")

	rec := httptest.NewRecorder()
	require.NoError(t, sm.SaveSession(rec, httptest.NewRequest(http.MethodGet, "/", nil), &issued))

	outRec := httptest.NewRecorder()
	require.NoError(t, flows.SignOut(outRec, withCookies(rec)))
	require.Len(t, outRec.Result().Cookies(), 1)
	assert.Less(t, outRec.Result().Cookies()[0].MaxAge, 0)

	// Signing out without a session still clears the cookie
	require.NoError(t, flows.SignOut(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/logout", nil)))
}
