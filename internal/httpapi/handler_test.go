package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wsrelay/wsrelay/internal/session"
	"github.com/wsrelay/wsrelay/internal/userstore"
)

func newTestServer(t *testing.T) (*httptest.Server, *userstore.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	users := userstore.NewStore()
	require.NoError(t, users.Seed("alice", "correct-horse", userstore.Permissions{}, time.Now(), ""))

	h := New(session.NewStore("wsrelay_sid"), users)
	router := gin.New()
	h.RegisterRoutes(router)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, users
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any) *http.Response {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	require.NoError(t, err)
	return resp
}

func TestContextAnonymousBeforeLogin(t *testing.T) {
	srv, _ := newTestServer(t)
	client := srv.Client()
	jar, _ := cookiejar.New(nil)
	client.Jar = jar

	resp := doJSON(t, client, http.MethodGet, srv.URL+"/api/context", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var data map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&data))
	assert.Equal(t, true, data["anonymous"])
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	srv, _ := newTestServer(t)
	client := srv.Client()
	jar, _ := cookiejar.New(nil)
	client.Jar = jar

	resp := doJSON(t, client, http.MethodPost, srv.URL+"/api/login", LoginRequest{Username: "alice", Password: "wrong"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestLoginThenContextThenUsersMe(t *testing.T) {
	srv, _ := newTestServer(t)
	client := srv.Client()
	jar, _ := cookiejar.New(nil)
	client.Jar = jar

	resp := doJSON(t, client, http.MethodPost, srv.URL+"/api/login", LoginRequest{Username: "alice", Password: "correct-horse"})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	ctxResp := doJSON(t, client, http.MethodGet, srv.URL+"/api/context", nil)
	defer ctxResp.Body.Close()
	var ctxData map[string]any
	require.NoError(t, json.NewDecoder(ctxResp.Body).Decode(&ctxData))
	assert.Equal(t, false, ctxData["anonymous"])

	meResp := doJSON(t, client, http.MethodGet, srv.URL+"/api/users/me", nil)
	defer meResp.Body.Close()
	assert.Equal(t, http.StatusOK, meResp.StatusCode)
	var meData map[string]any
	require.NoError(t, json.NewDecoder(meResp.Body).Decode(&meData))
	assert.Equal(t, "alice", meData["username"])
}

func TestLogoutClearsSessionUser(t *testing.T) {
	srv, _ := newTestServer(t)
	client := srv.Client()
	jar, _ := cookiejar.New(nil)
	client.Jar = jar

	loginResp := doJSON(t, client, http.MethodPost, srv.URL+"/api/login", LoginRequest{Username: "alice", Password: "correct-horse"})
	loginResp.Body.Close()

	logoutResp := doJSON(t, client, http.MethodPost, srv.URL+"/api/logout", nil)
	logoutResp.Body.Close()

	meResp := doJSON(t, client, http.MethodGet, srv.URL+"/api/users/me", nil)
	defer meResp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, meResp.StatusCode)
}
