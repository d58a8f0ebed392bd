package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/authgate/internal/auth"
	cfg "github.com/example/authgate/internal/config"
	"github.com/example/authgate/internal/store"
)

func newTestApp(t *testing.T) (*App, *httptest.Server) {
	t.Helper()
	mem := store.NewMemStore()
	svc := auth.NewService(
		mem,
		auth.NewPasswordHasher(auth.ScryptParams{N: 1 << 4, R: 8, P: 1, KeyLen: 32}),
		auth.NewKeyMaker("ag"),
		auth.NewTokenManager([]byte("handler-test-secret"), 15*time.Minute, 24*time.Hour),
	)
	app := &App{Store: mem, Auth: svc, RateLimitPerMinute: 1000}
	srv := httptest.NewServer(newRouter(app))
	t.Cleanup(srv.Close)
	return app, srv
}

func seedUser(t *testing.T, app *App, username string, role auth.Role) *auth.User {
	t.Helper()
	u, err := app.Auth.Register(username, username+"@example.com", username+"-password", role)
	require.NoError(t, err)
	return u
}

func doJSON(t *testing.T, method, url, token string, body interface{}) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func login(t *testing.T, srv *httptest.Server, username, password string) (access, refresh string) {
	t.Helper()
	resp := doJSON(t, "POST", srv.URL+"/api/v1/auth/login", "", map[string]string{
		"username": username, "password": password,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	return body["accessToken"].(string), body["refreshToken"].(string)
}

func TestStoreAndServiceWiring(t *testing.T) {
	c := &cfg.Config{
		DBAdapter:       "memory",
		ScryptN:         1 << 4,
		ScryptR:         8,
		ScryptP:         1,
		APIKeyTag:       "ag",
		JwtSecret:       "wiring-test-secret",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 24 * time.Hour,
	}

	st, err := openStore(c)
	require.NoError(t, err)

	svc := newAuthService(c, st)
	require.NotNil(t, svc)

	// the composed service works end to end against the opened store
	_, err = svc.Register("alice", "alice@example.com", "pw", auth.RoleUser)
	require.NoError(t, err)
	_, pair, err := svc.Login("alice", "pw")
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)
}

func TestHealthEndpoints(t *testing.T) {
	_, srv := newTestApp(t)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp2, err := http.Get(srv.URL + "/ready")
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusOK, resp2.StatusCode)
}

func TestLoginEndpoint(t *testing.T) {
	app, srv := newTestApp(t)
	seedUser(t, app, "alice", auth.RoleUser)

	t.Run("success", func(t *testing.T) {
		resp := doJSON(t, "POST", srv.URL+"/api/v1/auth/login", "", map[string]string{
			"username": "alice", "password": "alice-password",
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		body := decodeBody(t, resp)
		assert.NotEmpty(t, body["accessToken"])
		assert.NotEmpty(t, body["refreshToken"])
		user := body["user"].(map[string]interface{})
		assert.Equal(t, "alice", user["username"])
		assert.Nil(t, user["password_hash"])
	})

	t.Run("wrong password", func(t *testing.T) {
		resp := doJSON(t, "POST", srv.URL+"/api/v1/auth/login", "", map[string]string{
			"username": "alice", "password": "nope",
		})
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		body := decodeBody(t, resp)
		assert.Equal(t, "INVALID_CREDENTIALS", body["error_code"])
	})

	t.Run("unknown user gets identical response", func(t *testing.T) {
		resp := doJSON(t, "POST", srv.URL+"/api/v1/auth/login", "", map[string]string{
			"username": "nobody", "password": "nope",
		})
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		body := decodeBody(t, resp)
		assert.Equal(t, "INVALID_CREDENTIALS", body["error_code"])
		assert.Equal(t, "Invalid credentials", body["error_message"])
	})

	t.Run("missing fields", func(t *testing.T) {
		resp := doJSON(t, "POST", srv.URL+"/api/v1/auth/login", "", map[string]string{"username": "alice"})
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestRefreshEndpoint(t *testing.T) {
	app, srv := newTestApp(t)
	seedUser(t, app, "alice", auth.RoleUser)
	access, refresh := login(t, srv, "alice", "alice-password")

	t.Run("refresh token accepted", func(t *testing.T) {
		resp := doJSON(t, "POST", srv.URL+"/api/v1/auth/refresh", "", map[string]string{
			"refreshToken": refresh,
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		body := decodeBody(t, resp)
		assert.NotEmpty(t, body["accessToken"])
		assert.NotEmpty(t, body["refreshToken"])
	})

	t.Run("access token rejected", func(t *testing.T) {
		resp := doJSON(t, "POST", srv.URL+"/api/v1/auth/refresh", "", map[string]string{
			"refreshToken": access,
		})
		defer resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})
}

func TestTokenValidateEndpoint(t *testing.T) {
	app, srv := newTestApp(t)
	seedUser(t, app, "alice", auth.RoleUser)
	access, refresh := login(t, srv, "alice", "alice-password")

	resp, err := http.Get(srv.URL + "/api/v1/auth/validate?token=" + access)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, true, body["valid"])
	assert.Equal(t, "alice", body["username"])

	// refresh tokens are not access tokens
	resp2, err := http.Get(srv.URL + "/api/v1/auth/validate?token=" + refresh)
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp2.StatusCode)
}

func TestMeEndpoint(t *testing.T) {
	app, srv := newTestApp(t)
	seedUser(t, app, "alice", auth.RoleUser)
	access, _ := login(t, srv, "alice", "alice-password")

	resp := doJSON(t, "GET", srv.URL+"/api/v1/users/me", access, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, "alice", body["username"])
	assert.Equal(t, "alice@example.com", body["email"])

	// no token
	resp2 := doJSON(t, "GET", srv.URL+"/api/v1/users/me", "", nil)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp2.StatusCode)
}

func TestRegisterEndpointRequiresAdmin(t *testing.T) {
	app, srv := newTestApp(t)
	seedUser(t, app, "root", auth.RoleAdmin)
	seedUser(t, app, "alice", auth.RoleUser)

	adminTok, _ := login(t, srv, "root", "root-password")
	userTok, _ := login(t, srv, "alice", "alice-password")

	newUser := map[string]string{"username": "bob", "email": "bob@example.com", "password": "bob-password"}

	t.Run("admin can register", func(t *testing.T) {
		resp := doJSON(t, "POST", srv.URL+"/api/v1/auth/register", adminTok, newUser)
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		body := decodeBody(t, resp)
		assert.Equal(t, "bob", body["username"])
		assert.Equal(t, "USER", body["role"])
	})

	t.Run("duplicate is a conflict", func(t *testing.T) {
		resp := doJSON(t, "POST", srv.URL+"/api/v1/auth/register", adminTok, newUser)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})

	t.Run("non-admin forbidden", func(t *testing.T) {
		resp := doJSON(t, "POST", srv.URL+"/api/v1/auth/register", userTok, map[string]string{
			"username": "eve", "email": "eve@example.com", "password": "pw",
		})
		defer resp.Body.Close()
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("anonymous unauthorized", func(t *testing.T) {
		resp := doJSON(t, "POST", srv.URL+"/api/v1/auth/register", "", newUser)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})
}

func TestAPIKeyEndToEnd(t *testing.T) {
	app, srv := newTestApp(t)
	seedUser(t, app, "alice", auth.RoleUser)
	access, _ := login(t, srv, "alice", "alice-password")

	// create a key
	resp := doJSON(t, "POST", srv.URL+"/api/v1/apikeys", access, map[string]interface{}{"name": "ci"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decodeBody(t, resp)
	plaintext, _ := created["key"].(string)
	require.NotEmpty(t, plaintext)
	keyID := int64(created["id"].(float64))

	// use it via X-API-Key
	req, err := http.NewRequest("GET", srv.URL+"/api/v1/whoami", nil)
	require.NoError(t, err)
	req.Header.Set("X-API-Key", plaintext)
	whoResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, whoResp.StatusCode)
	who := decodeBody(t, whoResp)
	assert.Equal(t, "alice", who["username"])

	// list shows metadata but never the secret
	listResp := doJSON(t, "GET", srv.URL+"/api/v1/apikeys", access, nil)
	require.Equal(t, http.StatusOK, listResp.StatusCode)
	defer listResp.Body.Close()
	var listed []map[string]interface{}
	require.NoError(t, json.NewDecoder(listResp.Body).Decode(&listed))
	require.Len(t, listed, 1)
	assert.Equal(t, "ci", listed[0]["name"])
	assert.Nil(t, listed[0]["key"])
	assert.Equal(t, plaintext[:auth.KeyPrefixLen], listed[0]["keyPrefix"])

	// revoke, then the key stops working
	revokeResp := doJSON(t, "POST", fmt.Sprintf("%s/api/v1/apikeys/%d/revoke", srv.URL, keyID), access, nil)
	require.Equal(t, http.StatusOK, revokeResp.StatusCode)
	revokeResp.Body.Close()

	req2, err := http.NewRequest("GET", srv.URL+"/api/v1/whoami", nil)
	require.NoError(t, err)
	req2.Header.Set("X-API-Key", plaintext)
	deniedResp, err := http.DefaultClient.Do(req2)
	require.NoError(t, err)
	defer deniedResp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, deniedResp.StatusCode)

	// delete it
	delResp := doJSON(t, "DELETE", fmt.Sprintf("%s/api/v1/apikeys/%d", srv.URL, keyID), access, nil)
	require.Equal(t, http.StatusOK, delResp.StatusCode)
	delResp.Body.Close()
}

func TestAPIKeyExpiry(t *testing.T) {
	app, srv := newTestApp(t)
	user := seedUser(t, app, "alice", auth.RoleUser)

	// insert a key that expired an hour ago, bypassing the handler's
	// positive-days validation
	expiry := time.Now().Add(-time.Hour)
	_, plaintext, err := app.Auth.CreateAPIKey(user.ID, "stale", &expiry)
	require.NoError(t, err)

	req, err := http.NewRequest("GET", srv.URL+"/api/v1/whoami", nil)
	require.NoError(t, err)
	req.Header.Set("X-API-Key", plaintext)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAPIKeyOwnershipOverHTTP(t *testing.T) {
	app, srv := newTestApp(t)
	seedUser(t, app, "alice", auth.RoleUser)
	seedUser(t, app, "mallory", auth.RoleUser)

	aliceTok, _ := login(t, srv, "alice", "alice-password")
	malloryTok, _ := login(t, srv, "mallory", "mallory-password")

	resp := doJSON(t, "POST", srv.URL+"/api/v1/apikeys", aliceTok, map[string]interface{}{"name": "ci"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decodeBody(t, resp)
	keyID := int64(created["id"].(float64))

	denied := doJSON(t, "POST", fmt.Sprintf("%s/api/v1/apikeys/%d/revoke", srv.URL, keyID), malloryTok, nil)
	require.Equal(t, http.StatusForbidden, denied.StatusCode)
	denied.Body.Close()

	deniedDel := doJSON(t, "DELETE", fmt.Sprintf("%s/api/v1/apikeys/%d", srv.URL, keyID), malloryTok, nil)
	require.Equal(t, http.StatusForbidden, deniedDel.StatusCode)
	deniedDel.Body.Close()
}

func TestRateLimit(t *testing.T) {
	mem := store.NewMemStore()
	svc := auth.NewService(
		mem,
		auth.NewPasswordHasher(auth.ScryptParams{N: 1 << 4, R: 8, P: 1, KeyLen: 32}),
		auth.NewKeyMaker("ag"),
		auth.NewTokenManager([]byte("handler-test-secret"), 15*time.Minute, 24*time.Hour),
	)
	app := &App{Store: mem, Auth: svc, RateLimitPerMinute: 2}
	srv := httptest.NewServer(newRouter(app))
	defer srv.Close()

	var last int
	for i := 0; i < 3; i++ {
		resp := doJSON(t, "POST", srv.URL+"/api/v1/auth/login", "", map[string]string{
			"username": "nobody", "password": "pw",
		})
		last = resp.StatusCode
		resp.Body.Close()
	}
	assert.Equal(t, http.StatusTooManyRequests, last)
}

func TestSecurityAndRequestIDHeaders(t *testing.T) {
	_, srv := newTestApp(t)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", resp.Header.Get("X-Frame-Options"))
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}
