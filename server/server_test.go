package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/printhaus/storeauth/auth"
	"github.com/printhaus/storeauth/internal/config"
	fakeprofilerepo "github.com/printhaus/storeauth/profiles/repofake"
	"github.com/printhaus/storeauth/server"
	"github.com/printhaus/storeauth/server/flowstate"
	fakesessionrepo "github.com/printhaus/storeauth/sessions/repofakes"
	"github.com/printhaus/storeauth/token"
	"github.com/printhaus/storeauth/token/refresh"
	"github.com/printhaus/storeauth/users"
	fakeuserrepo "github.com/printhaus/storeauth/users/repofake"
)

const (
	testAdminEmail    = "admin@example.com"
	testAdminPassword = "AdminPass1"
	testUserEmail     = "jane.doe@example.com"
	testUserPassword  = "CustomerPass1"
)

type serverFixture struct {
	srv      *server.Server
	userRepo *fakeuserrepo.FakeUserRepo
	manager  *auth.Manager
}

func setupServer(t *testing.T) *serverFixture {
	t.Helper()

	cfg := &config.Config{
		AppName: "storeauth",
		Env:     "TEST",
		Port:    ":0",
		Auth: config.AuthSettings{
			Secret:          "test-secret-1234",
			Issuer:          "com.testissuer",
			AccessTokenTTL:  15 * time.Minute,
			RefreshTokenTTL: 7 * 24 * time.Hour,
		},
		Realms: map[string]config.RealmPolicy{
			config.RealmAdmin: {
				IdleTimeout:  15 * time.Minute,
				SessionTTL:   12 * time.Hour,
				RequiredRole: "admin",
				DefaultRole:  "admin",
			},
			config.RealmStorefront: {
				SessionTTL:        30 * 24 * time.Hour,
				DefaultRole:       "customer",
				AllowRegistration: true,
			},
		},
	}

	ur := fakeuserrepo.NewFakeUserRepo()
	pr := fakeprofilerepo.NewFakeProfileRepo()
	sr := fakesessionrepo.NewFakeSessionRepo()
	repos := auth.Repos{Users: ur, Profiles: pr, Sessions: sr}

	tm, err := token.New([]byte(cfg.Auth.Secret), cfg.Auth.Issuer, cfg.Auth.AccessTokenTTL, cfg.Auth.RefreshTokenTTL, refresh.NewInMemoryRepo())
	require.NoError(t, err)

	manager, err := auth.NewManager(repos, tm, cfg.Realms)
	require.NoError(t, err)
	t.Cleanup(manager.Close)

	srv, err := server.New(context.Background(), cfg, manager, repos, flowstate.NewInMemoryRepo(), zerolog.Nop())
	require.NoError(t, err)

	return &serverFixture{srv: srv, userRepo: ur, manager: manager}
}

func (f *serverFixture) createUser(t *testing.T, email, password string, role users.Role) {
	t.Helper()
	hash, err := users.HashPassword(password)
	require.NoError(t, err)
	require.NoError(t, f.userRepo.Upsert(context.Background(), &users.User{
		Email:        email,
		PasswordHash: hash,
		Name:         "Test User",
		Role:         role,
	}))
}

func (f *serverFixture) do(method, path string, body any, cookie *http.Cookie) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)
	return rec
}

func (f *serverFixture) doBearer(method, path, accessToken string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	req.Header.Set("Authorization", "Bearer "+accessToken)
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)
	return rec
}

// login performs a login and returns the session cookie
func (f *serverFixture) login(t *testing.T, realm, email, password string) *http.Cookie {
	t.Helper()
	rec := f.do(http.MethodPost, "/api/"+realm+"/auth/login", map[string]string{
		"email":    email,
		"password": password,
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	for _, c := range rec.Result().Cookies() {
		if c.Name == server.SessionCookieName && c.Value != "" {
			return c
		}
	}
	t.Fatal("no session cookie in login response")
	return nil
}

func TestHealthEndpoint(t *testing.T) {
	f := setupServer(t)

	rec := f.do(http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLogin_SetsHttpOnlyCookie(t *testing.T) {
	f := setupServer(t)
	f.createUser(t, testAdminEmail, testAdminPassword, users.RoleAdmin)

	rec := f.do(http.MethodPost, "/api/admin/auth/login", map[string]string{
		"email":    testAdminEmail,
		"password": testAdminPassword,
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)
	assert.Equal(t, server.SessionCookieName, cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)

	var resp struct {
		Success bool `json:"success"`
		Data    struct {
			IsAdmin bool `json:"is_admin"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.True(t, resp.Data.IsAdmin)
}

func TestLogin_InvalidCredentials(t *testing.T) {
	f := setupServer(t)
	f.createUser(t, testAdminEmail, testAdminPassword, users.RoleAdmin)

	rec := f.do(http.MethodPost, "/api/admin/auth/login", map[string]string{
		"email":    testAdminEmail,
		"password": "WrongPass1",
	}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(http.MethodPost, "/api/admin/auth/login", map[string]string{
		"email":    "nobody@example.com",
		"password": "WrongPass1",
	}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogin_CustomerRejectedFromAdminRealm(t *testing.T) {
	f := setupServer(t)
	f.createUser(t, testUserEmail, testUserPassword, users.RoleCustomer)

	rec := f.do(http.MethodPost, "/api/admin/auth/login", map[string]string{
		"email":    testUserEmail,
		"password": testUserPassword,
	}, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestProtectedRoute_RequiresSession(t *testing.T) {
	f := setupServer(t)

	rec := f.do(http.MethodGet, "/api/auth/me", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(http.MethodGet, "/api/auth/me", nil, &http.Cookie{Name: server.SessionCookieName, Value: "bogus"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMeEndpoint_ReturnsCurrentUser(t *testing.T) {
	f := setupServer(t)
	f.createUser(t, testAdminEmail, testAdminPassword, users.RoleAdmin)
	cookie := f.login(t, "admin", testAdminEmail, testAdminPassword)

	rec := f.do(http.MethodGet, "/api/auth/me", nil, cookie)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data struct {
			User struct {
				Email string `json:"email"`
			} `json:"user"`
			Realm   string `json:"realm"`
			IsAdmin bool   `json:"is_admin"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, testAdminEmail, resp.Data.User.Email)
	assert.Equal(t, "admin", resp.Data.Realm)
	assert.True(t, resp.Data.IsAdmin)
}

func TestAdminRoute_RoleGate(t *testing.T) {
	f := setupServer(t)
	f.createUser(t, testAdminEmail, testAdminPassword, users.RoleAdmin)
	f.createUser(t, testUserEmail, testUserPassword, users.RoleCustomer)

	// A storefront customer session is rejected with 403
	customerCookie := f.login(t, "storefront", testUserEmail, testUserPassword)
	rec := f.do(http.MethodGet, "/api/admin/users", nil, customerCookie)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// An admin session passes the gate and sees the user list
	adminCookie := f.login(t, "admin", testAdminEmail, testAdminPassword)
	rec = f.do(http.MethodGet, "/api/admin/users", nil, adminCookie)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data struct {
			Users []json.RawMessage `json:"users"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Data.Users, 2)
}

func TestLogout_IdempotentAndClearsCookie(t *testing.T) {
	f := setupServer(t)
	f.createUser(t, testAdminEmail, testAdminPassword, users.RoleAdmin)
	cookie := f.login(t, "admin", testAdminEmail, testAdminPassword)

	rec := f.do(http.MethodPost, "/api/auth/logout", nil, cookie)
	assert.Equal(t, http.StatusOK, rec.Code)

	// The session is gone
	rec = f.do(http.MethodGet, "/api/auth/me", nil, cookie)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Logging out again, or without a cookie at all, still succeeds
	rec = f.do(http.MethodPost, "/api/auth/logout", nil, cookie)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = f.do(http.MethodPost, "/api/auth/logout", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRegister_Storefront(t *testing.T) {
	f := setupServer(t)

	rec := f.do(http.MethodPost, "/api/storefront/auth/register", map[string]string{
		"email":    testUserEmail,
		"password": testUserPassword,
		"name":     "Jane Doe",
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// Duplicate registration conflicts
	rec = f.do(http.MethodPost, "/api/storefront/auth/register", map[string]string{
		"email":    testUserEmail,
		"password": testUserPassword,
		"name":     "Jane Doe",
	}, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	// The new account can log in to the storefront but not the admin app
	f.login(t, "storefront", testUserEmail, testUserPassword)
	rec = f.do(http.MethodPost, "/api/admin/auth/login", map[string]string{
		"email":    testUserEmail,
		"password": testUserPassword,
	}, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRegister_AdminRealmClosed(t *testing.T) {
	f := setupServer(t)

	// Self-service registration into the admin realm must not mint an
	// account that passes the admin gate
	rec := f.do(http.MethodPost, "/api/admin/auth/register", map[string]string{
		"email":    "intruder@example.com",
		"password": "IntruderPass1",
		"name":     "Intruder",
	}, nil)
	require.Equal(t, http.StatusForbidden, rec.Code, rec.Body.String())

	// No account exists, so the admin realm rejects the credentials
	rec = f.do(http.MethodPost, "/api/admin/auth/login", map[string]string{
		"email":    "intruder@example.com",
		"password": "IntruderPass1",
	}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestBearerToken_AuthAndRevocation(t *testing.T) {
	f := setupServer(t)
	f.createUser(t, testAdminEmail, testAdminPassword, users.RoleAdmin)

	rec := f.do(http.MethodPost, "/api/admin/auth/login", map[string]string{
		"email":    testAdminEmail,
		"password": testAdminPassword,
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var cookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == server.SessionCookieName {
			cookie = c
		}
	}
	require.NotNil(t, cookie)

	var resp struct {
		Data struct {
			AccessToken string `json:"access_token"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Data.AccessToken)

	// A bearer token authenticates without a cookie, including the role gate
	bearerRec := f.doBearer(http.MethodGet, "/api/auth/me", resp.Data.AccessToken)
	assert.Equal(t, http.StatusOK, bearerRec.Code)
	bearerRec = f.doBearer(http.MethodGet, "/api/admin/users", resp.Data.AccessToken)
	assert.Equal(t, http.StatusOK, bearerRec.Code)

	// Garbage tokens are rejected
	bearerRec = f.doBearer(http.MethodGet, "/api/auth/me", "not-a-token")
	assert.Equal(t, http.StatusUnauthorized, bearerRec.Code)

	// Logout revokes the access token, so bearer requests stop working too
	rec = f.do(http.MethodPost, "/api/auth/logout", nil, cookie)
	require.Equal(t, http.StatusOK, rec.Code)

	bearerRec = f.doBearer(http.MethodGet, "/api/auth/me", resp.Data.AccessToken)
	assert.Equal(t, http.StatusUnauthorized, bearerRec.Code)
}

func TestRegister_ValidationErrors(t *testing.T) {
	f := setupServer(t)

	rec := f.do(http.MethodPost, "/api/storefront/auth/register", map[string]string{
		"email":    "not-an-email",
		"password": testUserPassword,
		"name":     "Jane Doe",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPost, "/api/storefront/auth/register", map[string]string{
		"email":    testUserEmail,
		"password": "weak",
		"name":     "Jane Doe",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSeedAdmin_CreatesInitialAccount(t *testing.T) {
	cfg := &config.Config{
		AppName: "storeauth",
		Env:     "TEST",
		Auth: config.AuthSettings{
			Secret: "test-secret-1234",
			Issuer: "com.testissuer",
		},
		Realms: map[string]config.RealmPolicy{
			config.RealmAdmin: {SessionTTL: 12 * time.Hour, RequiredRole: "admin", DefaultRole: "admin"},
		},
		Admin: config.AdminSeed{
			Email:    testAdminEmail,
			Password: testAdminPassword,
			Name:     "Administrator",
		},
	}

	ur := fakeuserrepo.NewFakeUserRepo()
	repos := auth.Repos{Users: ur, Profiles: fakeprofilerepo.NewFakeProfileRepo(), Sessions: fakesessionrepo.NewFakeSessionRepo()}

	tm, err := token.New([]byte(cfg.Auth.Secret), cfg.Auth.Issuer, 15*time.Minute, time.Hour, refresh.NewInMemoryRepo())
	require.NoError(t, err)
	manager, err := auth.NewManager(repos, tm, cfg.Realms)
	require.NoError(t, err)
	t.Cleanup(manager.Close)

	_, err = server.New(context.Background(), cfg, manager, repos, flowstate.NewInMemoryRepo(), zerolog.Nop())
	require.NoError(t, err)

	seeded, err := ur.GetByEmail(context.Background(), testAdminEmail)
	require.NoError(t, err)
	assert.Equal(t, users.RoleAdmin, seeded.Role)
	assert.True(t, users.CheckPasswordHash(testAdminPassword, seeded.PasswordHash))
}

func TestPasswordResetRequest_AlwaysSucceeds(t *testing.T) {
	f := setupServer(t)

	rec := f.do(http.MethodPost, "/api/auth/password/reset-request", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code) // empty body

	rec = f.do(http.MethodPost, "/api/auth/password/reset-request", map[string]string{
		"email": "nobody@example.com",
	}, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
