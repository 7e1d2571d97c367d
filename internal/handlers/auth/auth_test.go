package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/edusystems/school_management/internal/hash"
	authmw "github.com/edusystems/school_management/internal/middleware/auth"
	"github.com/edusystems/school_management/internal/models"
	"github.com/edusystems/school_management/internal/mykafka"
	"github.com/edusystems/school_management/internal/store"
	"github.com/edusystems/school_management/internal/token"
)

func initTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to connect to in-memory db: %v", err)
	}
	if err := db.AutoMigrate(&models.Credential{}); err != nil {
		t.Fatalf("failed to migrate tables: %v", err)
	}
	return db
}

func newTestHandler(t *testing.T) (*AuthHandler, *store.CredentialStore) {
	t.Helper()
	creds := store.NewCredentialStore(initTestDB(t))
	return &AuthHandler{
		Store:    creds,
		Tokens:   token.NewService([]byte("access-secret"), []byte("refresh-secret")),
		Producer: &mykafka.Producer{},
	}, creds
}

func seedLogin(t *testing.T, creds *store.CredentialStore, phone, password string, role models.Role) *models.Credential {
	t.Helper()
	pwHash, err := hash.HashPassword(password)
	require.NoError(t, err)
	cred := &models.Credential{
		Phone:        phone,
		PasswordHash: pwHash,
		Role:         role,
		Status:       models.StatusActive,
	}
	require.NoError(t, creds.Create(context.Background(), cred))
	return cred
}

func jsonRequest(t *testing.T, method, target string, payload any) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()
	e := echo.New()
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		require.NoError(t, err)
	}
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestLoginSuccess(t *testing.T) {
	h, creds := newTestHandler(t)
	cred := seedLogin(t, creds, "+77010000001", "password", models.RoleTeacher)

	c, rec := jsonRequest(t, http.MethodPost, "/login", map[string]string{
		"phone":    "+77010000001",
		"password": "password",
	})
	require.NoError(t, h.Login(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp["access_token"])
	require.NotEmpty(t, resp["refresh_token"])
	require.Equal(t, "teacher", resp["role"])

	claims, err := h.Tokens.VerifyAccessToken(resp["access_token"].(string))
	require.NoError(t, err)
	id, err := claims.PrincipalID()
	require.NoError(t, err)
	require.Equal(t, cred.ID, id)
	require.Equal(t, models.RoleTeacher, claims.Role)

	cookies := rec.Result().Cookies()
	names := make(map[string]string, len(cookies))
	for _, ck := range cookies {
		names[ck.Name] = ck.Value
	}
	require.NotEmpty(t, names[AccessCookieName])
	require.NotEmpty(t, names[RefreshCookieName])
}

func TestLoginWrongPassword(t *testing.T) {
	h, creds := newTestHandler(t)
	cred := seedLogin(t, creds, "+77010000002", "password", models.RoleStudent)

	c, _ := jsonRequest(t, http.MethodPost, "/login", map[string]string{
		"phone":    "+77010000002",
		"password": "wrong",
	})
	err := h.Login(c)
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok, "expected HTTPError")
	require.Equal(t, http.StatusUnauthorized, he.Code)

	got, err := creds.FindByID(context.Background(), cred.ID)
	require.NoError(t, err)
	require.Equal(t, uint(1), got.FailedLoginAttempts)
}

func TestLoginUnknownPhone(t *testing.T) {
	h, _ := newTestHandler(t)

	c, _ := jsonRequest(t, http.MethodPost, "/login", map[string]string{
		"phone":    "+70000000000",
		"password": "whatever",
	})
	err := h.Login(c)
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok, "expected HTTPError")
	require.Equal(t, http.StatusUnauthorized, he.Code)
}

func TestLoginLockout(t *testing.T) {
	h, creds := newTestHandler(t)
	creds.MaxFailedAttempts = 2
	seedLogin(t, creds, "+77010000003", "password", models.RoleParent)

	for i := 0; i < 2; i++ {
		c, _ := jsonRequest(t, http.MethodPost, "/login", map[string]string{
			"phone":    "+77010000003",
			"password": "wrong",
		})
		err := h.Login(c)
		he, ok := err.(*echo.HTTPError)
		require.True(t, ok, "expected HTTPError")
		require.Equal(t, http.StatusUnauthorized, he.Code)
	}

	// Correct password loses to the lockout window.
	c, _ := jsonRequest(t, http.MethodPost, "/login", map[string]string{
		"phone":    "+77010000003",
		"password": "password",
	})
	err := h.Login(c)
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok, "expected HTTPError")
	require.Equal(t, http.StatusLocked, he.Code)
}

func TestLoginSuccessResetsFailures(t *testing.T) {
	h, creds := newTestHandler(t)
	cred := seedLogin(t, creds, "+77010000004", "password", models.RoleHR)

	c, _ := jsonRequest(t, http.MethodPost, "/login", map[string]string{
		"phone":    "+77010000004",
		"password": "wrong",
	})
	_ = h.Login(c)

	c, rec := jsonRequest(t, http.MethodPost, "/login", map[string]string{
		"phone":    "+77010000004",
		"password": "password",
	})
	require.NoError(t, h.Login(c))
	require.Equal(t, http.StatusOK, rec.Code)

	got, err := creds.FindByID(context.Background(), cred.ID)
	require.NoError(t, err)
	require.Equal(t, uint(0), got.FailedLoginAttempts)
}

func TestRefreshRotatesTokens(t *testing.T) {
	h, creds := newTestHandler(t)
	cred := seedLogin(t, creds, "+77010000005", "password", models.RoleDoctor)

	refreshToken, err := h.Tokens.IssueRefreshToken(cred)
	require.NoError(t, err)

	c, rec := jsonRequest(t, http.MethodPost, "/refresh", nil)
	c.Request().AddCookie(&http.Cookie{Name: RefreshCookieName, Value: refreshToken})
	require.NoError(t, h.Refresh(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp["access_token"])
	require.NotEmpty(t, resp["refresh_token"])
}

func TestRefreshRejectsStaleVersion(t *testing.T) {
	h, creds := newTestHandler(t)
	cred := seedLogin(t, creds, "+77010000006", "password", models.RoleDoctor)

	refreshToken, err := h.Tokens.IssueRefreshToken(cred)
	require.NoError(t, err)

	require.NoError(t, creds.BumpTokenVersion(context.Background(), cred.ID))

	c, _ := jsonRequest(t, http.MethodPost, "/refresh", nil)
	c.Request().AddCookie(&http.Cookie{Name: RefreshCookieName, Value: refreshToken})
	err = h.Refresh(c)
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok, "expected HTTPError")
	require.Equal(t, http.StatusUnauthorized, he.Code)
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	h, creds := newTestHandler(t)
	cred := seedLogin(t, creds, "+77010000007", "password", models.RoleStaff)

	accessToken, err := h.Tokens.IssueAccessToken(cred)
	require.NoError(t, err)

	c, _ := jsonRequest(t, http.MethodPost, "/refresh", nil)
	c.Request().AddCookie(&http.Cookie{Name: RefreshCookieName, Value: accessToken})
	err = h.Refresh(c)
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok, "expected HTTPError")
	require.Equal(t, http.StatusUnauthorized, he.Code)
}

func TestLogOutClearsAllAuthCookies(t *testing.T) {
	h, _ := newTestHandler(t)

	c, rec := jsonRequest(t, http.MethodPost, "/logout", nil)
	require.NoError(t, h.LogOut(c))
	require.Equal(t, http.StatusOK, rec.Code)

	cleared := make(map[string]bool)
	for _, ck := range rec.Result().Cookies() {
		if ck.Value == "" && ck.MaxAge < 0 {
			cleared[ck.Name] = true
		}
	}
	for _, name := range authCookieNames {
		require.True(t, cleared[name], "expected cookie %q cleared", name)
	}

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "logged out", resp["message"])
}

func TestChangePasswordInvalidatesOldTokens(t *testing.T) {
	h, creds := newTestHandler(t)
	cred := seedLogin(t, creds, "+77010000008", "old-password", models.RoleTeacher)

	oldAccess, err := h.Tokens.IssueAccessToken(cred)
	require.NoError(t, err)

	c, rec := jsonRequest(t, http.MethodPost, "/account/password", map[string]string{
		"current_password": "old-password",
		"new_password":     "new-password",
	})
	setTestIdentity(c, cred)
	require.NoError(t, h.ChangePassword(c))
	require.Equal(t, http.StatusOK, rec.Code)

	got, err := creds.FindByID(context.Background(), cred.ID)
	require.NoError(t, err)
	require.Equal(t, cred.TokenVersion+1, got.TokenVersion)
	require.True(t, hash.CheckPassword(got.PasswordHash, "new-password"))

	// The pre-change token now fails the version match in the gate.
	mw := &authmw.Middleware{Tokens: h.Tokens, Store: creds}
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/announcements", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+oldAccess)
	gc := e.NewContext(req, httptest.NewRecorder())
	err = mw.Authenticate(func(c echo.Context) error { return c.NoContent(http.StatusOK) })(gc)
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok, "expected HTTPError")
	require.Equal(t, http.StatusUnauthorized, he.Code)
}

func TestChangePasswordWrongCurrent(t *testing.T) {
	h, creds := newTestHandler(t)
	cred := seedLogin(t, creds, "+77010000009", "password", models.RoleTeacher)

	c, _ := jsonRequest(t, http.MethodPost, "/account/password", map[string]string{
		"current_password": "wrong",
		"new_password":     "new-password",
	})
	setTestIdentity(c, cred)
	err := h.ChangePassword(c)
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok, "expected HTTPError")
	require.Equal(t, http.StatusUnauthorized, he.Code)
}

func TestRegisterAndDuplicate(t *testing.T) {
	h, creds := newTestHandler(t)

	c, rec := jsonRequest(t, http.MethodPost, "/admin/credentials", map[string]any{
		"phone":     "+77015550000",
		"password":  "password",
		"role":      "student",
		"branch_id": 3,
	})
	require.NoError(t, h.Register(c))
	require.Equal(t, http.StatusCreated, rec.Code)

	var created models.Credential
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.Equal(t, models.RoleStudent, created.Role)
	require.NotZero(t, created.ID)

	got, err := creds.FindByID(context.Background(), created.ID)
	require.NoError(t, err)
	require.NotEqual(t, "password", got.PasswordHash)

	c, _ = jsonRequest(t, http.MethodPost, "/admin/credentials", map[string]any{
		"phone":    "+77015550000",
		"password": "password",
		"role":     "student",
	})
	err = h.Register(c)
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok, "expected HTTPError")
	require.Equal(t, http.StatusConflict, he.Code)
}

func TestRegisterRejectsUnknownRole(t *testing.T) {
	h, _ := newTestHandler(t)

	c, _ := jsonRequest(t, http.MethodPost, "/admin/credentials", map[string]string{
		"phone":    "+77015550001",
		"password": "password",
		"role":     "superuser",
	})
	err := h.Register(c)
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok, "expected HTTPError")
	require.Equal(t, http.StatusBadRequest, he.Code)
}

func TestInvalidateSessionsScopes(t *testing.T) {
	h, creds := newTestHandler(t)
	teacher := seedLogin(t, creds, "+77015550002", "password", models.RoleTeacher)
	student := seedLogin(t, creds, "+77015550003", "password", models.RoleStudent)
	ctx := context.Background()

	c, rec := jsonRequest(t, http.MethodPost, "/admin/sessions/invalidate", map[string]any{
		"scope":        "principal",
		"principal_id": teacher.ID,
	})
	require.NoError(t, h.InvalidateSessions(c))
	require.Equal(t, http.StatusOK, rec.Code)

	got, _ := creds.FindByID(ctx, teacher.ID)
	require.Equal(t, uint(1), got.TokenVersion)
	got, _ = creds.FindByID(ctx, student.ID)
	require.Equal(t, uint(0), got.TokenVersion)

	c, _ = jsonRequest(t, http.MethodPost, "/admin/sessions/invalidate", map[string]any{
		"scope": "role",
		"role":  "student",
	})
	require.NoError(t, h.InvalidateSessions(c))
	got, _ = creds.FindByID(ctx, student.ID)
	require.Equal(t, uint(1), got.TokenVersion)

	c, _ = jsonRequest(t, http.MethodPost, "/admin/sessions/invalidate", map[string]any{
		"scope": "all",
	})
	require.NoError(t, h.InvalidateSessions(c))
	got, _ = creds.FindByID(ctx, teacher.ID)
	require.Equal(t, uint(2), got.TokenVersion)

	c, _ = jsonRequest(t, http.MethodPost, "/admin/sessions/invalidate", map[string]any{
		"scope": "everything",
	})
	err := h.InvalidateSessions(c)
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok, "expected HTTPError")
	require.Equal(t, http.StatusBadRequest, he.Code)
}

// setTestIdentity mimics what the authenticate middleware attaches.
func setTestIdentity(c echo.Context, cred *models.Credential) {
	c.Set("identity", authmw.Identity{
		ID:           cred.ID,
		Role:         cred.Role,
		BranchID:     cred.BranchID,
		TokenVersion: cred.TokenVersion,
	})
}
