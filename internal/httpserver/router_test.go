package httpserver_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"geomon/internal/auth"
	"geomon/internal/httpserver"
	"geomon/internal/models"
)

// fakeMailer records outgoing mail so tests can pick up the issued
// verification and reset tokens.
type fakeMailer struct {
	verificationTokens map[string]string
	resetTokens        map[string]string
	welcomes           []string
	credentials        []string
}

func newFakeMailer() *fakeMailer {
	return &fakeMailer{
		verificationTokens: map[string]string{},
		resetTokens:        map[string]string{},
	}
}

func (f *fakeMailer) SendVerification(to, token, name string) bool {
	f.verificationTokens[to] = token
	return true
}

func (f *fakeMailer) SendPasswordReset(to, token, name string) bool {
	f.resetTokens[to] = token
	return true
}

func (f *fakeMailer) SendWelcome(to, name string) bool {
	f.welcomes = append(f.welcomes, to)
	return true
}

func (f *fakeMailer) SendNewUserCredentials(to, password, name string) bool {
	f.credentials = append(f.credentials, to)
	return true
}

type env struct {
	t      *testing.T
	db     *gorm.DB
	router http.Handler
	mail   *fakeMailer
}

func newEnv(t *testing.T) *env {
	t.Helper()
	t.Setenv("JWT_SECRET", "router-test-secret")
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Project{},
		&models.ProjectPermission{},
		&models.AuditLog{},
		&models.GeologyEge{},
	))
	mail := newFakeMailer()
	return &env{
		t:      t,
		db:     db,
		router: httpserver.NewRouter(db, zap.NewNop().Sugar(), mail),
		mail:   mail,
	}
}

func (e *env) do(method, path string, body any, token string) *httptest.ResponseRecorder {
	e.t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(e.t, err)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	req.RemoteAddr = "127.0.0.1:41000"
	req.Header.Set("User-Agent", "geomon-router-test")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &m))
	return m
}

func (e *env) seedAdmin(email, password string) {
	e.t.Helper()
	hash, err := auth.HashPassword(password)
	require.NoError(e.t, err)
	require.NoError(e.t, e.db.Create(&models.User{
		Email:          email,
		HashedPassword: hash,
		Role:           auth.RoleAdmin,
		IsActive:       true,
		IsVerified:     true,
	}).Error)
}

func (e *env) login(email, password string) (access, refresh string) {
	e.t.Helper()
	w := e.do("POST", "/v1/auth/login", map[string]string{"email": email, "password": password}, "")
	require.Equal(e.t, http.StatusOK, w.Code, w.Body.String())
	body := decode(e.t, w)
	tokens := body["tokens"].(map[string]any)
	return tokens["access_token"].(string), tokens["refresh_token"].(string)
}

func TestRegisterVerifyLoginFlow(t *testing.T) {
	e := newEnv(t)

	// Register returns the user with an empty token pair.
	w := e.do("POST", "/v1/auth/register", map[string]string{
		"email":    "alice@example.com",
		"password": "Passw0rd!",
	}, "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	body := decode(t, w)
	tokens := body["tokens"].(map[string]any)
	assert.Empty(t, tokens["access_token"])
	assert.Empty(t, tokens["refresh_token"])
	assert.EqualValues(t, 0, tokens["expires_in"])
	user := body["user"].(map[string]any)
	assert.Equal(t, false, user["is_verified"])

	// Login before verification is a 403 with an explicit message.
	w = e.do("POST", "/v1/auth/login", map[string]string{
		"email":    "alice@example.com",
		"password": "Passw0rd!",
	}, "")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "email not confirmed")

	// Verify with the token from the captured email.
	token := e.mail.verificationTokens["alice@example.com"]
	require.NotEmpty(t, token)
	w = e.do("GET", "/v1/auth/verify-email?token="+token, nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, e.mail.welcomes, "alice@example.com")

	// Verification is idempotent.
	w = e.do("GET", "/v1/auth/verify-email?token="+token, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "already confirmed")

	// Now login succeeds with a real token pair.
	access, refresh := e.login("alice@example.com", "Passw0rd!")
	assert.NotEmpty(t, access)
	assert.NotEmpty(t, refresh)

	var stored models.User
	require.NoError(t, e.db.First(&stored, "email = ?", "alice@example.com").Error)
	assert.NotNil(t, stored.LastLogin)

	// Access token works against a protected route.
	w = e.do("GET", "/v1/auth/me", nil, access)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "alice@example.com", decode(t, w)["email"])

	// Refresh rotates the pair and the new access token is usable.
	w = e.do("POST", "/v1/auth/refresh", map[string]string{"refresh_token": refresh}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	rotated := decode(t, w)
	newAccess := rotated["access_token"].(string)
	assert.NotEmpty(t, newAccess)
	w = e.do("GET", "/v1/auth/me", nil, newAccess)
	assert.Equal(t, http.StatusOK, w.Code)

	// Logout is audit-only.
	w = e.do("POST", "/v1/auth/logout", nil, access)
	require.Equal(t, http.StatusOK, w.Code)

	var logoutCount int64
	e.db.Model(&models.AuditLog{}).Where("action_type = ?", "user.auth.logout").Count(&logoutCount)
	assert.EqualValues(t, 1, logoutCount)
	var registerCount int64
	e.db.Model(&models.AuditLog{}).Where("action_type = ?", "user.auth.register").Count(&registerCount)
	assert.EqualValues(t, 1, registerCount)
}

func TestRegisterDuplicateEmailConflict(t *testing.T) {
	e := newEnv(t)
	w := e.do("POST", "/v1/auth/register", map[string]string{"email": "dup@example.com", "password": "x12345"}, "")
	require.Equal(t, http.StatusCreated, w.Code)
	w = e.do("POST", "/v1/auth/register", map[string]string{"email": "dup@example.com", "password": "other"}, "")
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestLoginFailureBodiesIndistinguishable(t *testing.T) {
	e := newEnv(t)
	e.seedAdmin("real@example.com", "Passw0rd!")

	wrongPassword := e.do("POST", "/v1/auth/login", map[string]string{"email": "real@example.com", "password": "nope"}, "")
	unknownEmail := e.do("POST", "/v1/auth/login", map[string]string{"email": "ghost@example.com", "password": "nope"}, "")
	assert.Equal(t, http.StatusUnauthorized, wrongPassword.Code)
	assert.Equal(t, http.StatusUnauthorized, unknownEmail.Code)
	assert.Equal(t, wrongPassword.Body.String(), unknownEmail.Body.String())

	require.NoError(t, e.db.Model(&models.User{}).Where("email = ?", "real@example.com").Update("is_active", false).Error)
	inactive := e.do("POST", "/v1/auth/login", map[string]string{"email": "real@example.com", "password": "Passw0rd!"}, "")
	assert.Equal(t, http.StatusUnauthorized, inactive.Code)
	assert.Equal(t, unknownEmail.Body.String(), inactive.Body.String())

	// The audit trail still distinguishes the reasons.
	var reasons []string
	e.db.Model(&models.AuditLog{}).Where("status = ?", "error").Pluck("error_message", &reasons)
	assert.Contains(t, reasons, "wrong password")
	assert.Contains(t, reasons, "unknown email")
	assert.Contains(t, reasons, "user deactivated")
}

func TestForgotPasswordAntiEnumeration(t *testing.T) {
	e := newEnv(t)
	e.seedAdmin("real@example.com", "Passw0rd!")

	known := e.do("POST", "/v1/auth/forgot-password", map[string]string{"email": "real@example.com"}, "")
	unknown := e.do("POST", "/v1/auth/forgot-password", map[string]string{"email": "ghost@example.com"}, "")
	assert.Equal(t, http.StatusOK, known.Code)
	assert.Equal(t, http.StatusOK, unknown.Code)
	assert.Equal(t, known.Body.String(), unknown.Body.String())

	assert.NotEmpty(t, e.mail.resetTokens["real@example.com"])
	assert.Empty(t, e.mail.resetTokens["ghost@example.com"])
}

func TestResetPasswordFlow(t *testing.T) {
	e := newEnv(t)
	e.seedAdmin("real@example.com", "old-password")

	w := e.do("POST", "/v1/auth/forgot-password", map[string]string{"email": "real@example.com"}, "")
	require.Equal(t, http.StatusOK, w.Code)
	token := e.mail.resetTokens["real@example.com"]
	require.NotEmpty(t, token)

	w = e.do("POST", "/v1/auth/reset-password", map[string]string{"token": "garbage", "new_password": "x"}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// A verification token must not reset a password.
	verTok, err := auth.SignVerification("real@example.com")
	require.NoError(t, err)
	w = e.do("POST", "/v1/auth/reset-password", map[string]string{"token": verTok, "new_password": "x"}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do("POST", "/v1/auth/reset-password", map[string]string{"token": token, "new_password": "new-password"}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	old := e.do("POST", "/v1/auth/login", map[string]string{"email": "real@example.com", "password": "old-password"}, "")
	assert.Equal(t, http.StatusUnauthorized, old.Code)
	access, _ := e.login("real@example.com", "new-password")
	assert.NotEmpty(t, access)
}

func TestResendVerification(t *testing.T) {
	e := newEnv(t)
	w := e.do("POST", "/v1/auth/register", map[string]string{"email": "bob@example.com", "password": "Passw0rd!"}, "")
	require.Equal(t, http.StatusCreated, w.Code)

	w = e.do("POST", "/v1/auth/resend-verification", map[string]string{"email": "bob@example.com"}, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, e.mail.verificationTokens["bob@example.com"])

	// Unknown email gets the same success class, no mail.
	w = e.do("POST", "/v1/auth/resend-verification", map[string]string{"email": "ghost@example.com"}, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, e.mail.verificationTokens["ghost@example.com"])

	// Already verified short-circuits.
	require.NoError(t, e.db.Model(&models.User{}).Where("email = ?", "bob@example.com").Update("is_verified", true).Error)
	w = e.do("POST", "/v1/auth/resend-verification", map[string]string{"email": "bob@example.com"}, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "already confirmed")
}

func TestAdminGate(t *testing.T) {
	e := newEnv(t)
	e.seedAdmin("admin@example.com", "Adm1nPass")
	adminAccess, _ := e.login("admin@example.com", "Adm1nPass")

	w := e.do("GET", "/v1/admin/users", nil, adminAccess)
	assert.Equal(t, http.StatusOK, w.Code)

	// A user-role token with the same token type is rejected.
	e.do("POST", "/v1/auth/register", map[string]string{"email": "plain@example.com", "password": "Passw0rd!"}, "")
	require.NoError(t, e.db.Model(&models.User{}).Where("email = ?", "plain@example.com").Update("is_verified", true).Error)
	userAccess, _ := e.login("plain@example.com", "Passw0rd!")
	w = e.do("GET", "/v1/admin/users", nil, userAccess)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = e.do("GET", "/v1/admin/users", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRefreshTokenCannotAuthenticateRequests(t *testing.T) {
	e := newEnv(t)
	e.seedAdmin("admin@example.com", "Adm1nPass")
	access, refresh := e.login("admin@example.com", "Adm1nPass")

	w := e.do("GET", "/v1/auth/me", nil, refresh)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// And an access token is not a refresh token.
	w = e.do("POST", "/v1/auth/refresh", map[string]string{"refresh_token": access}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLoginSurvivesAuditWriteFailure(t *testing.T) {
	e := newEnv(t)
	e.seedAdmin("admin@example.com", "Adm1nPass")
	require.NoError(t, e.db.Migrator().DropTable(&models.AuditLog{}))

	w := e.do("POST", "/v1/auth/login", map[string]string{"email": "admin@example.com", "password": "Adm1nPass"}, "")
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestAdminCreatesVerifiedUserWithCredentialsEmail(t *testing.T) {
	e := newEnv(t)
	e.seedAdmin("admin@example.com", "Adm1nPass")
	adminAccess, _ := e.login("admin@example.com", "Adm1nPass")

	w := e.do("POST", "/v1/admin/users", map[string]string{
		"email":    "new@example.com",
		"password": "Chang3Me!",
		"role":     "user",
	}, adminAccess)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Contains(t, e.mail.credentials, "new@example.com")

	// Admin-created accounts can log in straight away.
	access, _ := e.login("new@example.com", "Chang3Me!")
	assert.NotEmpty(t, access)

	var entry models.AuditLog
	require.NoError(t, e.db.Where("action_type = ?", "admin.user.create").First(&entry).Error)
	assert.Equal(t, "admin", entry.Category)
}
