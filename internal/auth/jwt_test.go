package auth_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"geomon/internal/auth"
)

const testSecret = "test-secret"

func signRaw(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func TestIdentityTokenRoundTrip(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)

	access, err := auth.SignAccess(42, "alice@example.com", auth.RoleAdmin)
	require.NoError(t, err)
	claims, err := auth.VerifyIdentity(access, auth.TokenAccess)
	require.NoError(t, err)
	assert.Equal(t, uint(42), claims.UserID)
	assert.Equal(t, "alice@example.com", claims.Email)
	assert.Equal(t, auth.RoleAdmin, claims.Role)

	refresh, err := auth.SignRefresh(42, "alice@example.com", auth.RoleAdmin)
	require.NoError(t, err)
	_, err = auth.VerifyIdentity(refresh, auth.TokenRefresh)
	assert.NoError(t, err)
}

func TestEmailTokenRoundTrip(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)

	verification, err := auth.SignVerification("bob@example.com")
	require.NoError(t, err)
	addr, err := auth.VerifyEmailToken(verification, auth.TokenVerification)
	require.NoError(t, err)
	assert.Equal(t, "bob@example.com", addr)

	reset, err := auth.SignPasswordReset("bob@example.com")
	require.NoError(t, err)
	addr, err = auth.VerifyEmailToken(reset, auth.TokenPasswordReset)
	require.NoError(t, err)
	assert.Equal(t, "bob@example.com", addr)
}

func TestCrossTypeReplayFailsClosed(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)

	access, err := auth.SignAccess(1, "a@example.com", auth.RoleUser)
	require.NoError(t, err)
	refresh, err := auth.SignRefresh(1, "a@example.com", auth.RoleUser)
	require.NoError(t, err)
	verification, err := auth.SignVerification("a@example.com")
	require.NoError(t, err)
	reset, err := auth.SignPasswordReset("a@example.com")
	require.NoError(t, err)

	// A refresh token must not pass as an access token and vice versa.
	_, err = auth.VerifyIdentity(refresh, auth.TokenAccess)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
	_, err = auth.VerifyIdentity(access, auth.TokenRefresh)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)

	// Email-bound tokens must not authenticate requests.
	_, err = auth.VerifyIdentity(verification, auth.TokenAccess)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)

	// And the two single-purpose kinds must not stand in for each other.
	_, err = auth.VerifyEmailToken(reset, auth.TokenVerification)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
	_, err = auth.VerifyEmailToken(verification, auth.TokenPasswordReset)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestExpiredTokenRejected(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)

	expired := signRaw(t, testSecret, jwt.MapClaims{
		"sub":   "1",
		"email": "a@example.com",
		"role":  "user",
		"exp":   time.Now().Add(-time.Minute).Unix(),
		"type":  "access",
	})
	_, err := auth.VerifyIdentity(expired, auth.TokenAccess)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)

	expiredReset := signRaw(t, testSecret, jwt.MapClaims{
		"email": "a@example.com",
		"exp":   time.Now().Add(-time.Minute).Unix(),
		"type":  "password_reset",
	})
	_, err = auth.VerifyEmailToken(expiredReset, auth.TokenPasswordReset)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestForeignSignatureRejected(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)

	forged := signRaw(t, "other-secret", jwt.MapClaims{
		"sub":   "1",
		"email": "a@example.com",
		"role":  "admin",
		"exp":   time.Now().Add(time.Hour).Unix(),
		"type":  "access",
	})
	_, err := auth.VerifyIdentity(forged, auth.TokenAccess)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestIncompleteClaimsRejected(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)

	missingSub := signRaw(t, testSecret, jwt.MapClaims{
		"email": "a@example.com",
		"exp":   time.Now().Add(time.Hour).Unix(),
		"type":  "access",
	})
	_, err := auth.VerifyIdentity(missingSub, auth.TokenAccess)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)

	missingEmail := signRaw(t, testSecret, jwt.MapClaims{
		"exp":  time.Now().Add(time.Hour).Unix(),
		"type": "verification",
	})
	_, err = auth.VerifyEmailToken(missingEmail, auth.TokenVerification)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}
