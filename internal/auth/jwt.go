package auth

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenType discriminates the four token kinds. Every verification call
// states the kind it expects, so a refresh token can never pass as an
// access token and an email-bound token can never authenticate a request.
type TokenType string

const (
	TokenAccess        TokenType = "access"
	TokenRefresh       TokenType = "refresh"
	TokenVerification  TokenType = "verification"
	TokenPasswordReset TokenType = "password_reset"
)

const (
	AccessTokenTTL        = 180 * time.Minute
	RefreshTokenTTL       = 7 * 24 * time.Hour
	VerificationTokenTTL  = 24 * time.Hour
	PasswordResetTokenTTL = time.Hour
)

var ErrInvalidToken = errors.New("invalid token")

func secretKey() []byte {
	if s := os.Getenv("JWT_SECRET"); s != "" {
		return []byte(s)
	}
	return []byte("change-me-in-production")
}

// Claims is the decoded identity payload of an access or refresh token.
type Claims struct {
	UserID uint
	Email  string
	Role   string
}

func signIdentity(kind TokenType, ttl time.Duration, userID uint, email, role string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   strconv.FormatUint(uint64(userID), 10),
		"email": email,
		"role":  role,
		"exp":   now.Add(ttl).Unix(),
		"iat":   now.Unix(),
		"type":  string(kind),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secretKey())
}

func signEmail(kind TokenType, ttl time.Duration, email string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"email": email,
		"exp":   now.Add(ttl).Unix(),
		"iat":   now.Unix(),
		"type":  string(kind),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secretKey())
}

func SignAccess(userID uint, email, role string) (string, error) {
	return signIdentity(TokenAccess, AccessTokenTTL, userID, email, role)
}

func SignRefresh(userID uint, email, role string) (string, error) {
	return signIdentity(TokenRefresh, RefreshTokenTTL, userID, email, role)
}

// SignVerification carries only the email; the user is re-resolved by
// email when the token is consumed.
func SignVerification(email string) (string, error) {
	return signEmail(TokenVerification, VerificationTokenTTL, email)
}

func SignPasswordReset(email string) (string, error) {
	return signEmail(TokenPasswordReset, PasswordResetTokenTTL, email)
}

func parse(tokenStr string) (jwt.MapClaims, error) {
	tok, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return secretKey(), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !tok.Valid {
		return nil, ErrInvalidToken
	}
	mapc, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}
	return mapc, nil
}

// VerifyIdentity decodes an access or refresh token. It fails closed on a
// bad signature, an expired token, a type mismatch, or missing fields.
func VerifyIdentity(tokenStr string, expected TokenType) (Claims, error) {
	mapc, err := parse(tokenStr)
	if err != nil {
		return Claims{}, err
	}
	if kind, _ := mapc["type"].(string); kind != string(expected) {
		return Claims{}, ErrInvalidToken
	}
	sub, _ := mapc["sub"].(string)
	email, _ := mapc["email"].(string)
	if sub == "" || email == "" {
		return Claims{}, ErrInvalidToken
	}
	id, err := strconv.ParseUint(sub, 10, 64)
	if err != nil {
		return Claims{}, ErrInvalidToken
	}
	role, _ := mapc["role"].(string)
	return Claims{UserID: uint(id), Email: email, Role: role}, nil
}

// VerifyEmailToken decodes a verification or password-reset token and
// returns the email it was issued for.
func VerifyEmailToken(tokenStr string, expected TokenType) (string, error) {
	mapc, err := parse(tokenStr)
	if err != nil {
		return "", err
	}
	if kind, _ := mapc["type"].(string); kind != string(expected) {
		return "", ErrInvalidToken
	}
	email, _ := mapc["email"].(string)
	if email == "" {
		return "", ErrInvalidToken
	}
	return email, nil
}
