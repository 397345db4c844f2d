// Package users is the user directory: lookups, registration and the
// credential checks behind every auth flow.
package users

import (
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"geomon/internal/auth"
	"geomon/internal/models"
)

var ErrEmailTaken = errors.New("email already registered")

// AuthFailure is the internal reason a login was refused. Externally all
// of them except AuthUnverified collapse into one generic message; the
// precise reason only reaches the audit trail.
type AuthFailure int

const (
	AuthOK AuthFailure = iota
	AuthUnknownEmail
	AuthBadPassword
	AuthInactive
	AuthUnverified
)

func (f AuthFailure) String() string {
	switch f {
	case AuthOK:
		return "ok"
	case AuthUnknownEmail:
		return "unknown email"
	case AuthBadPassword:
		return "wrong password"
	case AuthInactive:
		return "user deactivated"
	case AuthUnverified:
		return "email not confirmed"
	default:
		return "unknown"
	}
}

// FindByEmail returns nil without error when no such user exists.
func FindByEmail(db *gorm.DB, email string) (*models.User, error) {
	var u models.User
	err := db.First(&u, "email = ?", email).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func FindByID(db *gorm.DB, id uint) (*models.User, error) {
	var u models.User
	err := db.First(&u, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Create registers a new user. The role is always forced to "user";
// self-registration can never elevate. The account starts active but
// unverified, so it cannot log in until the email is confirmed.
func Create(db *gorm.DB, email, password string, firstName, lastName *string) (*models.User, error) {
	email = strings.TrimSpace(email)
	existing, err := FindByEmail(db, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrEmailTaken
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}
	u := models.User{
		Email:          email,
		HashedPassword: hash,
		Role:           auth.RoleUser,
		IsActive:       true,
		IsVerified:     false,
		FirstName:      firstName,
		LastName:       lastName,
	}
	if err := db.Create(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}
	return &u, nil
}

// Authenticate checks credentials and account state. On success it
// stamps last_login (last-write-wins under concurrent logins).
func Authenticate(db *gorm.DB, email, password string) (*models.User, AuthFailure) {
	u, err := FindByEmail(db, email)
	if err != nil || u == nil {
		return nil, AuthUnknownEmail
	}
	if !auth.CheckPassword(u.HashedPassword, password) {
		return nil, AuthBadPassword
	}
	if !u.IsActive {
		return nil, AuthInactive
	}
	if !u.IsVerified {
		return nil, AuthUnverified
	}
	now := time.Now()
	u.LastLogin = &now
	_ = db.Model(u).Update("last_login", now).Error
	return u, AuthOK
}

func SetPassword(db *gorm.DB, u *models.User, newPassword string) error {
	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		return err
	}
	u.HashedPassword = hash
	return db.Model(u).Update("hashed_password", hash).Error
}

func MarkVerified(db *gorm.DB, u *models.User) error {
	u.IsVerified = true
	return db.Model(u).Update("is_verified", true).Error
}
