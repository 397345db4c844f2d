package users_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"geomon/internal/auth"
	"geomon/internal/models"
	"geomon/internal/users"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.User{}))
	return db
}

func TestCreateForcesUserRole(t *testing.T) {
	db := openTestDB(t)
	first := "Alice"
	u, err := users.Create(db, "alice@example.com", "Passw0rd!", &first, nil)
	require.NoError(t, err)

	assert.Equal(t, auth.RoleUser, u.Role)
	assert.True(t, u.IsActive)
	assert.False(t, u.IsVerified)
	assert.NotEqual(t, "Passw0rd!", u.HashedPassword)
	assert.Nil(t, u.LastLogin)
}

func TestCreateDuplicateEmailConflicts(t *testing.T) {
	db := openTestDB(t)
	_, err := users.Create(db, "alice@example.com", "Passw0rd!", nil, nil)
	require.NoError(t, err)

	_, err = users.Create(db, "alice@example.com", "another", nil, nil)
	assert.ErrorIs(t, err, users.ErrEmailTaken)

	// No partial second row.
	var count int64
	db.Model(&models.User{}).Where("email = ?", "alice@example.com").Count(&count)
	assert.EqualValues(t, 1, count)
}

func TestFindByEmailMissingIsNilNotError(t *testing.T) {
	db := openTestDB(t)
	u, err := users.FindByEmail(db, "nobody@example.com")
	require.NoError(t, err)
	assert.Nil(t, u)
}

func newVerifiedUser(t *testing.T, db *gorm.DB, email, password string) *models.User {
	t.Helper()
	u, err := users.Create(db, email, password, nil, nil)
	require.NoError(t, err)
	require.NoError(t, users.MarkVerified(db, u))
	return u
}

func TestAuthenticateSuccessStampsLastLogin(t *testing.T) {
	db := openTestDB(t)
	newVerifiedUser(t, db, "alice@example.com", "Passw0rd!")

	u, failure := users.Authenticate(db, "alice@example.com", "Passw0rd!")
	require.Equal(t, users.AuthOK, failure)
	require.NotNil(t, u)
	assert.NotNil(t, u.LastLogin)

	stored, err := users.FindByEmail(db, "alice@example.com")
	require.NoError(t, err)
	assert.NotNil(t, stored.LastLogin)
}

func TestAuthenticateFailureReasons(t *testing.T) {
	db := openTestDB(t)
	newVerifiedUser(t, db, "alice@example.com", "Passw0rd!")

	_, err := users.Create(db, "bob@example.com", "Passw0rd!", nil, nil)
	require.NoError(t, err)

	inactive := newVerifiedUser(t, db, "carol@example.com", "Passw0rd!")
	require.NoError(t, db.Model(inactive).Update("is_active", false).Error)

	tests := []struct {
		name     string
		email    string
		password string
		want     users.AuthFailure
	}{
		{"unknown email", "nobody@example.com", "Passw0rd!", users.AuthUnknownEmail},
		{"wrong password", "alice@example.com", "nope", users.AuthBadPassword},
		{"unverified", "bob@example.com", "Passw0rd!", users.AuthUnverified},
		{"inactive", "carol@example.com", "Passw0rd!", users.AuthInactive},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, failure := users.Authenticate(db, tt.email, tt.password)
			assert.Nil(t, u)
			assert.Equal(t, tt.want, failure)
		})
	}
}

func TestSetPasswordReplacesHash(t *testing.T) {
	db := openTestDB(t)
	u := newVerifiedUser(t, db, "alice@example.com", "old-password")

	require.NoError(t, users.SetPassword(db, u, "new-password"))

	_, failure := users.Authenticate(db, "alice@example.com", "old-password")
	assert.Equal(t, users.AuthBadPassword, failure)
	logged, failure := users.Authenticate(db, "alice@example.com", "new-password")
	assert.Equal(t, users.AuthOK, failure)
	assert.NotNil(t, logged)
}
