package auth

import "golang.org/x/crypto/bcrypt"

// bcrypt ignores everything past 72 bytes and recent versions reject
// longer inputs outright, so we truncate explicitly on both paths.
const maxPasswordBytes = 72

// HashPassword hashes a plaintext password using bcrypt with DefaultCost.
func HashPassword(pw string) (string, error) {
	b := []byte(pw)
	if len(b) > maxPasswordBytes {
		b = b[:maxPasswordBytes]
	}
	h, err := bcrypt.GenerateFromPassword(b, bcrypt.DefaultCost)
	return string(h), err
}

// CheckPassword reports whether the candidate plaintext matches the
// bcrypt hash. A mismatch is not an error, just false.
func CheckPassword(hash, pw string) bool {
	b := []byte(pw)
	if len(b) > maxPasswordBytes {
		b = b[:maxPasswordBytes]
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), b) == nil
}
