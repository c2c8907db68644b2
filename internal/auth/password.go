package auth

import "golang.org/x/crypto/bcrypt"

// HashPassword returns a salted bcrypt digest of pw.
func HashPassword(pw string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.DefaultCost)
	return string(b), err
}

// CheckPassword reports whether hash was produced from pw. Malformed hashes
// never match.
func CheckPassword(pw, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)) == nil
}
