package auth

import (
	"crypto/subtle"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Credentials is the configured dashboard operator login. Password may be a
// bcrypt hash or plain text.
type Credentials struct {
	Username string
	Password string
}

func (c Credentials) Check(username, password string) bool {
	if c.Username == "" || c.Password == "" {
		return false
	}
	if subtle.ConstantTimeCompare([]byte(username), []byte(c.Username)) != 1 {
		return false
	}
	if isBcrypt(c.Password) {
		return bcrypt.CompareHashAndPassword([]byte(c.Password), []byte(password)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(password), []byte(c.Password)) == 1
}

func isBcrypt(s string) bool {
	return strings.HasPrefix(s, "$2a$") || strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$")
}
