// Package users defines the user model and the directory contract the token
// service authenticates against. The directory is an external collaborator:
// the token core never owns user storage, it only asks the directory to
// check credentials and resolve subjects.
package users

import (
	"fmt"
	"time"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

type User struct {
	ID           string    `json:"id,omitempty"`           // Unique identifier for the user
	Username     string    `json:"username,omitempty"`     // Unique username
	DisplayName  string    `json:"display_name,omitempty"` // Name embedded in access-token claims
	PasswordHash string    `json:"-"`                      // Hashed version of the user's password - never serialize
	DateJoined   time.Time `json:"date_joined,omitempty"`  // Date and time when the user registered
	LastLogin    time.Time `json:"last_login,omitempty"`   // Last time the user logged in
}

// ValidatePasswordStrength checks if a password meets security requirements:
// - At least 8 characters long
// - Contains uppercase and lowercase letters
// - Contains at least one number
func ValidatePasswordStrength(password string) error {
	if len(password) < 8 {
		return fmt.Errorf("password must be at least 8 characters long")
	}

	var hasUpper, hasLower, hasNumber bool
	for _, char := range password {
		if unicode.IsUpper(char) {
			hasUpper = true
		} else if unicode.IsLower(char) {
			hasLower = true
		} else if unicode.IsDigit(char) {
			hasNumber = true
		}
	}

	if !hasUpper {
		return fmt.Errorf("password must contain at least one uppercase letter")
	}
	if !hasLower {
		return fmt.Errorf("password must contain at least one lowercase letter")
	}
	if !hasNumber {
		return fmt.Errorf("password must contain at least one number")
	}
	return nil
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}
