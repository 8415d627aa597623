package accounts

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// MinPasswordLength is the shortest password accepted at signup, reset and
// change.
const MinPasswordLength = 5

// PasswordCost is the bcrypt cost used for new credential hashes.
var PasswordCost = bcrypt.DefaultCost

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// Credentials is a local email/password form submission.
type Credentials struct {
	Email    string
	Password string
	Repeat   string // only checked on signup and password set
}

// CredentialsValidator validates a credentials form before it reaches the
// store.
type CredentialsValidator func(creds *Credentials) error

// DefaultSignupValidator requires a well formed email and a matching pair of
// passwords of at least MinPasswordLength characters.
var DefaultSignupValidator CredentialsValidator = func(creds *Credentials) error {
	if err := ValidateEmail(creds.Email); err != nil {
		return err
	}
	return ValidateNewPassword(creds.Password, creds.Repeat)
}

// ValidateEmail checks that an email address is present and well formed.
func ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return validationError(ErrCodeMissingField, "Email is required", "email")
	}
	if !emailRegex.MatchString(email) {
		return validationError(ErrCodeInvalidEmail, "Enter a valid email address", "email")
	}
	return nil
}

// ValidateNewPassword checks a new password and its repetition.
func ValidateNewPassword(password, repeat string) error {
	if password == "" {
		return validationError(ErrCodeMissingField, "Password is required", "password")
	}
	if len(password) < MinPasswordLength {
		return validationError(ErrCodeWeakPassword,
			fmt.Sprintf("Password must be at least %d characters", MinPasswordLength), "password")
	}
	if password != repeat {
		return validationError(ErrCodePasswordMismatch, "The passwords do not match.", "repeat")
	}
	return nil
}

// HashPassword returns the bcrypt hash stored as an account's credential.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), PasswordCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches the account's credential.
// Accounts without a credential hash never match.
func CheckPassword(account *Account, password string) bool {
	if account == nil || !account.HasPassword() {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(account.CredentialHash), []byte(password)) == nil
}
