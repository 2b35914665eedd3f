package portal

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// accessCodeCost is the bcrypt work factor for stored access codes.
const accessCodeCost = 12

// NewAccessCode generates a structured plaintext access code of the form
// AUD-XXXXXXXX-XXXXXXXX. Collision probability is negligible at the scale
// of external auditors per audit.
func NewAccessCode() (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate access code: %w", err)
	}
	hexed := strings.ToUpper(hex.EncodeToString(buf))
	return "AUD-" + hexed[:8] + "-" + hexed[8:], nil
}

// HashAccessCode hashes a plaintext access code for storage.
func HashAccessCode(code string) (string, error) {
	if code == "" {
		return "", errors.New("access code is empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), accessCodeCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyAccessCode compares a presented code with the stored hash.
func VerifyAccessCode(hash, code string) error {
	if hash == "" {
		return errors.New("access code hash is empty")
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(code))
}

// newSessionSecret returns a random 32-byte hex session secret.
func newSessionSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// HashSessionToken derives the stored digest for a session secret.
func HashSessionToken(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// secureCompareHash compares a stored session digest against a presented
// secret in constant time.
func secureCompareHash(expectedHash, secret string) bool {
	actual := HashSessionToken(secret)
	if len(expectedHash) != len(actual) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expectedHash), []byte(actual)) == 1
}

// splitSessionToken separates the transmitted token into the portal user id
// and the secret half that is hashed for storage.
func splitSessionToken(raw string) (userID, secret string, err error) {
	parts := strings.Split(raw, ".")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", errors.New("invalid session token format")
	}
	return parts[0], parts[1], nil
}

// RedactCode masks an access code for the log. Only a short prefix
// survives; full codes never reach storage in plaintext.
func RedactCode(code string) string {
	code = strings.TrimSpace(code)
	if len(code) <= 4 {
		return "****"
	}
	return code[:4] + "****"
}
