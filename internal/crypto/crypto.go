package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"io"
	"math/big"

	"github.com/pkg/errors"
)

// SecureToken creates a new random token
func SecureToken(options ...int) string {
	length := 32
	if len(options) > 0 {
		length = options[0]
	}
	b := make([]byte, length)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		panic(err.Error()) // rand should never fail
	}
	return base64.RawURLEncoding.EncodeToString(b)
}

// GenerateOtp generates a random six digit verification code. Codes are
// drawn uniformly from [100000, 999999] so they never carry a leading zero.
func GenerateOtp() (string, error) {
	val, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", errors.WithMessage(err, "Error generating otp")
	}
	return fmt.Sprintf("%d", val.Int64()+100000), nil
}

// GenerateCodeHash returns the at-rest form of a verification code. Only
// this hash is ever persisted; binding the email prevents a code issued for
// one address from verifying another.
func GenerateCodeHash(email, code string) string {
	return fmt.Sprintf("%x", sha256.Sum256([]byte(email+code)))
}

// SecureEquals compares two strings in constant time.
func SecureEquals(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
