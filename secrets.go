package identity

import (
	"crypto/rand"
	"fmt"
	"math/big"

	goerrors "github.com/goliatone/go-errors"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// RecoveryTokenLength is the size of generated recovery tokens.
var RecoveryTokenLength = 32

// GenerateVerificationCode returns a 6-digit numeric code. Codes are
// short-lived and single-use; collisions across accounts are acceptable
// because consumption matches on the exact outstanding code.
func GenerateVerificationCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate verification code")
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// GenerateRecoveryToken returns an opaque URL-safe token for the password
// recovery flow.
func GenerateRecoveryToken() (string, error) {
	token, err := gonanoid.New(RecoveryTokenLength)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate recovery token")
	}
	return token, nil
}
