// Package security provides password hashing and bearer token signing.
package security

import (
	"errors"
	"fmt"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// HashCost is the bcrypt work factor. It is fixed process-wide.
const HashCost = bcrypt.DefaultCost

var (
	// ErrEmptyPassword is returned by Hash for an empty password.
	ErrEmptyPassword = errors.New("password cannot be empty")
	// ErrPasswordTooLong is returned by Hash when the password is longer
	// than the 72 bytes bcrypt reads.
	ErrPasswordTooLong = errors.New("password exceeds 72 bytes")
)

// dummyDigest is compared against when the email is unknown so both login
// failure paths cost one bcrypt run at HashCost.
var dummyDigest = sync.OnceValue(func() []byte {
	digest, err := bcrypt.GenerateFromPassword([]byte("taskhub-timing-equalizer"), HashCost)
	if err != nil {
		panic(fmt.Sprintf("bcrypt dummy digest: %v", err))
	}
	return digest
})

// PasswordHasher hashes and verifies credentials.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, digest string) bool
	// VerifyDummy burns the same time as Verify without matching anything.
	VerifyDummy(password string)
}

// BcryptHasher implements PasswordHasher with bcrypt at HashCost.
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher returns a hasher using HashCost.
func NewBcryptHasher() *BcryptHasher {
	return &BcryptHasher{cost: HashCost}
}

// Hash returns a salted digest. Every call uses a fresh salt.
func (h *BcryptHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	if len(password) > 72 {
		return "", ErrPasswordTooLong
	}
	digest, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(digest), nil
}

// Verify reports whether password matches digest. Malformed digests return false.
func (h *BcryptHasher) Verify(password, digest string) bool {
	if digest == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(password)) == nil
}

// VerifyDummy runs one bcrypt comparison against a fixed digest and
// discards the result. Callers use it for unknown emails so the
// response time matches a real password check.
func (h *BcryptHasher) VerifyDummy(password string) {
	_ = bcrypt.CompareHashAndPassword(dummyDigest(), []byte(password))
}
