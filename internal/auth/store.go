// Package auth implements the caster credential store: a name→password-hash
// map with trust-on-first-use registration and constant-time verification.
// There is no session concept and no timing or enumeration oracle — a failed
// login looks identical to the caller whether the name was unknown, the
// password was wrong, or anything else went sideways.
package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"sync"

	"golang.org/x/crypto/argon2"
)

const (
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
	argonKeyLen  = 32
	saltLen      = 16
)

// record is the stored credential for one caster name.
type record struct {
	salt []byte
	hash []byte
}

// Store holds registered caster credentials. The zero value is not usable;
// use New. Store is safe for concurrent use: the relay core's hash workers
// call Login from their own goroutines, and the mutex serializes them.
type Store struct {
	mu      sync.Mutex
	records map[string]record
}

// New returns an empty credential store.
func New() *Store {
	return &Store{records: make(map[string]record)}
}

// Login checks name/password against the store. If name has never been seen,
// it is registered with this password and Login succeeds. If name is known,
// password must match the stored hash, compared in constant time. The only
// failure signal is a non-nil error; no detail about which check failed is
// ever exposed.
func (s *Store) Login(name, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.records[name]
	if !ok {
		salt := make([]byte, saltLen)
		if _, err := rand.Read(salt); err != nil {
			return errAuth
		}
		s.records[name] = record{
			salt: salt,
			hash: deriveHash(password, salt),
		}
		return nil
	}

	candidate := deriveHash(password, existing.salt)
	if constantTimeEqual(existing.hash, candidate) {
		return nil
	}
	return errAuth
}

func deriveHash(password string, salt []byte) []byte {
	return argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
}

// constantTimeEqual reports whether a and b hold identical bytes, performing
// the same number of byte comparisons regardless of where (or whether) they
// first differ, and regardless of length mismatch.
func constantTimeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		// Still do a fixed-cost comparison so a length mismatch isn't a
		// faster-failing timing signal than a full comparison would be.
		subtle.ConstantTimeCompare(a, a)
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}

type authError string

func (e authError) Error() string { return string(e) }

// errAuth is the single error value Login ever returns; callers must not
// branch on its contents, only on nil vs non-nil.
const errAuth authError = "invalid"
