package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// AlgArgon2id tags credential rows with the hashing algorithm used.
const AlgArgon2id = "argon2id"

const (
	argonMemory      = 64 * 1024
	argonIterations  = 2
	argonParallelism = 1
	argonKeyLength   = 32
	argonSaltLength  = 16
)

// ErrMalformedHash indicates a stored digest that cannot be parsed. Unlike
// a mismatch, this is a genuine failure and propagates as an error.
var ErrMalformedHash = errors.New("auth: malformed password hash")

// HashSecret derives an Argon2id digest with a fresh random salt. The PHC
// string records algorithm and parameters, so parameter upgrades keep old
// hashes verifiable.
func HashSecret(secret string) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("%w: secret is empty", ErrInvalidInput)
	}
	salt := make([]byte, argonSaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	hash := argon2.IDKey([]byte(secret), salt, argonIterations, argonMemory, argonParallelism, argonKeyLength)

	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		argonMemory,
		argonIterations,
		argonParallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	), nil
}

// VerifySecret reports whether candidate matches the stored digest. The
// candidate is re-derived with the stored parameters and compared in
// constant time. A mismatch is (false, nil); only an unparseable stored
// hash returns an error.
func VerifySecret(stored, candidate string) (bool, error) {
	params, salt, hash, err := parseArgon2Hash(stored)
	if err != nil {
		return false, err
	}
	derived := argon2.IDKey([]byte(candidate), salt, params.iterations, params.memory, params.parallelism, uint32(len(hash)))
	return subtle.ConstantTimeCompare(derived, hash) == 1, nil
}

type argon2Params struct {
	memory      uint32
	iterations  uint32
	parallelism uint8
}

func parseArgon2Hash(encoded string) (argon2Params, []byte, []byte, error) {
	var p argon2Params
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return p, nil, nil, ErrMalformedHash
	}
	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return p, nil, nil, ErrMalformedHash
	}
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.memory, &p.iterations, &p.parallelism); err != nil {
		return p, nil, nil, ErrMalformedHash
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil || len(salt) == 0 {
		return p, nil, nil, ErrMalformedHash
	}
	hash, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(hash) == 0 {
		return p, nil, nil, ErrMalformedHash
	}
	return p, salt, hash, nil
}
