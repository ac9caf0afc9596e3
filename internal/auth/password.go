package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters used for new hashes.
const (
	argonTime    = 3
	argonMemory  = 64 * 1024 // KiB
	argonThreads = 1
	argonKeyLen  = 32
	argonSaltLen = 16
)

// Limits on parameters read from a stored hash. Operator hashes come from
// the config file, and a hash asking for gigabytes would stall every login.
const (
	maxArgonMemory = 256 * 1024 // KiB
	maxArgonTime   = 10
)

// MinPasswordLength is the shortest password HashPassword accepts.
const MinPasswordLength = 8

// HashPassword hashes password with Argon2id and returns a PHC string:
//
//	$argon2id$v=19$m=65536,t=3,p=1$<salt>$<hash>
//
// Passwords shorter than MinPasswordLength characters are refused with
// ErrWeakPassword.
func HashPassword(password string) (string, error) {
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return "", fmt.Errorf("%w: at least %d characters", ErrWeakPassword, MinPasswordLength)
	}

	salt := make([]byte, argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}
	p := argonParams{time: argonTime, memory: argonMemory, threads: argonThreads}
	return p.encode(salt, p.key(password, salt, argonKeyLen)), nil
}

// VerifyPassword reports whether password matches the PHC hash. A
// malformed hash returns an error wrapping ErrInvalidHash.
func VerifyPassword(password, encodedHash string) (bool, error) {
	p, salt, hash, err := decodePHC(encodedHash)
	if err != nil {
		return false, err
	}
	candidate := p.key(password, salt, uint32(len(hash))) //nolint:gosec // G115: decoded hash is short
	return subtle.ConstantTimeCompare(hash, candidate) == 1, nil
}

// NeedsRehash reports whether encodedHash was made with parameters other
// than the current ones. Malformed hashes need rehashing too.
func NeedsRehash(encodedHash string) bool {
	p, _, hash, err := decodePHC(encodedHash)
	if err != nil {
		return true
	}
	return p != argonParams{time: argonTime, memory: argonMemory, threads: argonThreads} || len(hash) != argonKeyLen
}

type argonParams struct {
	time    uint32
	memory  uint32
	threads uint8
}

func (p argonParams) key(password string, salt []byte, keyLen uint32) []byte {
	return argon2.IDKey([]byte(password), salt, p.time, p.memory, p.threads, keyLen)
}

func (p argonParams) encode(salt, hash []byte) string {
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, p.memory, p.time, p.threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	)
}

// decodePHC splits $argon2id$v=..$m=..,t=..,p=..$salt$hash.
func decodePHC(encoded string) (p argonParams, salt, hash []byte, err error) {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrInvalidHash, fmt.Sprintf(format, args...))
	}

	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" { //nolint:mnd // PHC has six $-separated fields
		return p, nil, nil, invalid("not a PHC string")
	}
	if parts[1] != "argon2id" {
		return p, nil, nil, invalid("unsupported algorithm %q", parts[1])
	}

	var version int
	if _, scanErr := fmt.Sscanf(parts[2], "v=%d", &version); scanErr != nil {
		return p, nil, nil, invalid("version: %v", scanErr)
	}
	if version != argon2.Version {
		return p, nil, nil, invalid("version %d", version)
	}
	if _, scanErr := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.memory, &p.time, &p.threads); scanErr != nil {
		return p, nil, nil, invalid("parameters: %v", scanErr)
	}
	if p.memory == 0 || p.memory > maxArgonMemory || p.time == 0 || p.time > maxArgonTime || p.threads == 0 {
		return p, nil, nil, invalid("parameters out of range: %s", parts[3])
	}

	if salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil {
		return p, nil, nil, invalid("salt: %v", err)
	}
	if hash, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil {
		return p, nil, nil, invalid("hash: %v", err)
	}
	if len(hash) == 0 {
		return p, nil, nil, invalid("empty hash")
	}
	return p, salt, hash, nil
}
