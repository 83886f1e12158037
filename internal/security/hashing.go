package security

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"io"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Minimum argon2id parameters accepted for password hashing.
const (
	MinArgonTime        uint32 = 3
	MinArgonMemoryKiB   uint32 = 64 * 1024
	MinArgonParallelism uint8  = 4

	argonKeyLen  uint32 = 32
	argonSaltLen        = 16
)

// ErrWeakHashParams is returned when hasher parameters fall below the minimums.
var ErrWeakHashParams = errors.New("security: argon2 parameters below minimum")

// HashParams are the argon2id cost parameters.
type HashParams struct {
	Time        uint32
	MemoryKiB   uint32
	Parallelism uint8
}

// DefaultHashParams returns the minimum accepted argon2id parameters.
func DefaultHashParams() HashParams {
	return HashParams{Time: MinArgonTime, MemoryKiB: MinArgonMemoryKiB, Parallelism: MinArgonParallelism}
}

// Hasher hashes and verifies passwords using argon2id. Callers must not log or
// persist plaintext passwords. Safe for concurrent use.
type Hasher struct {
	params HashParams
}

// NewHasher returns a Hasher for params, refusing parameters weaker than the minimums.
func NewHasher(params HashParams) (*Hasher, error) {
	if params.Time < MinArgonTime || params.MemoryKiB < MinArgonMemoryKiB || params.Parallelism < MinArgonParallelism {
		return nil, ErrWeakHashParams
	}
	return &Hasher{params: params}, nil
}

// Hash derives a key from password with a fresh random salt and returns the
// stored form hex(salt):hex(key).
func (h *Hasher) Hash(password string) (string, error) {
	salt := make([]byte, argonSaltLen)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}
	key := h.derive(password, salt)
	return hex.EncodeToString(salt) + ":" + hex.EncodeToString(key), nil
}

// Verify reports whether password matches stored. Malformed stored values
// never match.
func (h *Hasher) Verify(password, stored string) bool {
	saltHex, keyHex, ok := strings.Cut(stored, ":")
	if !ok || saltHex == "" || keyHex == "" {
		return false
	}
	salt, err := hex.DecodeString(saltHex)
	if err != nil {
		return false
	}
	want, err := hex.DecodeString(keyHex)
	if err != nil || len(want) != int(argonKeyLen) {
		return false
	}
	return subtle.ConstantTimeCompare(h.derive(password, salt), want) == 1
}

func (h *Hasher) derive(password string, salt []byte) []byte {
	return argon2.IDKey([]byte(password), salt, h.params.Time, h.params.MemoryKiB, h.params.Parallelism, argonKeyLen)
}
