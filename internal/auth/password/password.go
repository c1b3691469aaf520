package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	argonTime    uint32 = 1
	argonMemory  uint32 = 64 * 1024
	argonThreads uint8  = 4
	argonKeyLen  uint32 = 32
	argonSaltLen        = 16

	MinLength = 8
)

var ErrTooShort = errors.New("password too short")

type params struct {
	memory  uint32
	time    uint32
	threads uint8
	salt    []byte
	hash    []byte
}

// Validate enforces the minimum password policy.
func Validate(password string) error {
	if len(strings.TrimSpace(password)) < MinLength {
		return ErrTooShort
	}
	return nil
}

// Hash returns an encoded Argon2id hash of password.
func Hash(password string) (string, error) {
	salt := make([]byte, argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	hash := argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, argonKeyLen)

	saltB64 := base64.RawStdEncoding.EncodeToString(salt)
	hashB64 := base64.RawStdEncoding.EncodeToString(hash)
	return fmt.Sprintf("$argon2id$v=19$m=%d,t=%d,p=%d$%s$%s", argonMemory, argonTime, argonThreads, saltB64, hashB64), nil
}

// Verify checks whether password matches the encoded Argon2id hash.
func Verify(password, encoded string) bool {
	p, ok := decode(encoded)
	if !ok {
		return false
	}
	check := argon2.IDKey([]byte(password), p.salt, p.time, p.memory, p.threads, uint32(len(p.hash)))
	return subtle.ConstantTimeCompare(p.hash, check) == 1
}

// NeedsRehash reports whether encoded was produced with different cost
// parameters than the current ones.
func NeedsRehash(encoded string) bool {
	p, ok := decode(encoded)
	if !ok {
		return true
	}
	return p.memory != argonMemory || p.time != argonTime || p.threads != argonThreads
}

func decode(encoded string) (params, bool) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" || parts[2] != "v=19" {
		return params{}, false
	}

	fields := strings.Split(parts[3], ",")
	if len(fields) != 3 {
		return params{}, false
	}
	memory, ok := parseParam(fields[0], "m=", 32)
	if !ok {
		return params{}, false
	}
	timeCost, ok := parseParam(fields[1], "t=", 32)
	if !ok {
		return params{}, false
	}
	threads, ok := parseParam(fields[2], "p=", 8)
	if !ok {
		return params{}, false
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return params{}, false
	}
	hash, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(hash) == 0 {
		return params{}, false
	}

	return params{
		memory:  uint32(memory),
		time:    uint32(timeCost),
		threads: uint8(threads),
		salt:    salt,
		hash:    hash,
	}, true
}

func parseParam(field, prefix string, bits int) (uint64, bool) {
	raw, ok := strings.CutPrefix(field, prefix)
	if !ok {
		return 0, false
	}
	value, err := strconv.ParseUint(raw, 10, bits)
	if err != nil {
		return 0, false
	}
	return value, true
}
