package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	timeCost    uint32 = 3
	memoryCost  uint32 = 64 * 1024
	parallelism uint8  = 2
	keyLength   uint32 = 32
	saltLength         = 16
)

var errInvalidHash = errors.New("invalid password hash")

type params struct {
	version  int
	memory   uint32
	time     uint32
	threads  uint8
	salt     []byte
	checksum []byte
}

// Hash returns an argon2id hash string including parameters and salt.
func Hash(password string) (string, error) {
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	sum := argon2.IDKey([]byte(password), salt, timeCost, memoryCost, parallelism, keyLength)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		memoryCost,
		timeCost,
		parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(sum),
	), nil
}

// Verify checks a password against the encoded argon2id hash.
func Verify(password, hash string) (bool, error) {
	p, err := decode(hash)
	if err != nil {
		return false, err
	}

	actual := argon2.IDKey([]byte(password), p.salt, p.time, p.memory, p.threads, uint32(len(p.checksum)))
	return subtle.ConstantTimeCompare(actual, p.checksum) == 1, nil
}

func decode(hash string) (params, error) {
	parts := strings.Split(hash, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return params{}, errInvalidHash
	}

	var p params
	if _, err := fmt.Sscanf(parts[2], "v=%d", &p.version); err != nil {
		return params{}, errInvalidHash
	}
	if p.version != argon2.Version {
		return params{}, errInvalidHash
	}

	var threads uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.memory, &p.time, &threads); err != nil {
		return params{}, errInvalidHash
	}
	if threads == 0 || threads > 255 {
		return params{}, errInvalidHash
	}
	p.threads = uint8(threads)

	var err error
	if p.salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil {
		return params{}, errInvalidHash
	}
	if p.checksum, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil {
		return params{}, errInvalidHash
	}
	return p, nil
}
