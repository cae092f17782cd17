// Package credential provides a slow, salted one-way hasher for opaque
// secrets that must never be stored in recoverable form. The token service
// uses it to persist refresh tokens as argon2id digests: a copy of the
// store does not yield usable raw tokens.
package credential

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"golang.org/x/crypto/argon2"
)

const (
	algorithmID = "argon2id"

	minMemoryKB   uint32 = 8 * 1024
	minTimeCost   uint32 = 1
	minSaltLength uint32 = 16
	minKeyLength  uint32 = 16
)

// Params configures the argon2id cost and output sizes.
type Params struct {
	Memory      uint32 // KiB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultParams are tuned for server-side hashing of high-entropy secrets
// such as signed refresh tokens. Raise Memory/Time for low-entropy inputs
// like user-chosen passwords.
func DefaultParams() Params {
	return Params{
		Memory:      64 * 1024,
		Time:        1,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

// Hasher hashes and verifies secrets using argon2id with a per-hash random
// salt. The encoded form is a PHC string carrying the parameters, so hashes
// produced under older parameters remain verifiable.
type Hasher struct {
	params Params
}

// NewHasher validates the parameters and returns a Hasher.
func NewHasher(params Params) (*Hasher, error) {
	if params.Memory < minMemoryKB {
		return nil, errors.Errorf("[NewHasher] memory must be >= %d KiB", minMemoryKB)
	}
	if params.Time < minTimeCost {
		return nil, errors.New("[NewHasher] time cost must be >= 1")
	}
	if params.Parallelism < 1 {
		return nil, errors.New("[NewHasher] parallelism must be >= 1")
	}
	if params.SaltLength < minSaltLength {
		return nil, errors.Errorf("[NewHasher] salt length must be >= %d", minSaltLength)
	}
	if params.KeyLength < minKeyLength {
		return nil, errors.Errorf("[NewHasher] key length must be >= %d", minKeyLength)
	}
	return &Hasher{params: params}, nil
}

// Hash derives an argon2id digest of secret under a fresh random salt and
// returns it in PHC format ($argon2id$v=..$m=..,t=..,p=..$salt$hash).
func (h *Hasher) Hash(secret string) (string, error) {
	salt := make([]byte, h.params.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", errors.Wrap(err, "[Hasher.Hash] rand.Read")
	}

	digest := argon2.IDKey([]byte(secret), salt, h.params.Time, h.params.Memory, h.params.Parallelism, h.params.KeyLength)

	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithmID,
		argon2.Version,
		h.params.Memory,
		h.params.Time,
		h.params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(digest),
	), nil
}

// Verify recomputes the digest of secret under the parameters and salt
// embedded in encoded and compares in constant time. It returns false with
// a nil error for a well-formed hash that does not match.
func (h *Hasher) Verify(secret, encoded string) (bool, error) {
	parsed, err := parsePHC(encoded)
	if err != nil {
		return false, err
	}

	computed := argon2.IDKey([]byte(secret), parsed.salt, parsed.time, parsed.memory, parsed.parallelism, uint32(len(parsed.hash)))
	return subtle.ConstantTimeCompare(computed, parsed.hash) == 1, nil
}

type parsedPHC struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	hash        []byte
}

func parsePHC(encoded string) (*parsedPHC, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" {
		return nil, errors.New("invalid PHC format")
	}
	if parts[1] != algorithmID {
		return nil, errors.New("unsupported algorithm")
	}

	version, err := strconv.Atoi(strings.TrimPrefix(parts[2], "v="))
	if err != nil || !strings.HasPrefix(parts[2], "v=") {
		return nil, errors.New("invalid argon2 version")
	}
	if version != argon2.Version {
		return nil, errors.New("unsupported argon2 version")
	}

	var p parsedPHC
	for _, pair := range strings.Split(parts[3], ",") {
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 {
			return nil, errors.New("invalid parameter entry")
		}
		switch kv[0] {
		case "m":
			v, err := strconv.ParseUint(kv[1], 10, 32)
			if err != nil {
				return nil, errors.New("invalid memory parameter")
			}
			p.memory = uint32(v)
		case "t":
			v, err := strconv.ParseUint(kv[1], 10, 32)
			if err != nil {
				return nil, errors.New("invalid time parameter")
			}
			p.time = uint32(v)
		case "p":
			v, err := strconv.ParseUint(kv[1], 10, 8)
			if err != nil {
				return nil, errors.New("invalid parallelism parameter")
			}
			p.parallelism = uint8(v)
		default:
			return nil, errors.New("unsupported parameter")
		}
	}
	if p.memory == 0 || p.time == 0 || p.parallelism == 0 {
		return nil, errors.New("missing parameters")
	}

	if p.salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil {
		return nil, errors.New("invalid salt encoding")
	}
	if p.hash, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil {
		return nil, errors.New("invalid hash encoding")
	}
	if len(p.hash) == 0 {
		return nil, errors.New("empty hash")
	}

	return &p, nil
}
