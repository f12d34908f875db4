package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Lower bounds enforced on configuration and on stored hashes alike.
const (
	minMemoryKB    uint32 = 8 * 1024
	minTimeCost    uint32 = 1
	minParallelism uint8  = 1
	minSaltLength  uint32 = 16
	minKeyLength   uint32 = 16
)

const phcPrefix = "$argon2id$"

// Config holds the Argon2id cost parameters. Memory is in KiB.
type Config struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultConfig returns the parameters used when none are configured:
// 64 MiB, three passes, two lanes.
func DefaultConfig() Config {
	return Config{
		Memory:      64 * 1024,
		Time:        3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

func (c Config) validate() error {
	switch {
	case c.Memory < minMemoryKB:
		return fmt.Errorf("password memory must be >= %d KB", minMemoryKB)
	case c.Time < minTimeCost:
		return errors.New("password time must be >= 1")
	case c.Parallelism < minParallelism:
		return errors.New("password parallelism must be >= 1")
	case c.SaltLength < minSaltLength:
		return fmt.Errorf("password salt length must be >= %d", minSaltLength)
	case c.KeyLength < minKeyLength:
		return fmt.Errorf("password key length must be >= %d", minKeyLength)
	}
	return nil
}

// Argon2 hashes passwords with Argon2id and encodes them as PHC strings:
//
//	$argon2id$v=19$m=65536,t=3,p=2$<salt>$<key>
//
// Salt and key are unpadded base64 as the PHC format prescribes. Padded
// values written by older releases still verify.
type Argon2 struct {
	config Config
}

// NewArgon2 validates cfg against the package minimums.
func NewArgon2(cfg Config) (*Argon2, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Argon2{config: cfg}, nil
}

var saltReader io.Reader = rand.Reader

// Hash derives a fresh salted Argon2id hash. Policy checks are the caller's
// job; only the empty password is refused here.
func (a *Argon2) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}

	salt := make([]byte, a.config.SaltLength)
	if _, err := io.ReadFull(saltReader, salt); err != nil {
		return "", fmt.Errorf("password: read salt: %w", err)
	}

	h := phcHash{
		memory:      a.config.Memory,
		time:        a.config.Time,
		parallelism: a.config.Parallelism,
		salt:        salt,
	}
	h.key = h.derive(password, a.config.KeyLength)
	return h.String(), nil
}

// Verify reports whether password matches encodedHash. A malformed hash is
// an error, a mismatch is (false, nil).
func (a *Argon2) Verify(password string, encodedHash string) (bool, error) {
	h, err := decodePHC(encodedHash)
	if err != nil {
		return false, err
	}
	candidate := h.derive(password, uint32(len(h.key)))
	return subtle.ConstantTimeCompare(candidate, h.key) == 1, nil
}

// NeedsUpgrade reports whether encodedHash falls short of the current
// configuration in any cost, salt or key dimension.
func (a *Argon2) NeedsUpgrade(encodedHash string) (bool, error) {
	h, err := decodePHC(encodedHash)
	if err != nil {
		return false, err
	}
	weaker := h.memory < a.config.Memory ||
		h.time < a.config.Time ||
		h.parallelism < a.config.Parallelism ||
		uint32(len(h.salt)) < a.config.SaltLength ||
		uint32(len(h.key)) != a.config.KeyLength
	return weaker, nil
}

// phcHash is one decoded Argon2id PHC string.
type phcHash struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	key         []byte
}

func (h phcHash) derive(password string, keyLen uint32) []byte {
	return argon2.IDKey([]byte(password), h.salt, h.time, h.memory, h.parallelism, keyLen)
}

func (h phcHash) String() string {
	enc := base64.RawStdEncoding
	return fmt.Sprintf("%sv=%d$m=%d,t=%d,p=%d$%s$%s",
		phcPrefix, argon2.Version, h.memory, h.time, h.parallelism,
		enc.EncodeToString(h.salt), enc.EncodeToString(h.key))
}

func malformed(reason string) error {
	return fmt.Errorf("%w: %s", ErrMalformedHash, reason)
}

func decodePHC(encoded string) (phcHash, error) {
	var h phcHash

	rest, ok := strings.CutPrefix(encoded, phcPrefix)
	if !ok {
		return h, malformed("not an argon2id PHC string")
	}
	fields := strings.Split(rest, "$")
	if len(fields) != 4 {
		return h, malformed("expected version, params, salt and key")
	}

	var version int
	if _, err := fmt.Sscanf(fields[0], "v=%d", &version); err != nil {
		return h, malformed("unreadable version")
	}
	if version != argon2.Version {
		return h, malformed(fmt.Sprintf("unsupported version %d", version))
	}

	var parallelism uint32
	n, err := fmt.Sscanf(fields[1], "m=%d,t=%d,p=%d", &h.memory, &h.time, &parallelism)
	if err != nil || n != 3 || fmt.Sprintf("m=%d,t=%d,p=%d", h.memory, h.time, parallelism) != fields[1] {
		return h, malformed("unreadable parameters")
	}
	if h.memory < minMemoryKB || h.time < minTimeCost || parallelism < uint32(minParallelism) || parallelism > 255 {
		return h, malformed("parameters out of range")
	}
	h.parallelism = uint8(parallelism)

	if h.salt, err = decodeB64(fields[2]); err != nil || uint32(len(h.salt)) < minSaltLength {
		return h, malformed("bad salt")
	}
	if h.key, err = decodeB64(fields[3]); err != nil || len(h.key) == 0 {
		return h, malformed("bad key")
	}
	return h, nil
}

// decodeB64 accepts both unpadded and padded standard base64.
func decodeB64(s string) ([]byte, error) {
	if strings.HasSuffix(s, "=") {
		return base64.StdEncoding.DecodeString(s)
	}
	return base64.RawStdEncoding.DecodeString(s)
}
