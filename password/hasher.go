package password

// Hasher produces Argon2id hashes and verifies both Argon2id and legacy
// bcrypt hashes. Every bcrypt hash reports NeedsUpgrade so callers migrate it
// on the next successful login.
type Hasher struct {
	argon *Argon2
}

// NewHasher builds a Hasher around an Argon2 configuration.
func NewHasher(cfg Config) (*Hasher, error) {
	argon, err := NewArgon2(cfg)
	if err != nil {
		return nil, err
	}
	return &Hasher{argon: argon}, nil
}

// Hash always produces Argon2id.
func (h *Hasher) Hash(password string) (string, error) {
	return h.argon.Hash(password)
}

// Verify dispatches on the hash prefix.
func (h *Hasher) Verify(password, encodedHash string) (bool, error) {
	if IsBcrypt(encodedHash) {
		return VerifyBcrypt(password, encodedHash)
	}
	return h.argon.Verify(password, encodedHash)
}

// NeedsUpgrade is true for bcrypt hashes and for Argon2id hashes made with
// weaker parameters.
func (h *Hasher) NeedsUpgrade(encodedHash string) (bool, error) {
	if IsBcrypt(encodedHash) {
		return true, nil
	}
	return h.argon.NeedsUpgrade(encodedHash)
}
