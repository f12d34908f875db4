package credguard

import (
	"errors"
	"time"
)

// Config is the full engine configuration. Start from [DefaultConfig] or
// [LoadConfigFile] and override fields; Build validates the result.
type Config struct {
	// KeyPrefix namespaces every Redis key.
	KeyPrefix     string              `yaml:"key_prefix"`
	Redis         RedisConfig         `yaml:"redis"`
	Throttle      ThrottleConfig      `yaml:"throttle"`
	Refresh       RefreshConfig       `yaml:"refresh"`
	Access        AccessConfig        `yaml:"access"`
	Blacklist     BlacklistConfig     `yaml:"blacklist"`
	PasswordReset PasswordResetConfig `yaml:"password_reset"`
	EmailChange   EmailChangeConfig   `yaml:"email_change"`
	Mail          MailConfig          `yaml:"mail"`
	Password      PasswordConfig      `yaml:"password"`
	Audit         AuditConfig         `yaml:"audit"`
	Metrics       MetricsConfig       `yaml:"metrics"`
	Sweep         SweepConfig         `yaml:"sweep"`
}

/*
====================================
REDIS CONFIG
====================================
*/

// RedisConfig describes the connection the daemon opens. Library users hand
// a ready client to [Builder.WithRedis]; only OperationTimeout applies then.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	// OperationTimeout bounds every single store call. A timeout follows
	// the call site's failure policy.
	OperationTimeout time.Duration `yaml:"operation_timeout"`
}

/*
====================================
THROTTLE CONFIG
====================================
*/

// ThrottleConfig controls login throttling. Lockout for the n-th failure at
// or past MaxAttempts is BaseLockout * min(n-MaxAttempts+1, CapMultiplier).
type ThrottleConfig struct {
	Enabled       bool          `yaml:"enabled"`
	MaxAttempts   int           `yaml:"max_attempts"`
	AttemptWindow time.Duration `yaml:"attempt_window"`
	BaseLockout   time.Duration `yaml:"base_lockout"`
	CapMultiplier int           `yaml:"cap_multiplier"`
}

/*
====================================
TOKEN CONFIG
====================================
*/

// RefreshConfig controls refresh tokens. Revoked records are kept for
// RetentionGrace past expiry so reuse stays detectable.
type RefreshConfig struct {
	TTL            time.Duration `yaml:"ttl"`
	RetentionGrace time.Duration `yaml:"retention_grace"`
}

// AccessConfig controls access JWTs. PrivateKey is the HMAC secret for
// "hs256" or an Ed25519 key (raw or PEM) for "ed25519".
type AccessConfig struct {
	TTL           time.Duration `yaml:"ttl"`
	SigningMethod string        `yaml:"signing_method"`
	PrivateKey    string        `yaml:"private_key"`
	PublicKey     string        `yaml:"public_key"`
	KeyID         string        `yaml:"key_id"`
	Issuer        string        `yaml:"issuer"`
	Audience      string        `yaml:"audience"`
	Leeway        time.Duration `yaml:"leeway"`
}

// BlacklistConfig controls access-token revocation.
type BlacklistConfig struct {
	// LocalFallback keeps recently written entries in process so they
	// survive a short store outage.
	LocalFallback   bool `yaml:"local_fallback"`
	LocalMaxEntries int  `yaml:"local_max_entries"`
	// NegativeCacheTTL > 0 lets a recent "not revoked" answer stand in for
	// the store during an outage. Enabling it weakens the fail-closed
	// guarantee: a token revoked on another instance inside that window is
	// still accepted here while Redis is down. Zero keeps the strict
	// fail-closed policy.
	NegativeCacheTTL time.Duration `yaml:"negative_cache_ttl"`
}

// PasswordResetConfig controls reset tokens.
type PasswordResetConfig struct {
	TokenTTL         time.Duration `yaml:"token_ttl"`
	RequestsPerHour  int           `yaml:"requests_per_hour"`
	MaxTokensPerHour int           `yaml:"max_tokens_per_hour"`
	SweepGrace       time.Duration `yaml:"sweep_grace"`
}

// EmailChangeConfig controls email-change tokens. RequestsPerHour is
// counted per account.
type EmailChangeConfig struct {
	TokenTTL         time.Duration `yaml:"token_ttl"`
	RequestsPerHour  int           `yaml:"requests_per_hour"`
	MaxTokensPerHour int           `yaml:"max_tokens_per_hour"`
	SweepGrace       time.Duration `yaml:"sweep_grace"`
}

/*
====================================
DELIVERY CONFIG
====================================
*/

// MailConfig controls outbound email. Without a Mailer nothing is sent.
type MailConfig struct {
	BufferSize  int           `yaml:"buffer_size"`
	Workers     int           `yaml:"workers"`
	DropIfFull  bool          `yaml:"drop_if_full"`
	SendTimeout time.Duration `yaml:"send_timeout"`
	// MaxPerHour caps messages per recipient; zero means unlimited.
	MaxPerHour  int    `yaml:"max_per_hour"`
	ProductName string `yaml:"product_name"`
	// LinkBaseURL, when set, turns tokens into links: LinkBaseURL + token.
	LinkBaseURL string `yaml:"link_base_url"`
}

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool `yaml:"enabled"`
	BufferSize int  `yaml:"buffer_size"`
	Workers    int  `yaml:"workers"`
	DropIfFull bool `yaml:"drop_if_full"`
}

// MetricsConfig controls in-process counters.
type MetricsConfig struct {
	Enabled                 bool `yaml:"enabled"`
	EnableLatencyHistograms bool `yaml:"enable_latency_histograms"`
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig holds Argon2id parameters. Memory is in KiB. Concurrency
// caps simultaneous hash/verify calls; zero means GOMAXPROCS.
type PasswordConfig struct {
	Memory         uint32 `yaml:"memory"`
	Time           uint32 `yaml:"time"`
	Parallelism    uint8  `yaml:"parallelism"`
	SaltLength     uint32 `yaml:"salt_length"`
	KeyLength      uint32 `yaml:"key_length"`
	Concurrency    int    `yaml:"concurrency"`
	UpgradeOnLogin bool   `yaml:"upgrade_on_login"`
}

// SweepConfig controls the background housekeeping loop. Engine.Sweep works
// regardless of Enabled.
type SweepConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout"`
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the production defaults. Access.PrivateKey is left
// empty and must be supplied.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		KeyPrefix: "cg:",
		Redis: RedisConfig{
			Addr:             "localhost:6379",
			OperationTimeout: 500 * time.Millisecond,
		},
		Throttle: ThrottleConfig{
			Enabled:       true,
			MaxAttempts:   5,
			AttemptWindow: 15 * time.Minute,
			BaseLockout:   5 * time.Minute,
			CapMultiplier: 6,
		},
		Refresh: RefreshConfig{
			TTL:            7 * 24 * time.Hour,
			RetentionGrace: 24 * time.Hour,
		},
		Access: AccessConfig{
			TTL:           15 * time.Minute,
			SigningMethod: "hs256",
			Issuer:        "credguard",
			Leeway:        5 * time.Second,
		},
		Blacklist: BlacklistConfig{
			LocalFallback:   true,
			LocalMaxEntries: 10000,
		},
		PasswordReset: PasswordResetConfig{
			TokenTTL:         time.Hour,
			RequestsPerHour:  5,
			MaxTokensPerHour: 3,
			SweepGrace:       24 * time.Hour,
		},
		EmailChange: EmailChangeConfig{
			TokenTTL:         time.Hour,
			RequestsPerHour:  5,
			MaxTokensPerHour: 3,
			SweepGrace:       24 * time.Hour,
		},
		Mail: MailConfig{
			BufferSize:  256,
			Workers:     2,
			DropIfFull:  true,
			SendTimeout: 10 * time.Second,
			MaxPerHour:  10,
			ProductName: "credguard",
		},
		Password: PasswordConfig{
			Memory:         65536,
			Time:           3,
			Parallelism:    2,
			SaltLength:     16,
			KeyLength:      32,
			UpgradeOnLogin: true,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			Workers:    1,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: false,
		},
		Sweep: SweepConfig{
			Enabled:  false,
			Interval: time.Hour,
			Timeout:  time.Minute,
		},
	}
}

func cloneConfig(cfg Config) Config {
	// Every field is a value type today; keep the copy point in one place.
	out := cfg
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first inconsistent setting.
func (c *Config) Validate() error {
	if c.KeyPrefix == "" {
		return errors.New("KeyPrefix must not be empty")
	}
	if c.Redis.OperationTimeout < 0 {
		return errors.New("Redis OperationTimeout must be >= 0")
	}

	// Throttle
	if c.Throttle.Enabled {
		if c.Throttle.MaxAttempts <= 0 {
			return errors.New("Throttle MaxAttempts must be > 0")
		}
		if c.Throttle.AttemptWindow <= 0 {
			return errors.New("Throttle AttemptWindow must be > 0")
		}
		if c.Throttle.BaseLockout <= 0 {
			return errors.New("Throttle BaseLockout must be > 0")
		}
		if c.Throttle.CapMultiplier < 1 {
			return errors.New("Throttle CapMultiplier must be >= 1")
		}
	}

	// Tokens
	if c.Refresh.TTL <= 0 {
		return errors.New("Refresh TTL must be > 0")
	}
	if c.Refresh.RetentionGrace < 0 {
		return errors.New("Refresh RetentionGrace must be >= 0")
	}
	if c.Access.TTL <= 0 {
		return errors.New("Access TTL must be > 0")
	}
	if c.Access.TTL >= c.Refresh.TTL {
		return errors.New("Access TTL must be shorter than Refresh TTL")
	}
	if c.Access.Leeway < 0 || c.Access.Leeway > 2*time.Minute {
		return errors.New("Access Leeway must be between 0 and 2m")
	}
	switch c.Access.SigningMethod {
	case "hs256":
		if len(c.Access.PrivateKey) < 32 {
			return errors.New("hs256 requires a PrivateKey of at least 32 bytes")
		}
	case "ed25519":
		if c.Access.PublicKey == "" {
			return errors.New("ed25519 requires PublicKey")
		}
		if c.Access.PrivateKey == "" {
			return errors.New("ed25519 requires PrivateKey")
		}
	default:
		return errors.New("unsupported Access SigningMethod")
	}

	// Blacklist
	if c.Blacklist.LocalMaxEntries < 0 {
		return errors.New("Blacklist LocalMaxEntries must be >= 0")
	}
	if c.Blacklist.NegativeCacheTTL < 0 {
		return errors.New("Blacklist NegativeCacheTTL must be >= 0")
	}
	if c.Blacklist.NegativeCacheTTL > 0 && !c.Blacklist.LocalFallback {
		return errors.New("Blacklist NegativeCacheTTL requires LocalFallback")
	}

	// One-time tokens
	if c.PasswordReset.TokenTTL <= 0 {
		return errors.New("PasswordReset TokenTTL must be > 0")
	}
	if c.PasswordReset.MaxTokensPerHour <= 0 {
		return errors.New("PasswordReset MaxTokensPerHour must be > 0")
	}
	if c.PasswordReset.RequestsPerHour < 0 || c.PasswordReset.SweepGrace < 0 {
		return errors.New("PasswordReset RequestsPerHour and SweepGrace must be >= 0")
	}
	if c.EmailChange.TokenTTL <= 0 {
		return errors.New("EmailChange TokenTTL must be > 0")
	}
	if c.EmailChange.MaxTokensPerHour <= 0 {
		return errors.New("EmailChange MaxTokensPerHour must be > 0")
	}
	if c.EmailChange.RequestsPerHour < 0 || c.EmailChange.SweepGrace < 0 {
		return errors.New("EmailChange RequestsPerHour and SweepGrace must be >= 0")
	}

	// Delivery
	if c.Mail.BufferSize <= 0 || c.Mail.Workers <= 0 {
		return errors.New("Mail BufferSize and Workers must be > 0")
	}
	if c.Mail.SendTimeout < 0 || c.Mail.MaxPerHour < 0 {
		return errors.New("Mail SendTimeout and MaxPerHour must be >= 0")
	}
	if c.Audit.Enabled && (c.Audit.BufferSize <= 0 || c.Audit.Workers <= 0) {
		return errors.New("Audit BufferSize and Workers must be > 0")
	}

	// Password
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}
	if c.Password.Concurrency < 0 {
		return errors.New("Password Concurrency must be >= 0")
	}

	// Sweep
	if c.Sweep.Enabled && c.Sweep.Interval <= 0 {
		return errors.New("Sweep Interval must be > 0 when enabled")
	}
	if c.Sweep.Timeout < 0 {
		return errors.New("Sweep Timeout must be >= 0")
	}

	return nil
}
