package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	minMemoryKB    uint32 = 8 * 1024
	minTimeCost    uint32 = 1
	minParallelism uint8  = 1
	minSaltLength  uint32 = 16
	minKeyLength   uint32 = 16
	algorithmID           = "argon2id"

	// DefaultMaxPasswordBytes caps the input size when Config.MaxPasswordBytes is zero.
	DefaultMaxPasswordBytes = 1024
)

var (
	// ErrEmptyPassword is returned by Hash for an empty input.
	ErrEmptyPassword = errors.New("password must not be empty")
	// ErrPasswordTooLong is returned by Hash and Verify for inputs above MaxPasswordBytes.
	ErrPasswordTooLong = errors.New("password exceeds maximum length")
	// ErrMalformedHash wraps every failure to read a stored PHC string.
	ErrMalformedHash = errors.New("malformed password hash")
)

// Config holds the Argon2id cost parameters.
type Config struct {
	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
	// MaxPasswordBytes bounds the work an attacker can force per request.
	MaxPasswordBytes int
}

// Argon2 hashes and verifies passwords in PHC format. It is safe for concurrent use.
type Argon2 struct {
	config Config
}

// phc is one decoded "$argon2id$v=19$m=..,t=..,p=..$salt$key" string.
type phc struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	key         []byte
}

func (p phc) String() string {
	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithmID, argon2.Version,
		p.memory, p.time, p.parallelism,
		base64.StdEncoding.EncodeToString(p.salt),
		base64.StdEncoding.EncodeToString(p.key),
	)
}

func (p phc) derive(password string) []byte {
	return argon2.IDKey([]byte(password), p.salt, p.time, p.memory, p.parallelism, uint32(len(p.key)))
}

// NewArgon2 validates cfg and returns a hasher.
func NewArgon2(cfg Config) (*Argon2, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	if cfg.MaxPasswordBytes == 0 {
		cfg.MaxPasswordBytes = DefaultMaxPasswordBytes
	}
	return &Argon2{config: cfg}, nil
}

// Hash derives a fresh salted hash of password. Password bytes are used as given, with no
// Unicode normalization. Length policy beyond the byte cap belongs to the caller.
func (a *Argon2) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	if len(password) > a.config.MaxPasswordBytes {
		return "", ErrPasswordTooLong
	}

	p := phc{
		memory:      a.config.Memory,
		time:        a.config.Time,
		parallelism: a.config.Parallelism,
		salt:        make([]byte, a.config.SaltLength),
		key:         make([]byte, a.config.KeyLength),
	}
	if _, err := io.ReadFull(rand.Reader, p.salt); err != nil {
		return "", err
	}
	p.key = p.derive(password)
	return p.String(), nil
}

// Verify reports whether password matches encodedHash, using the parameters stored in the
// hash rather than the hasher's own.
func (a *Argon2) Verify(password string, encodedHash string) (bool, error) {
	if len(password) > a.config.MaxPasswordBytes {
		return false, ErrPasswordTooLong
	}

	p, err := parsePHC(encodedHash)
	if err != nil {
		return false, err
	}
	return subtle.ConstantTimeCompare(p.derive(password), p.key) == 1, nil
}

// NeedsUpgrade reports whether encodedHash was produced with weaker parameters than the
// hasher's current configuration. Login rehashes such passwords while it holds the plaintext.
func (a *Argon2) NeedsUpgrade(encodedHash string) (bool, error) {
	p, err := parsePHC(encodedHash)
	if err != nil {
		return false, err
	}

	weaker := a.config.Memory > p.memory ||
		a.config.Time > p.time ||
		a.config.Parallelism > p.parallelism ||
		a.config.SaltLength > uint32(len(p.salt)) ||
		a.config.KeyLength != uint32(len(p.key))
	return weaker, nil
}

func parsePHC(encoded string) (phc, error) {
	fields := strings.Split(encoded, "$")
	if len(fields) != 6 || fields[0] != "" {
		return phc{}, malformed("expected 5 fields")
	}
	if fields[1] != algorithmID {
		return phc{}, malformed("unsupported algorithm %q", fields[1])
	}

	version, ok := strings.CutPrefix(fields[2], "v=")
	if !ok {
		return phc{}, malformed("missing version")
	}
	if v, err := strconv.Atoi(version); err != nil || v != argon2.Version {
		return phc{}, malformed("unsupported version %q", version)
	}

	var p phc
	if err := p.parseParams(fields[3]); err != nil {
		return phc{}, err
	}

	var err error
	if p.salt, err = base64.StdEncoding.DecodeString(fields[4]); err != nil || len(p.salt) < int(minSaltLength) {
		return phc{}, malformed("invalid salt")
	}
	if p.key, err = base64.StdEncoding.DecodeString(fields[5]); err != nil || len(p.key) == 0 {
		return phc{}, malformed("invalid key")
	}
	return p, nil
}

// parseParams reads "m=..,t=..,p=..". Each parameter must appear exactly once.
func (p *phc) parseParams(field string) error {
	pairs := strings.Split(field, ",")
	if len(pairs) != 3 {
		return malformed("expected m, t and p parameters")
	}

	seen := map[string]bool{}
	for _, pair := range pairs {
		name, raw, ok := strings.Cut(pair, "=")
		if !ok || seen[name] {
			return malformed("bad parameter %q", pair)
		}
		seen[name] = true

		switch name {
		case "m":
			v, err := strconv.ParseUint(raw, 10, 32)
			if err != nil || uint32(v) < minMemoryKB {
				return malformed("invalid memory %q", raw)
			}
			p.memory = uint32(v)
		case "t":
			v, err := strconv.ParseUint(raw, 10, 32)
			if err != nil || uint32(v) < minTimeCost {
				return malformed("invalid time %q", raw)
			}
			p.time = uint32(v)
		case "p":
			v, err := strconv.ParseUint(raw, 10, 8)
			if err != nil || uint8(v) < minParallelism {
				return malformed("invalid parallelism %q", raw)
			}
			p.parallelism = uint8(v)
		default:
			return malformed("unsupported parameter %q", name)
		}
	}
	return nil
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedHash, fmt.Sprintf(format, args...))
}

func validateConfig(cfg Config) error {
	switch {
	case cfg.Memory < minMemoryKB:
		return fmt.Errorf("password memory must be >= %d KB", minMemoryKB)
	case cfg.Time < minTimeCost:
		return fmt.Errorf("password time must be >= %d", minTimeCost)
	case cfg.Parallelism < minParallelism:
		return fmt.Errorf("password parallelism must be >= %d", minParallelism)
	case cfg.SaltLength < minSaltLength:
		return fmt.Errorf("password salt length must be >= %d", minSaltLength)
	case cfg.KeyLength < minKeyLength:
		return fmt.Errorf("password key length must be >= %d", minKeyLength)
	case cfg.MaxPasswordBytes < 0:
		return errors.New("password max bytes must be >= 0")
	}
	return nil
}
