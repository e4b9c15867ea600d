// Package session binds the two phases of a profanity review together
// without server-side state. After a scan the client receives a token that
// signs the fingerprint of the scanned content and its findings; the clean
// request must present the same content, findings and a valid token.
package session

import (
	"crypto/ecdsa"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/blake2b"

	"github.com/gonkalabs/subkit/internal/profanity"
)

var (
	ErrInvalidToken        = errors.New("session: invalid token")
	ErrExpiredToken        = errors.New("session: token expired")
	ErrFingerprintMismatch = errors.New("session: content does not match token")
)

// Fingerprint is the hex BLAKE2b-256 digest of the canonical JSON encoding
// of content and findings.
func Fingerprint(c profanity.Content, findings []profanity.Finding) (string, error) {
	if findings == nil {
		findings = []profanity.Finding{}
	}
	b, err := json.Marshal(struct {
		Content  profanity.Content   `json:"content"`
		Findings []profanity.Finding `json:"findings"`
	}{c, findings})
	if err != nil {
		return "", fmt.Errorf("session: fingerprint: %w", err)
	}
	sum := blake2b.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// Signer issues and checks tokens with a secp256k1 key.
type Signer struct {
	key *ecdsa.PrivateKey
	pub []byte
	ttl time.Duration
	now func() time.Time
}

// New creates a Signer from a hex-encoded private key (0x prefix optional).
// A zero ttl means tokens never expire.
func New(hexKey string, ttl time.Duration) (*Signer, error) {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	raw, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("session: invalid hex key: %w", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("session: key must be 32 bytes, got %d", len(raw))
	}
	key, err := crypto.ToECDSA(raw)
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}
	return newSigner(key, ttl), nil
}

// Generate creates a Signer with a fresh random key. Tokens issued by it do
// not survive a restart.
func Generate(ttl time.Duration) (*Signer, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("session: generate key: %w", err)
	}
	return newSigner(key, ttl), nil
}

func newSigner(key *ecdsa.PrivateKey, ttl time.Duration) *Signer {
	return &Signer{
		key: key,
		pub: crypto.FromECDSAPub(&key.PublicKey),
		ttl: ttl,
		now: time.Now,
	}
}

// Issue returns "<fingerprint>.<unix seconds>.<signature>". The signature is
// r||s over Keccak-256 of "<fingerprint>|<unix seconds>".
func (s *Signer) Issue(fingerprint string) (string, error) {
	issued := strconv.FormatInt(s.now().Unix(), 10)
	sig, err := crypto.Sign(digest(fingerprint, issued), s.key)
	if err != nil {
		return "", fmt.Errorf("session: sign: %w", err)
	}
	// Drop the recovery id; VerifySignature wants the 64-byte form.
	return fingerprint + "." + issued + "." + base64.RawURLEncoding.EncodeToString(sig[:64]), nil
}

// Verify checks the token signature, that it was issued for fingerprint,
// and that it has not expired.
func (s *Signer) Verify(token, fingerprint string) error {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return ErrInvalidToken
	}
	issuedUnix, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return ErrInvalidToken
	}
	sig, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil || len(sig) != 64 {
		return ErrInvalidToken
	}
	if !crypto.VerifySignature(s.pub, digest(parts[0], parts[1]), sig) {
		return ErrInvalidToken
	}
	if parts[0] != fingerprint {
		return ErrFingerprintMismatch
	}
	if s.ttl > 0 && s.now().Sub(time.Unix(issuedUnix, 0)) > s.ttl {
		return ErrExpiredToken
	}
	return nil
}

func digest(fingerprint, issued string) []byte {
	return crypto.Keccak256([]byte(fingerprint + "|" + issued))
}
