package bundler

import (
	"bytes"
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"

	"filippo.io/age"
	"github.com/btcsuite/btcutil/bech32"
)

const (
	// EnvSigningKey holds the age identity (AGE-SECRET-KEY-1...) release bundles are signed with.
	EnvSigningKey = "BPTOOLS_BUNDLE_KEY"
	// EnvVerifyKey holds the base64 Ed25519 key publishers verify bundles against.
	EnvVerifyKey = "BPTOOLS_BUNDLE_PUBLIC_KEY"

	// signingContext separates bundle signatures from anything else signed with the same key.
	signingContext = "bptools-bundle-v1"
)

// Signer signs web-asset bundle manifests with an Ed25519 key derived from an age identity.
// The signature covers the bundle name and release as well as the manifest body, so a
// manifest cannot be replayed under another name or release.
type Signer struct {
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey
	recipient  string
}

// NewSignerFromEnv reads BPTOOLS_BUNDLE_KEY and BPTOOLS_BUNDLE_PUBLIC_KEY.
func NewSignerFromEnv() (*Signer, error) {
	return NewSigner(os.Getenv(EnvSigningKey), os.Getenv(EnvVerifyKey))
}

// NewSigner builds a Signer from an age identity, a base64 public key, or both. Without
// the identity the signer can only verify.
func NewSigner(identity, publicKey string) (*Signer, error) {
	identity = strings.TrimSpace(identity)
	publicKey = strings.TrimSpace(publicKey)
	if identity == "" && publicKey == "" {
		return nil, fmt.Errorf("%s or %s must be set", EnvSigningKey, EnvVerifyKey)
	}

	s := &Signer{}
	if identity != "" {
		parsed, err := age.ParseX25519Identity(identity)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", EnvSigningKey, err)
		}
		seed, err := identitySeed(identity)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", EnvSigningKey, err)
		}
		s.privateKey = ed25519.NewKeyFromSeed(seed)
		s.publicKey = s.privateKey.Public().(ed25519.PublicKey)
		s.recipient = parsed.Recipient().String()
	}

	if publicKey != "" {
		key, err := decodePublicKey(publicKey)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", EnvVerifyKey, err)
		}
		if s.publicKey != nil && !bytes.Equal(s.publicKey, key) {
			return nil, fmt.Errorf("%s does not belong to %s", EnvVerifyKey, EnvSigningKey)
		}
		s.publicKey = key
	}
	return s, nil
}

// CanSign reports whether the signer holds a private key.
func (s *Signer) CanSign() bool {
	return s != nil && len(s.privateKey) > 0
}

// PublicKey returns the Ed25519 public key in base64.
func (s *Signer) PublicKey() string {
	if s == nil || len(s.publicKey) == 0 {
		return ""
	}
	return base64.StdEncoding.EncodeToString(s.publicKey)
}

// SignManifest stamps m with the signer identity and signs it.
func (s *Signer) SignManifest(m *Manifest) error {
	if m == nil {
		return errors.New("nil manifest")
	}
	if !s.CanSign() {
		return errors.New("signer has no private key")
	}
	if strings.TrimSpace(m.Name) == "" {
		return errors.New("manifest name is required")
	}

	m.Signer = s.recipient
	m.SigningPublicKey = s.PublicKey()
	payload, err := signingPayload(*m)
	if err != nil {
		return err
	}
	m.Signature = base64.StdEncoding.EncodeToString(ed25519.Sign(s.privateKey, payload))
	return nil
}

// VerifyManifest checks the signature of m against the configured key. The key recorded
// in the manifest must be that same key.
func (s *Signer) VerifyManifest(m Manifest) error {
	if s == nil || len(s.publicKey) == 0 {
		return errors.New("no verification key configured")
	}
	if m.Signature == "" {
		return errors.New("manifest missing signature")
	}
	if m.SigningPublicKey != "" {
		recorded, err := decodePublicKey(m.SigningPublicKey)
		if err != nil {
			return fmt.Errorf("manifest signing key: %w", err)
		}
		if !bytes.Equal(recorded, s.publicKey) {
			return errors.New("manifest signed by unexpected key")
		}
	}

	sig, err := base64.StdEncoding.DecodeString(strings.TrimSpace(m.Signature))
	if err != nil {
		return fmt.Errorf("decode signature: %w", err)
	}
	if len(sig) != ed25519.SignatureSize {
		return fmt.Errorf("invalid signature length %d", len(sig))
	}
	payload, err := signingPayload(m)
	if err != nil {
		return err
	}
	if !ed25519.Verify(s.publicKey, payload, sig) {
		return fmt.Errorf("signature does not match bundle %s release %q", m.Name, m.Release)
	}
	return nil
}

func signingPayload(m Manifest) ([]byte, error) {
	body, err := m.SigningBytes()
	if err != nil {
		return nil, fmt.Errorf("marshal manifest for signing: %w", err)
	}
	var buf bytes.Buffer
	buf.WriteString(signingContext)
	buf.WriteByte(0)
	buf.WriteString(m.Name)
	buf.WriteByte(0)
	buf.WriteString(m.Release)
	buf.WriteByte(0)
	buf.Write(body)
	return buf.Bytes(), nil
}

func decodePublicKey(raw string) (ed25519.PublicKey, error) {
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("decode public key: %w", err)
	}
	if len(decoded) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("public key must be %d bytes, got %d", ed25519.PublicKeySize, len(decoded))
	}
	return ed25519.PublicKey(decoded), nil
}

// identitySeed returns the 32 bytes carried by an age identity, used as the Ed25519 seed.
func identitySeed(identity string) ([]byte, error) {
	hrp, data, err := bech32.Decode(identity)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(hrp, "age-secret-key-") {
		return nil, fmt.Errorf("unexpected prefix %q", hrp)
	}
	seed, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return nil, err
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("unexpected seed length %d", len(seed))
	}
	return seed, nil
}
