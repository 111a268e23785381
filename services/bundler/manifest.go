package bundler

import (
	"time"

	"gopkg.in/yaml.v3"
)

const manifestVersion = "1"

// Manifest represents the signed metadata included in bundles.
type Manifest struct {
	Version          string         `yaml:"version"`
	Name             string         `yaml:"name"`
	Release          string         `yaml:"release,omitempty"`
	CreatedAt        time.Time      `yaml:"created_at"`
	Signer           string         `yaml:"signer,omitempty"`
	SigningPublicKey string         `yaml:"signing_public_key,omitempty"`
	Signature        string         `yaml:"signature,omitempty"`
	Files            []ManifestFile `yaml:"files"`
}

// SigningBytes marshals the manifest without its signature for signing/verification.
func (m Manifest) SigningBytes() ([]byte, error) {
	clone := m
	clone.Signature = ""
	return yaml.Marshal(clone)
}

// ManifestFile describes a single file within the bundle.
type ManifestFile struct {
	Path        string `yaml:"path"`
	ContentType string `yaml:"content_type"`
	Size        int64  `yaml:"size"`
	SHA256      string `yaml:"sha256"`
}
