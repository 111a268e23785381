package bundler

import (
	"testing"
	"time"

	"filippo.io/age"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testManifest() *Manifest {
	return &Manifest{
		Version:   manifestVersion,
		Name:      "webapps",
		Release:   "5.2",
		CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Files:     []ManifestFile{{Path: "index.html", ContentType: "text/html", Size: 1, SHA256: "00"}},
	}
}

func TestSignManifestRoundTrip(t *testing.T) {
	identity, err := age.GenerateX25519Identity()
	require.NoError(t, err)
	signer, err := NewSigner(identity.String(), "")
	require.NoError(t, err)

	m := testManifest()
	require.NoError(t, signer.SignManifest(m))
	assert.Equal(t, identity.Recipient().String(), m.Signer)
	assert.Equal(t, signer.PublicKey(), m.SigningPublicKey)
	require.NoError(t, signer.VerifyManifest(*m))

	m.Files[0].Size = 2
	require.Error(t, signer.VerifyManifest(*m))
}

func TestSignatureBindsNameAndRelease(t *testing.T) {
	signer := newTestSigner(t)
	m := testManifest()
	require.NoError(t, signer.SignManifest(m))

	renamed := *m
	renamed.Name = "other"
	assert.ErrorContains(t, signer.VerifyManifest(renamed), "bundle other")

	rereleased := *m
	rereleased.Release = "5.3"
	assert.Error(t, signer.VerifyManifest(rereleased))
}

func TestVerifyOnlySignerCannotSign(t *testing.T) {
	full := newTestSigner(t)
	verifier, err := NewSigner("", full.PublicKey())
	require.NoError(t, err)
	assert.False(t, verifier.CanSign())
	require.Error(t, verifier.SignManifest(testManifest()))

	m := testManifest()
	require.NoError(t, full.SignManifest(m))
	require.NoError(t, verifier.VerifyManifest(*m))
}

func TestVerifyRejectsForeignKey(t *testing.T) {
	m := testManifest()
	require.NoError(t, newTestSigner(t).SignManifest(m))
	assert.ErrorContains(t, newTestSigner(t).VerifyManifest(*m), "unexpected key")
}

func TestVerifyRequiresSignature(t *testing.T) {
	assert.Error(t, newTestSigner(t).VerifyManifest(*testManifest()))
}

func TestNewSignerRejectsMismatchedKeys(t *testing.T) {
	a, err := age.GenerateX25519Identity()
	require.NoError(t, err)
	other := newTestSigner(t)

	_, err = NewSigner(a.String(), other.PublicKey())
	require.Error(t, err)
}

func TestNewSignerRequiresKey(t *testing.T) {
	_, err := NewSigner(" ", "")
	require.Error(t, err)

	_, err = NewSigner("AGE-SECRET-KEY-1NOTVALID", "")
	require.Error(t, err)

	_, err = NewSigner("", "c2hvcnQ=")
	require.Error(t, err)
}

func TestNewSignerFromEnv(t *testing.T) {
	identity, err := age.GenerateX25519Identity()
	require.NoError(t, err)
	t.Setenv(EnvSigningKey, identity.String())
	t.Setenv(EnvVerifyKey, "")

	signer, err := NewSignerFromEnv()
	require.NoError(t, err)
	assert.True(t, signer.CanSign())
}
