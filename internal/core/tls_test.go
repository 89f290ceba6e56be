package core

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildTLSConfig_NoPinsSkipsVerifier(t *testing.T) {
	cfg, err := BuildTLSConfig("", nil)
	require.NoError(t, err)
	assert.Nil(t, cfg.VerifyPeerCertificate)
}

func TestBuildTLSConfig_RejectsMalformedPin(t *testing.T) {
	_, err := BuildTLSConfig("", []string{"not-hex"})
	assert.Error(t, err)
}

func TestPinnedVerifier_AcceptsMatchingDigest(t *testing.T) {
	cert := []byte("pretend-der-bytes")
	digest := sha256.Sum256(cert)
	pin := hex.EncodeToString(digest[:])

	cfg, err := BuildTLSConfig("", []string{pin})
	require.NoError(t, err)
	require.NotNil(t, cfg.VerifyPeerCertificate)

	err = cfg.VerifyPeerCertificate([][]byte{cert}, nil)
	assert.NoError(t, err)
}

func TestPinnedVerifier_RejectsMismatchedDigest(t *testing.T) {
	other := sha256.Sum256([]byte("other-cert"))
	pin := hex.EncodeToString(other[:])

	cfg, err := BuildTLSConfig("", []string{pin})
	require.NoError(t, err)

	err = cfg.VerifyPeerCertificate([][]byte{[]byte("pretend-der-bytes")}, nil)
	assert.Error(t, err)
}

func TestPinnedVerifier_RejectsNoCertificates(t *testing.T) {
	digest := sha256.Sum256([]byte("x"))
	pin := hex.EncodeToString(digest[:])
	cfg, err := BuildTLSConfig("", []string{pin})
	require.NoError(t, err)

	err = cfg.VerifyPeerCertificate(nil, nil)
	assert.Error(t, err)
}
