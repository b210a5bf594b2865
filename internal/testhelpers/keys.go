package testhelpers

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/floroz/winbid/pkg/auth"
)

// GenerateKeys returns a fresh PEM-encoded RSA key pair
func GenerateKeys(t *testing.T) (privPEM, pubPEM []byte) {
	t.Helper()
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err, "Failed to generate RSA key")

	privPEM = pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(privateKey),
	})
	pubBytes, err := x509.MarshalPKIXPublicKey(&privateKey.PublicKey)
	require.NoError(t, err, "Failed to marshal public key")
	pubPEM = pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubBytes})
	return privPEM, pubPEM
}

// NewTestSigner builds a signer with one-hour tokens
func NewTestSigner(t *testing.T) *auth.Signer {
	t.Helper()
	privPEM, pubPEM := GenerateKeys(t)
	signer, err := auth.NewSigner(privPEM, pubPEM, "winbid-test", time.Hour)
	require.NoError(t, err, "Failed to create signer")
	return signer
}
