package keyGenerator

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
)

// DefaultKeyBits is the RSA size the custody service expects for API signing keys.
const DefaultKeyBits = 4096

// GeneratedApiKey is an API signing key plus the CSR that registers it with the custody service.
type GeneratedApiKey struct {
	KeyId     string
	PublicKey *rsa.PublicKey
	// PrivateKeyPEM is empty when the key never leaves the key store (e.g. AWS KMS).
	PrivateKeyPEM []byte
	CsrPEM        []byte
}

func (g *GeneratedApiKey) GetPublicKeyPEM() ([]byte, error) {
	if g.PublicKey == nil {
		return nil, fmt.Errorf("public key is nil")
	}
	der, err := x509.MarshalPKIXPublicKey(g.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal public key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), nil
}

type IKeyGenerator interface {
	GenerateApiKey(ctx context.Context, keyName string, commonName string) (*GeneratedApiKey, error)
	GetApiKeyById(ctx context.Context, keyId string) (*GeneratedApiKey, error)
}

// CreateCSR builds a PEM certificate request for commonName signed by signer.
// signer may be backed by a remote key store.
func CreateCSR(signer crypto.Signer, commonName string) ([]byte, error) {
	if commonName == "" {
		return nil, fmt.Errorf("common name is required")
	}
	template := &x509.CertificateRequest{
		Subject:            pkix.Name{CommonName: commonName},
		SignatureAlgorithm: x509.SHA256WithRSA,
	}
	der, err := x509.CreateCertificateRequest(rand.Reader, template, signer)
	if err != nil {
		return nil, fmt.Errorf("failed to create certificate request: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE REQUEST", Bytes: der}), nil
}
