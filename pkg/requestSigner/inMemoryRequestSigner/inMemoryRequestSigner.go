package inMemoryRequestSigner

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"strings"

	"github.com/Layr-Labs/custody-web3-provider/pkg/requestSigner"
	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/lestrrat-go/jwx/v3/jwt"
	"go.uber.org/zap"
)

// InMemoryRequestSigner signs request tokens with an RSA key held in process memory.
type InMemoryRequestSigner struct {
	logger *zap.Logger
	key    jwk.Key
}

// LoadPrivateKeyPEM accepts either PEM content or a path to a PEM file.
func LoadPrivateKeyPEM(privateKey string) ([]byte, error) {
	if strings.Contains(privateKey, "-----BEGIN") {
		return []byte(privateKey), nil
	}
	data, err := os.ReadFile(privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key file: %w", err)
	}
	return data, nil
}

func ParseRSAPrivateKey(pemBytes []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("private key is not PEM encoded")
	}

	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("private key must be RSA, got %T", parsed)
	}
	return key, nil
}

// NewInMemoryRequestSignerFromConfig loads the key from PEM content or a file path.
func NewInMemoryRequestSignerFromConfig(privateKey string, logger *zap.Logger) (*InMemoryRequestSigner, error) {
	pemBytes, err := LoadPrivateKeyPEM(privateKey)
	if err != nil {
		return nil, err
	}
	key, err := ParseRSAPrivateKey(pemBytes)
	if err != nil {
		return nil, err
	}
	return NewInMemoryRequestSigner(key, logger)
}

func NewInMemoryRequestSigner(privateKey *rsa.PrivateKey, logger *zap.Logger) (*InMemoryRequestSigner, error) {
	key, err := jwk.Import(privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to import private key: %w", err)
	}
	if err := key.Set(jwk.AlgorithmKey, jwa.RS256()); err != nil {
		return nil, fmt.Errorf("failed to set key algorithm: %w", err)
	}

	return &InMemoryRequestSigner{
		logger: logger,
		key:    key,
	}, nil
}

func (s *InMemoryRequestSigner) SignRequest(_ context.Context, claims *requestSigner.RequestClaims) (string, error) {
	token, err := claims.Token()
	if err != nil {
		return "", err
	}

	signed, err := jwt.Sign(token, jwt.WithKey(jwa.RS256(), s.key))
	if err != nil {
		return "", fmt.Errorf("failed to sign request token: %w", err)
	}
	s.logger.Sugar().Debugw("Signed custody request token", "uri", claims.Uri, "nonce", claims.Nonce)
	return string(signed), nil
}

var _ requestSigner.IRequestSigner = (*InMemoryRequestSigner)(nil)
