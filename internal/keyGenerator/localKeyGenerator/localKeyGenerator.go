package localKeyGenerator

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"sync"

	"github.com/Layr-Labs/custody-web3-provider/internal/keyGenerator"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type keyEntry struct {
	privateKey *rsa.PrivateKey
	keyName    string
	commonName string
	csrPEM     []byte
}

// LocalKeyGenerator creates API keys in memory. The caller is responsible for storing the private key PEM.
type LocalKeyGenerator struct {
	logger   *zap.Logger
	keyBits  int
	keyStore map[string]*keyEntry // keyId -> keyEntry
	mu       sync.RWMutex
}

func NewLocalKeyGenerator(keyBits int, logger *zap.Logger) *LocalKeyGenerator {
	if keyBits == 0 {
		keyBits = keyGenerator.DefaultKeyBits
	}
	return &LocalKeyGenerator{
		logger:   logger,
		keyBits:  keyBits,
		keyStore: make(map[string]*keyEntry),
	}
}

func (l *LocalKeyGenerator) GenerateApiKey(ctx context.Context, keyName string, commonName string) (*keyGenerator.GeneratedApiKey, error) {
	privateKey, err := rsa.GenerateKey(rand.Reader, l.keyBits)
	if err != nil {
		return nil, fmt.Errorf("failed to generate RSA key: %w", err)
	}

	csr, err := keyGenerator.CreateCSR(privateKey, commonName)
	if err != nil {
		return nil, err
	}

	keyId := fmt.Sprintf("local-key-%s", uuid.New().String())

	l.mu.Lock()
	l.keyStore[keyId] = &keyEntry{
		privateKey: privateKey,
		keyName:    keyName,
		commonName: commonName,
		csrPEM:     csr,
	}
	l.mu.Unlock()

	l.logger.Sugar().Infow("Generated local API key",
		"keyName", keyName,
		"commonName", commonName,
		"keyId", keyId,
		"bits", l.keyBits,
	)

	return l.GetApiKeyById(ctx, keyId)
}

func (l *LocalKeyGenerator) GetApiKeyById(_ context.Context, keyId string) (*keyGenerator.GeneratedApiKey, error) {
	l.mu.RLock()
	entry, exists := l.keyStore[keyId]
	l.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("key with ID %s not found", keyId)
	}

	der, err := x509.MarshalPKCS8PrivateKey(entry.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal private key %s: %w", keyId, err)
	}

	return &keyGenerator.GeneratedApiKey{
		KeyId:         keyId,
		PublicKey:     &entry.privateKey.PublicKey,
		PrivateKeyPEM: pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}),
		CsrPEM:        entry.csrPEM,
	}, nil
}

func (l *LocalKeyGenerator) GetKeyCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.keyStore)
}

var _ keyGenerator.IKeyGenerator = (*LocalKeyGenerator)(nil)
