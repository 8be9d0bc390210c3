package localKeyGenerator

import (
	"context"
	"crypto/x509"
	"encoding/pem"
	"strings"
	"testing"

	"github.com/Layr-Labs/custody-web3-provider/pkg/requestSigner/inMemoryRequestSigner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func Test_LocalKeyGenerator(t *testing.T) {
	generator := NewLocalKeyGenerator(2048, zaptest.NewLogger(t))
	ctx := context.Background()

	t.Run("Should generate an API key with a CSR", func(t *testing.T) {
		result, err := generator.GenerateApiKey(ctx, "test-key", "custody-provider")
		require.NoError(t, err)

		assert.True(t, strings.HasPrefix(result.KeyId, "local-key-"))
		require.NotNil(t, result.PublicKey)
		assert.Equal(t, 2048, result.PublicKey.N.BitLen())

		block, _ := pem.Decode(result.CsrPEM)
		require.NotNil(t, block)
		assert.Equal(t, "CERTIFICATE REQUEST", block.Type)
		csr, err := x509.ParseCertificateRequest(block.Bytes)
		require.NoError(t, err)
		require.NoError(t, csr.CheckSignature())
		assert.Equal(t, "custody-provider", csr.Subject.CommonName)
		assert.True(t, result.PublicKey.Equal(csr.PublicKey))
	})

	t.Run("Should produce a private key the request signer accepts", func(t *testing.T) {
		result, err := generator.GenerateApiKey(ctx, "test-key", "custody-provider")
		require.NoError(t, err)

		key, err := inMemoryRequestSigner.ParseRSAPrivateKey(result.PrivateKeyPEM)
		require.NoError(t, err)
		assert.True(t, result.PublicKey.Equal(&key.PublicKey))

		_, err = inMemoryRequestSigner.NewInMemoryRequestSignerFromConfig(string(result.PrivateKeyPEM), zaptest.NewLogger(t))
		require.NoError(t, err)
	})

	t.Run("Should look up generated keys by id", func(t *testing.T) {
		before := generator.GetKeyCount()
		result, err := generator.GenerateApiKey(ctx, "lookup", "custody-provider")
		require.NoError(t, err)
		assert.Equal(t, before+1, generator.GetKeyCount())

		found, err := generator.GetApiKeyById(ctx, result.KeyId)
		require.NoError(t, err)
		assert.Equal(t, result.CsrPEM, found.CsrPEM)

		_, err = generator.GetApiKeyById(ctx, "local-key-missing")
		assert.Error(t, err)
	})

	t.Run("Should require a common name", func(t *testing.T) {
		_, err := generator.GenerateApiKey(ctx, "test-key", "")
		assert.Error(t, err)
	})

	t.Run("Should encode the public key as PEM", func(t *testing.T) {
		result, err := generator.GenerateApiKey(ctx, "test-key", "custody-provider")
		require.NoError(t, err)
		pub, err := result.GetPublicKeyPEM()
		require.NoError(t, err)
		assert.Contains(t, string(pub), "BEGIN PUBLIC KEY")
	})
}
