package main

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Layr-Labs/custody-web3-provider/pkg/providerErrors"
	"github.com/Layr-Labs/custody-web3-provider/pkg/requestSigner/inMemoryRequestSigner"
	"github.com/Layr-Labs/custody-web3-provider/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap/zaptest"
)

const (
	testApiKey = "cli-api-key"
	signerAddr = "0x1111111111111111111111111111111111111111"
)

func testPrivateKeyPEM(t *testing.T) string {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	return string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}))
}

func runApp(t *testing.T, args ...string) (string, error) {
	mock := testutil.NewMockCustodyClient(zaptest.NewLogger(t))
	mock.AddVaultAccount("3", signerAddr)
	server := testutil.NewFakeCustodyServer(t, mock, testApiKey)

	var out bytes.Buffer
	app := newApp()
	app.Writer = &out

	base := []string{
		"custody-provider",
		"--api-key", testApiKey,
		"--private-key", testPrivateKeyPEM(t),
		"--api-base-url", server.URL,
		"--chain-id", "5",
		"--polling-interval", "5ms",
	}
	err := app.RunContext(context.Background(), append(base, args...))
	return out.String(), err
}

func Test_AccountsCommand(t *testing.T) {
	out, err := runApp(t, "accounts")
	require.NoError(t, err)
	assert.Equal(t, signerAddr, strings.TrimSpace(out))
}

func Test_RequestCommand(t *testing.T) {
	out, err := runApp(t, "request", "--method", "personal_sign", "--params", `["0x68656c6c6f","`+signerAddr+`"]`)
	require.NoError(t, err)

	sig := testutil.SignatureFor("tx-1")
	assert.Equal(t, `"0x`+sig.R+sig.S+`1c"`, strings.TrimSpace(out))
}

func Test_RequestCommand_ChainId(t *testing.T) {
	out, err := runApp(t, "request", "--method", "eth_chainId")
	require.NoError(t, err)
	assert.Equal(t, `"0x5"`, strings.TrimSpace(out))
}

func Test_RequestCommand_ProviderError(t *testing.T) {
	_, err := runApp(t, "request", "--method", "eth_signTransaction", "--params", `[{}]`)
	require.Error(t, err)

	pErr, ok := providerErrors.AsProviderRpcError(err)
	require.True(t, ok)
	assert.Equal(t, providerErrors.CodeUnsupportedMethod, pErr.Code)
}

func Test_RequestCommand_InvalidParamsJson(t *testing.T) {
	_, err := runApp(t, "request", "--method", "eth_chainId", "--params", `[`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "valid JSON")
}

func Test_MissingCredentials(t *testing.T) {
	app := newApp()
	app.Writer = &bytes.Buffer{}
	err := app.RunContext(context.Background(), []string{"custody-provider", "--chain-id", "5", "accounts"})
	require.Error(t, err)
	assert.ErrorIs(t, err, providerErrors.ErrConfiguration)
}

func Test_ParseProviderConfig_ExternalTxId(t *testing.T) {
	app := newApp()
	app.Writer = &bytes.Buffer{}

	var ids []string
	app.Commands = nil
	app.Action = func(c *cli.Context) error {
		cfg, err := parseProviderConfig(c)
		if err != nil {
			return err
		}
		first, _ := cfg.ExternalTxId.Next()
		second, _ := cfg.ExternalTxId.Next()
		ids = append(ids, first, second)
		assert.Equal(t, []string{"3", "7"}, cfg.VaultAccountIds)
		assert.False(t, cfg.UseOneTimeAddresses())
		return nil
	}

	err := app.RunContext(context.Background(), []string{
		"custody-provider",
		"--external-tx-id", "uuid",
		"--vault-account-ids", "3, 07",
		"--one-time-addresses=false",
	})
	require.NoError(t, err)
	require.Len(t, ids, 2)
	assert.NotEqual(t, ids[0], ids[1])
}

func Test_KeygenCommand_Local(t *testing.T) {
	dir := t.TempDir()

	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	err := app.RunContext(context.Background(), []string{
		"custody-provider", "keygen",
		"--name", "api",
		"--out-dir", dir,
		"--bits", "2048",
	})
	require.NoError(t, err)

	keyPEM, err := os.ReadFile(filepath.Join(dir, "api.key"))
	require.NoError(t, err)
	_, err = inMemoryRequestSigner.ParseRSAPrivateKey(keyPEM)
	require.NoError(t, err)

	csrPEM, err := os.ReadFile(filepath.Join(dir, "api.csr"))
	require.NoError(t, err)
	assert.Contains(t, string(csrPEM), "CERTIFICATE REQUEST")
	assert.Contains(t, out.String(), "private key:")
}
