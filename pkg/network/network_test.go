package network

import (
	"errors"
	"testing"

	"github.com/Layr-Labs/custody-web3-provider/pkg/providerErrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Resolve_TableIsConsistent(t *testing.T) {
	for chainId, asset := range Assets {
		fromChain, err := Resolve(Selector{ChainId: chainId})
		require.NoError(t, err)

		fromRpc, err := Resolve(Selector{RpcUrl: asset.RpcUrl})
		require.NoError(t, err)

		fromBoth, err := Resolve(Selector{ChainId: chainId, RpcUrl: asset.RpcUrl})
		require.NoError(t, err)

		assert.Equal(t, fromBoth.AssetId, fromChain.AssetId, "chain %d", chainId)
		assert.Equal(t, fromBoth.AssetId, fromRpc.AssetId, "chain %d", chainId)
		assert.Equal(t, chainId, fromRpc.ChainId)
		assert.Equal(t, asset.RpcUrl, fromChain.RpcUrl)
	}
}

func Test_Resolve_Goerli(t *testing.T) {
	n, err := Resolve(Selector{ChainId: ChainId_Goerli})
	require.NoError(t, err)
	assert.Equal(t, ChainId(5), n.ChainId)
	assert.Equal(t, "ETH_TEST3", n.AssetId)
	assert.Equal(t, "https://rpc.ankr.com/eth_goerli", n.RpcUrl)
}

func Test_Resolve_Errors(t *testing.T) {
	tests := []struct {
		name string
		sel  Selector
	}{
		{"nothing set", Selector{}},
		{"mismatched pair", Selector{ChainId: ChainId_Mainnet, RpcUrl: Assets[ChainId_Goerli].RpcUrl}},
		{"unknown chain without asset", Selector{ChainId: 999999, RpcUrl: "http://localhost:8545"}},
		{"unknown chain without rpc", Selector{ChainId: 999999, AssetId: "CUSTOM"}},
		{"unknown rpc without chain", Selector{RpcUrl: "http://localhost:8545"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Resolve(tt.sel)
			require.Error(t, err)
			assert.True(t, errors.Is(err, providerErrors.ErrConfiguration))
		})
	}
}

func Test_Resolve_AssetOverride(t *testing.T) {
	t.Run("custom chain", func(t *testing.T) {
		n, err := Resolve(Selector{ChainId: 999999, RpcUrl: "http://localhost:8545", AssetId: "CUSTOM_EVM"})
		require.NoError(t, err)
		assert.Equal(t, "CUSTOM_EVM", n.AssetId)
		assert.Equal(t, ChainId(999999), n.ChainId)
	})
	t.Run("override wins over table", func(t *testing.T) {
		n, err := Resolve(Selector{ChainId: ChainId_Mainnet, AssetId: "ETH_CUSTOM"})
		require.NoError(t, err)
		assert.Equal(t, "ETH_CUSTOM", n.AssetId)
	})
}

func Test_Resolve_CustomRpcForKnownChain(t *testing.T) {
	n, err := Resolve(Selector{ChainId: ChainId_Goerli, RpcUrl: "https://goerli.infura.io/v3/abc"})
	require.NoError(t, err)
	assert.Equal(t, "ETH_TEST3", n.AssetId)
	assert.Equal(t, "https://goerli.infura.io/v3/abc", n.RpcUrl)
}

func Test_LookupChainIdByRpcUrl_Normalizes(t *testing.T) {
	id, ok := LookupChainIdByRpcUrl("HTTPS://rpc.ankr.com/eth_goerli/")
	require.True(t, ok)
	assert.Equal(t, ChainId_Goerli, id)
}
