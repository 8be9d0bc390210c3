package network

import (
	"fmt"
	"strings"

	"github.com/Layr-Labs/custody-web3-provider/pkg/providerErrors"
)

type ChainId uint64

const (
	ChainId_Mainnet         ChainId = 1
	ChainId_Ropsten         ChainId = 3
	ChainId_Rinkeby         ChainId = 4
	ChainId_Goerli          ChainId = 5
	ChainId_Optimism        ChainId = 10
	ChainId_Songbird        ChainId = 19
	ChainId_Rsk             ChainId = 30
	ChainId_RskTestnet      ChainId = 31
	ChainId_Kovan           ChainId = 42
	ChainId_Bsc             ChainId = 56
	ChainId_OptimismKovan   ChainId = 69
	ChainId_BscTestnet      ChainId = 97
	ChainId_Polygon         ChainId = 137
	ChainId_Fantom          ChainId = 250
	ChainId_Moonbeam        ChainId = 1284
	ChainId_Moonriver       ChainId = 1285
	ChainId_Ronin           ChainId = 2020
	ChainId_Arbitrum        ChainId = 42161
	ChainId_Celo            ChainId = 42220
	ChainId_AvalancheFuji   ChainId = 43113
	ChainId_Avalanche       ChainId = 43114
	ChainId_CeloAlfajores   ChainId = 44787
	ChainId_CeloBaklava     ChainId = 62320
	ChainId_PolygonMumbai   ChainId = 80001
	ChainId_ArbitrumRinkeby ChainId = 421611
	ChainId_Sepolia         ChainId = 11155111
)

type Asset struct {
	AssetId string
	RpcUrl  string
}

// Assets maps every supported chain to its custody asset id and public RPC endpoint.
var Assets = map[ChainId]Asset{
	ChainId_Mainnet:         {AssetId: "ETH", RpcUrl: "https://cloudflare-eth.com"},
	ChainId_Ropsten:         {AssetId: "ETH_TEST", RpcUrl: "https://rpc.ankr.com/eth_ropsten"},
	ChainId_Rinkeby:         {AssetId: "ETH_TEST4", RpcUrl: "https://rpc.ankr.com/eth_rinkeby"},
	ChainId_Goerli:          {AssetId: "ETH_TEST3", RpcUrl: "https://rpc.ankr.com/eth_goerli"},
	ChainId_Optimism:        {AssetId: "ETH-OPT", RpcUrl: "https://mainnet.optimism.io"},
	ChainId_Songbird:        {AssetId: "SGB", RpcUrl: "https://songbird.towolabs.com/rpc"},
	ChainId_Rsk:             {AssetId: "RBTC", RpcUrl: "https://public-node.rsk.co"},
	ChainId_RskTestnet:      {AssetId: "RBTC_TEST", RpcUrl: "https://public-node.testnet.rsk.co"},
	ChainId_Kovan:           {AssetId: "ETH_TEST2", RpcUrl: "https://kovan.poa.network"},
	ChainId_Bsc:             {AssetId: "BNB_BSC", RpcUrl: "https://bsc-dataseed.binance.org"},
	ChainId_OptimismKovan:   {AssetId: "ETH-OPT_KOV", RpcUrl: "https://kovan.optimism.io"},
	ChainId_BscTestnet:      {AssetId: "BNB_TEST", RpcUrl: "https://data-seed-prebsc-1-s1.binance.org:8545"},
	ChainId_Polygon:         {AssetId: "MATIC_POLYGON", RpcUrl: "https://polygon-rpc.com"},
	ChainId_Fantom:          {AssetId: "FTM_FANTOM", RpcUrl: "https://rpc.ftm.tools"},
	ChainId_Moonbeam:        {AssetId: "GLMR_GLMR", RpcUrl: "https://rpc.api.moonbeam.network"},
	ChainId_Moonriver:       {AssetId: "MOVR_MOVR", RpcUrl: "https://rpc.api.moonriver.moonbeam.network"},
	ChainId_Ronin:           {AssetId: "RON", RpcUrl: "https://api.roninchain.com/rpc"},
	ChainId_Arbitrum:        {AssetId: "ETH-AETH", RpcUrl: "https://arb1.arbitrum.io/rpc"},
	ChainId_Celo:            {AssetId: "CELO", RpcUrl: "https://forno.celo.org"},
	ChainId_AvalancheFuji:   {AssetId: "AVAXTEST", RpcUrl: "https://api.avax-test.network/ext/bc/C/rpc"},
	ChainId_Avalanche:       {AssetId: "AVAX", RpcUrl: "https://api.avax.network/ext/bc/C/rpc"},
	ChainId_CeloAlfajores:   {AssetId: "CELO_ALF", RpcUrl: "https://alfajores-forno.celo-testnet.org"},
	ChainId_CeloBaklava:     {AssetId: "CELO_BAK", RpcUrl: "https://baklava-forno.celo-testnet.org"},
	ChainId_PolygonMumbai:   {AssetId: "MATIC_POLYGON_MUMBAI", RpcUrl: "https://rpc-mumbai.maticvigil.com"},
	ChainId_ArbitrumRinkeby: {AssetId: "ETH-AETH-RIN", RpcUrl: "https://rinkeby.arbitrum.io/rpc"},
	ChainId_Sepolia:         {AssetId: "ETH_TEST5", RpcUrl: "https://rpc.sepolia.org"},
}

var rpcUrlToChainId = func() map[string]ChainId {
	m := make(map[string]ChainId, len(Assets))
	for chainId, asset := range Assets {
		m[normalizeRpcUrl(asset.RpcUrl)] = chainId
	}
	return m
}()

// Selector is the raw network selection from configuration. Zero values mean "not set".
type Selector struct {
	ChainId ChainId
	RpcUrl  string
	AssetId string
}

// Network is the resolved, immutable network identity shared by a provider instance.
type Network struct {
	ChainId ChainId
	RpcUrl  string
	AssetId string
}

func normalizeRpcUrl(rpcUrl string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(rpcUrl)), "/")
}

// LookupChainIdByRpcUrl returns the chain served by a known public endpoint.
func LookupChainIdByRpcUrl(rpcUrl string) (ChainId, bool) {
	chainId, ok := rpcUrlToChainId[normalizeRpcUrl(rpcUrl)]
	return chainId, ok
}

// Resolve turns a partial selector into a complete network. It is a pure
// function of the selector and the static table.
func Resolve(sel Selector) (*Network, error) {
	rpcUrl := strings.TrimSpace(sel.RpcUrl)
	if sel.ChainId == 0 && rpcUrl == "" {
		return nil, providerErrors.NewConfigurationError("either chainId or rpcUrl must be provided", nil)
	}

	chainId := sel.ChainId
	if rpcUrl != "" {
		tableChainId, known := LookupChainIdByRpcUrl(rpcUrl)
		switch {
		case chainId == 0 && !known:
			return nil, providerErrors.NewConfigurationError(
				fmt.Sprintf("unable to infer chainId from rpcUrl %s", rpcUrl), nil)
		case chainId == 0:
			chainId = tableChainId
		case known && tableChainId != chainId:
			return nil, providerErrors.NewConfigurationError(
				fmt.Sprintf("rpcUrl %s belongs to chain %d but chainId %d was configured", rpcUrl, tableChainId, chainId), nil)
		}
	}

	asset, known := Assets[chainId]
	if rpcUrl == "" {
		if !known {
			return nil, providerErrors.NewConfigurationError(
				fmt.Sprintf("unsupported chainId %d: rpcUrl must be provided", chainId), nil)
		}
		rpcUrl = asset.RpcUrl
	}

	assetId := strings.TrimSpace(sel.AssetId)
	if assetId == "" {
		if !known {
			return nil, providerErrors.NewConfigurationError(
				fmt.Sprintf("unsupported chainId %d: assetId must be provided", chainId), nil)
		}
		assetId = asset.AssetId
	}

	return &Network{
		ChainId: chainId,
		RpcUrl:  rpcUrl,
		AssetId: assetId,
	}, nil
}

// GetSupportedChainIds returns every chain id in the static table.
func GetSupportedChainIds() []ChainId {
	ids := make([]ChainId, 0, len(Assets))
	for id := range Assets {
		ids = append(ids, id)
	}
	return ids
}
