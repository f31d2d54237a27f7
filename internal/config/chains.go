package config

import (
	"fmt"
	"strings"
)

// Chain identifies a supported network.
type Chain string

const (
	Ethereum Chain = "ethereum"
	Arbitrum Chain = "arbitrum"
	Optimism Chain = "optimism"
	Polygon  Chain = "polygon"
	Base     Chain = "base"
	BSC      Chain = "bsc"
)

// DataSource names where day logs are read from.
type DataSource string

const (
	SourceRPC       DataSource = "rpc"
	SourceWarehouse DataSource = "warehouse"
	SourceExport    DataSource = "export"
)

// ChainInfo is the static description of a chain.
type ChainInfo struct {
	ExplorerURL string
	Sources     []DataSource
	// PositionManager is the Uniswap V3 NonfungiblePositionManager deployment.
	PositionManager string
}

var chains = map[Chain]ChainInfo{
	Ethereum: {
		ExplorerURL:     "https://api.etherscan.io/api",
		Sources:         []DataSource{SourceRPC, SourceWarehouse, SourceExport},
		PositionManager: "0xC36442b4a4522E871399CD717aBDD847Ab11FE88",
	},
	Arbitrum: {
		ExplorerURL:     "https://api.arbiscan.io/api",
		Sources:         []DataSource{SourceRPC, SourceWarehouse, SourceExport},
		PositionManager: "0xC36442b4a4522E871399CD717aBDD847Ab11FE88",
	},
	Optimism: {
		ExplorerURL:     "https://api-optimistic.etherscan.io/api",
		Sources:         []DataSource{SourceRPC, SourceWarehouse, SourceExport},
		PositionManager: "0xC36442b4a4522E871399CD717aBDD847Ab11FE88",
	},
	Polygon: {
		ExplorerURL:     "https://api.polygonscan.com/api",
		Sources:         []DataSource{SourceRPC, SourceWarehouse, SourceExport},
		PositionManager: "0xC36442b4a4522E871399CD717aBDD847Ab11FE88",
	},
	Base: {
		ExplorerURL:     "https://api.basescan.org/api",
		Sources:         []DataSource{SourceRPC, SourceExport},
		PositionManager: "0x03a520b32C04BF3bEEf7BEb72E919cf822Ed34f1",
	},
	BSC: {
		ExplorerURL:     "https://api.bscscan.com/api",
		Sources:         []DataSource{SourceRPC, SourceExport},
		PositionManager: "0x7b8A01B39D58278b5DE7e48c8449c9f4F5170613",
	},
}

// ParseChain validates a chain name.
func ParseChain(name string) (Chain, error) {
	chain := Chain(strings.ToLower(strings.TrimSpace(name)))
	if _, ok := chains[chain]; !ok {
		return "", fmt.Errorf("unknown chain: %s", name)
	}
	return chain, nil
}

// Info returns the lookup entry of a chain.
func (c Chain) Info() (ChainInfo, bool) {
	info, ok := chains[c]
	return info, ok
}

// Allows reports whether source may be used for the chain.
func (c Chain) Allows(source DataSource) bool {
	info, ok := chains[c]
	if !ok {
		return false
	}
	for _, s := range info.Sources {
		if s == source {
			return true
		}
	}
	return false
}
