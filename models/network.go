package models

import (
	"fmt"
	"strconv"
	"strings"
)

type Network struct {
	Key     string `json:"key"`
	Name    string `json:"name"`
	ChainID string `json:"chain_id"` // hex, as exchanged with the wallet
	ID      uint64 `json:"id"`
}

var (
	EthereumMainnet = Network{Key: "ETHEREUM_MAINNET", Name: "Ethereum Mainnet", ChainID: "0x1", ID: 1}
	Goerli          = Network{Key: "GOERLI", Name: "Goerli Testnet", ChainID: "0x5", ID: 5}
	Sepolia         = Network{Key: "SEPOLIA", Name: "Sepolia Testnet", ChainID: "0xaa36a7", ID: 11155111}
	Polygon         = Network{Key: "POLYGON", Name: "Polygon Mainnet", ChainID: "0x89", ID: 137}
	Mumbai          = Network{Key: "MUMBAI", Name: "Mumbai Testnet", ChainID: "0x13881", ID: 80001}
)

var SupportedNetworks = []Network{EthereumMainnet, Goerli, Sepolia, Polygon, Mumbai}

// ParseChainID parses a hex ("0xaa36a7") or decimal ("11155111") chain id.
func ParseChainID(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty chain id")
	}
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return strconv.ParseUint(s[2:], 16, 64)
	}
	return strconv.ParseUint(s, 10, 64)
}

func FormatChainID(id uint64) string {
	return "0x" + strconv.FormatUint(id, 16)
}

// LookupNetwork resolves a supported network by key, hex chain id or decimal id.
func LookupNetwork(s string) (Network, bool) {
	for _, n := range SupportedNetworks {
		if strings.EqualFold(n.Key, s) {
			return n, true
		}
	}
	id, err := ParseChainID(s)
	if err != nil {
		return Network{}, false
	}
	return NetworkByID(id)
}

func NetworkByID(id uint64) (Network, bool) {
	for _, n := range SupportedNetworks {
		if n.ID == id {
			return n, true
		}
	}
	return Network{}, false
}
