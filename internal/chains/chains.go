package chains

import (
	"strings"

	"moff.io/wallet-shell/pkg/errors"
)

// Network 钱包连接与交易提交所用的网络
type Network struct {
	Name       string
	ChainID    string
	GatewayURL string
	APIURL     string
	// bech32 地址前缀
	HRP string
}

var (
	Array = []*Network{
		{
			Name:       "mainnet",
			ChainID:    "1",
			GatewayURL: "https://gateway.multiversx.com",
			APIURL:     "https://api.multiversx.com",
			HRP:        "erd",
		},
		{
			Name:       "testnet",
			ChainID:    "T",
			GatewayURL: "https://testnet-gateway.multiversx.com",
			APIURL:     "https://testnet-api.multiversx.com",
			HRP:        "erd",
		},
		{
			Name:       "devnet",
			ChainID:    "D",
			GatewayURL: "https://devnet-gateway.multiversx.com",
			APIURL:     "https://devnet-api.multiversx.com",
			HRP:        "erd",
		},
	}

	Mapping = func() map[string]*Network {
		m := make(map[string]*Network, len(Array))
		for _, n := range Array {
			m[n.Name] = n
		}
		return m
	}()
)

var ErrUnknownNetwork = errors.New("unknown network")

// Lookup 按名称查找网络，名称不区分大小写
func Lookup(name string) (*Network, error) {
	n, ok := Mapping[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownNetwork, "%q", name)
	}
	cp := *n
	return &cp, nil
}

// WithOverrides returns a copy using custom endpoints where non-empty.
func (n Network) WithOverrides(gatewayURL, apiURL string) *Network {
	if gatewayURL != "" {
		n.GatewayURL = strings.TrimRight(gatewayURL, "/")
	}
	if apiURL != "" {
		n.APIURL = strings.TrimRight(apiURL, "/")
	}
	return &n
}
