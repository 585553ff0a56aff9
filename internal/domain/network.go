// internal/domain/network.go
package domain

import (
	"fmt"
	"strings"
)

// Network identifies a supported settlement chain
type Network string

const (
	NetworkTron    Network = "TRON"
	NetworkPolygon Network = "POLYGON"
)

// PaymentNetwork is the ledger-facing name of a stablecoin rail
type PaymentNetwork string

const (
	PaymentNetworkUSDTTRC20   PaymentNetwork = "USDT_TRC20"
	PaymentNetworkUSDCPolygon PaymentNetwork = "USDC_POLYGON"
)

// StablecoinDecimals is the precision every stablecoin amount is normalized to
const StablecoinDecimals = 6

// Networks lists every supported network in a stable order
func Networks() []Network {
	return []Network{NetworkTron, NetworkPolygon}
}

func (n Network) Valid() bool {
	return n == NetworkTron || n == NetworkPolygon
}

func (n Network) String() string {
	return string(n)
}

// PaymentNetwork maps a chain to its ledger payment network
func (n Network) PaymentNetwork() PaymentNetwork {
	switch n {
	case NetworkTron:
		return PaymentNetworkUSDTTRC20
	case NetworkPolygon:
		return PaymentNetworkUSDCPolygon
	}
	return ""
}

// Network maps a ledger payment network back to its chain
func (p PaymentNetwork) Network() (Network, error) {
	switch p {
	case PaymentNetworkUSDTTRC20:
		return NetworkTron, nil
	case PaymentNetworkUSDCPolygon:
		return NetworkPolygon, nil
	}
	return "", fmt.Errorf("%w: payment network %q", ErrUnsupportedNetwork, string(p))
}

// ParseNetwork accepts case-insensitive network names
func ParseNetwork(s string) (Network, error) {
	n := Network(strings.ToUpper(strings.TrimSpace(s)))
	if !n.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedNetwork, s)
	}
	return n, nil
}
