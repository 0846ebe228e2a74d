package feeds

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/mr-tron/base58"
)

// evmChains use 20-byte hex addresses
var evmChains = map[string]bool{
	"ethereum":   true,
	"bsc":        true,
	"base":       true,
	"arbitrum":   true,
	"polygon":    true,
	"avalanche":  true,
	"optimism":   true,
	"blast":      true,
	"linea":      true,
	"pulsechain": true,
	"sonic":      true,
	"abstract":   true,
}

// NormalizeIdentity validates an address for its chain and returns the
// case-folded identity, or "" when the address is unusable.
// Unknown chains and exchange symbols only need to be non-empty.
func NormalizeIdentity(chain, address string) string {
	address = strings.TrimSpace(address)
	if address == "" {
		return ""
	}

	chain = strings.ToLower(strings.TrimSpace(chain))
	switch {
	case evmChains[chain]:
		if !common.IsHexAddress(address) {
			return ""
		}
	case chain == "solana":
		raw, err := base58.Decode(address)
		if err != nil || len(raw) != 32 {
			return ""
		}
	}

	return strings.ToLower(address)
}
