package utils

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vitwit/checkout/types"
)

var (
	base58Pattern = regexp.MustCompile("^[1-9A-HJ-NP-Za-km-z]+$")
	bech32Pattern = regexp.MustCompile("^(bc1|tb1)[02-9ac-hj-np-z]{11,71}$")
	hexPattern    = regexp.MustCompile("^[0-9a-fA-F]+$")
)

// ValidateAddressForNetwork checks the shape of a receiving address.
func ValidateAddressForNetwork(address string, network types.Network) error {
	if address == "" {
		return fmt.Errorf("address cannot be empty")
	}

	switch network.Family() {
	case types.ChainEVM:
		if !common.IsHexAddress(address) || !strings.HasPrefix(address, "0x") {
			return fmt.Errorf("EVM address must be 0x followed by 40 hex characters")
		}

	case types.ChainBitcoin:
		lower := strings.ToLower(address)
		if strings.HasPrefix(lower, "bc1") || strings.HasPrefix(lower, "tb1") {
			if !bech32Pattern.MatchString(lower) {
				return fmt.Errorf("Bitcoin bech32 address is malformed")
			}
			return nil
		}
		if len(address) < 26 || len(address) > 35 || !base58Pattern.MatchString(address) {
			return fmt.Errorf("Bitcoin address must be valid base58")
		}

	case types.ChainTron:
		if len(address) != 34 || !strings.HasPrefix(address, "T") || !base58Pattern.MatchString(address) {
			return fmt.Errorf("Tron address must be 34 base58 characters starting with T")
		}

	default:
		return fmt.Errorf("unsupported network for address validation: %s", network)
	}

	return nil
}

// ValidateTransactionHash checks an EVM transaction hash.
func ValidateTransactionHash(hash string) error {
	if hash == "" {
		return fmt.Errorf("transaction hash cannot be empty")
	}
	if !strings.HasPrefix(hash, "0x") {
		return fmt.Errorf("EVM transaction hash must start with 0x")
	}
	if len(hash) != 66 {
		return fmt.Errorf("EVM transaction hash must be 66 characters long")
	}
	if !hexPattern.MatchString(hash[2:]) {
		return fmt.Errorf("EVM transaction hash must be valid hex")
	}
	return nil
}
