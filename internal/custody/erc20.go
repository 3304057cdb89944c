package custody

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// 4-byte function selectors, keccak256 of the canonical signatures.
const (
	transferSelector  = "a9059cbb" // transfer(address,uint256)
	balanceOfSelector = "70a08231" // balanceOf(address)
)

// encodeTransfer builds the calldata for transfer(to, amount).
func encodeTransfer(to string, amount *big.Int) (string, error) {
	addr, err := padAddress(to)
	if err != nil {
		return "", err
	}
	return "0x" + transferSelector + addr + padUint(amount), nil
}

// encodeBalanceOf builds the calldata for balanceOf(owner).
func encodeBalanceOf(owner string) (string, error) {
	addr, err := padAddress(owner)
	if err != nil {
		return "", err
	}
	return "0x" + balanceOfSelector + addr, nil
}

// padAddress validates a hex address and left-pads it to a 32-byte ABI word.
func padAddress(addr string) (string, error) {
	hexPart := strings.TrimPrefix(strings.ToLower(addr), "0x")
	if len(hexPart) != 40 {
		return "", fmt.Errorf("invalid address %q", addr)
	}
	for _, r := range hexPart {
		if !((r >= '0' && r <= '9') || (r >= 'a' && r <= 'f')) {
			return "", fmt.Errorf("invalid address %q", addr)
		}
	}
	return strings.Repeat("0", 24) + hexPart, nil
}

func padUint(v *big.Int) string {
	s := v.Text(16)
	return strings.Repeat("0", 64-len(s)) + s
}

// toBaseUnits converts a whole-token amount to base units (10^decimals).
// Amounts with more fractional digits than the token supports are rejected
// rather than silently truncated.
func toBaseUnits(amount decimal.Decimal, decimals int32) (*big.Int, error) {
	shifted := amount.Shift(decimals)
	if !shifted.IsInteger() {
		return nil, fmt.Errorf("amount %s has more than %d decimal places", amount, decimals)
	}
	if shifted.Sign() < 0 {
		return nil, fmt.Errorf("amount %s is negative", amount)
	}
	return shifted.BigInt(), nil
}

// fromBaseUnits converts base units back to whole tokens.
func fromBaseUnits(v *big.Int, decimals int32) decimal.Decimal {
	return decimal.NewFromBigInt(v, -decimals)
}

// parseHexWord decodes a 0x-prefixed ABI return word into an integer.
func parseHexWord(s string) (*big.Int, error) {
	hexPart := strings.TrimPrefix(strings.TrimSpace(s), "0x")
	if hexPart == "" {
		return nil, fmt.Errorf("empty hex value")
	}
	v, ok := new(big.Int).SetString(hexPart, 16)
	if !ok {
		return nil, fmt.Errorf("invalid hex value %q", s)
	}
	return v, nil
}
