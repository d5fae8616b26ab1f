package engine

import (
	"math/big"
)

// DefaultDecimals is assumed for tokens without configured precision.
const DefaultDecimals = 18

// FormatAmount renders a smallest-unit amount as a human readable quantity
// with six fractional digits, suffixed with the token name.
func FormatAmount(amount *big.Int, token Token, decimals int) string {
	if amount == nil {
		amount = new(big.Int)
	}
	if decimals <= 0 {
		decimals = DefaultDecimals
	}
	denom := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	value := new(big.Float).Quo(new(big.Float).SetInt(amount), new(big.Float).SetInt(denom))
	text := value.Text('f', 6)
	if token.IsNative() {
		return text + " " + string(NativeToken)
	}
	return text + " tokens"
}
