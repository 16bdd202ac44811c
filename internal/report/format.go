package report

import (
	"math/big"
)

const ratioScale = 18

// FormatAmount renders an integer token amount with the given decimals.
func FormatAmount(value *big.Int, decimals uint8) string {
	if value == nil {
		return "0"
	}
	if decimals == 0 {
		return value.String()
	}
	sign := value.Sign()
	abs := new(big.Int).Abs(value)
	denom := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	rat := new(big.Rat).SetFrac(abs, denom)
	text := rat.FloatString(int(decimals))
	if sign < 0 {
		return "-" + text
	}
	return text
}

// Ratio renders num/den with 18 decimal places, or "" when undefined.
func Ratio(num, den *big.Int) string {
	if num == nil || den == nil || den.Sign() == 0 {
		return ""
	}
	return new(big.Rat).SetFrac(num, den).FloatString(ratioScale)
}
