package pricing

import (
	"math/big"
	"strings"
)

// FormatDisplayAmount renders a wei string as a human-readable ether value
// truncated to at most decimals fractional digits. Display only; the output
// must never feed back into arithmetic.
func FormatDisplayAmount(weiString string, decimals int) (string, error) {
	v, err := ParseWei(weiString)
	if err != nil {
		return "", err
	}
	if decimals < 0 {
		decimals = 0
	}
	if decimals > 18 {
		decimals = 18
	}

	whole, frac := new(big.Int).QuoRem(v, weiPerEther, new(big.Int))
	if decimals == 0 || frac.Sign() == 0 {
		return whole.String(), nil
	}

	// Pad the remainder to 18 digits, truncate, then drop trailing zeros.
	digits := frac.String()
	digits = strings.Repeat("0", 18-len(digits)) + digits
	digits = strings.TrimRight(digits[:decimals], "0")
	if digits == "" {
		return whole.String(), nil
	}
	return whole.String() + "." + digits, nil
}
