package staking

import (
	"github.com/holiman/uint256"
)

// ComputeFee splits a deposit into the fee retained by the vault and the net
// amount minted as receipts. fee = floor(amount*num/den) with a 256-bit
// intermediate, so every uint64 operand pair is representable.
func ComputeFee(amount, feeNumerator, feeDenominator uint64) (fee uint64, net uint64, err error) {
	if feeDenominator == 0 || feeNumerator > feeDenominator {
		return 0, 0, errorf(InvalidFee, "%d/%d", feeNumerator, feeDenominator)
	}

	product, overflow := new(uint256.Int).MulOverflow(uint256.NewInt(amount), uint256.NewInt(feeNumerator))
	if overflow {
		return 0, 0, errorf(MathOverflow, "fee product")
	}
	quotient := new(uint256.Int).Div(product, uint256.NewInt(feeDenominator))
	if !quotient.IsUint64() {
		return 0, 0, errorf(MathOverflow, "fee exceeds 64 bits")
	}

	fee = quotient.Uint64()
	if fee > amount {
		return 0, 0, errorf(Underflow, "fee %d exceeds amount %d", fee, amount)
	}
	return fee, amount - fee, nil
}

// TotalWeighted returns the weighted supply: the sum of weight*supply over
// every live class with outstanding receipts.
func TotalWeighted(p *Pool) (*uint256.Int, error) {
	total := new(uint256.Int)
	for _, class := range p.Live() {
		if class.Supply == 0 {
			continue
		}
		weighted, overflow := new(uint256.Int).MulOverflow(uint256.NewInt(class.Weight), uint256.NewInt(class.Supply))
		if overflow {
			return nil, errorf(MathOverflow, "weighted supply of %s", class.Receipt.Hex())
		}
		if _, overflow := total.AddOverflow(total, weighted); overflow {
			return nil, errorf(MathOverflow, "total weighted supply")
		}
	}
	return total, nil
}

// ComputeRedeem returns the main-asset amount paid for burning lpAmount
// receipts of the class at index against a vault holding vaultBalance:
//
//	floor(vault * lpAmount * weight / totalWeighted)
//
// All three factors are multiplied before the single floor division, so
// rounding dust always stays in the vault.
func ComputeRedeem(p *Pool, index int, lpAmount uint64, vaultBalance uint64) (uint64, error) {
	class, err := p.Get(index)
	if err != nil {
		return 0, err
	}
	if class.Weight == 0 {
		return 0, errorf(ZeroWeight, "class %s", class.Receipt.Hex())
	}
	if lpAmount > class.Supply {
		return 0, errorf(InsufficientLiquidity, "burn %d exceeds class supply %d", lpAmount, class.Supply)
	}

	total, err := TotalWeighted(p)
	if err != nil {
		return 0, err
	}
	if total.IsZero() {
		return 0, errorf(InsufficientLiquidity, "no weighted supply outstanding")
	}

	return mulDiv3(vaultBalance, lpAmount, class.Weight, total)
}

// mulDiv3 computes floor(a*b*c/d). The product of three uint64 values is
// below 2^192 and always fits.
func mulDiv3(a, b, c uint64, d *uint256.Int) (uint64, error) {
	if d.IsZero() {
		return 0, errorf(InsufficientLiquidity, "zero divisor")
	}
	product, overflow := new(uint256.Int).MulOverflow(uint256.NewInt(a), uint256.NewInt(b))
	if overflow {
		return 0, errorf(MathOverflow, "redeem product")
	}
	if _, overflow := product.MulOverflow(product, uint256.NewInt(c)); overflow {
		return 0, errorf(MathOverflow, "redeem product")
	}
	quotient := new(uint256.Int).Div(product, d)
	if !quotient.IsUint64() {
		return 0, errorf(MathOverflow, "redeem exceeds 64 bits")
	}
	return quotient.Uint64(), nil
}

func checkedAdd(a, b uint64) (uint64, error) {
	sum := a + b
	if sum < a {
		return 0, errorf(MathOverflow, "%d + %d", a, b)
	}
	return sum, nil
}

func checkedSub(a, b uint64) (uint64, error) {
	if b > a {
		return 0, errorf(Underflow, "%d - %d", a, b)
	}
	return a - b, nil
}

// ClassQuote is the value of redeeming a class's entire outstanding supply
// under current weights.
type ClassQuote struct {
	Index   int
	Class   Class
	Redeem  uint64
	PerUnit *uint256.Int // vault units per receipt, scaled by QuoteScale
}

// QuoteScale is the fixed-point scale applied to ClassQuote.PerUnit.
const QuoteScale = 1_000_000_000

// Quote values every live class against vaultBalance without mutating the
// pool. The sum of Redeem over all classes never exceeds vaultBalance.
func Quote(p *Pool, vaultBalance uint64) ([]ClassQuote, error) {
	total, err := TotalWeighted(p)
	if err != nil {
		return nil, err
	}

	quotes := make([]ClassQuote, 0, p.ClassCount)
	for i, class := range p.Live() {
		q := ClassQuote{Index: i, Class: class, PerUnit: new(uint256.Int)}
		if class.Supply > 0 && !total.IsZero() {
			redeem, err := mulDiv3(vaultBalance, class.Supply, class.Weight, total)
			if err != nil {
				return nil, err
			}
			q.Redeem = redeem
		}
		if !total.IsZero() {
			// PerUnit = vault * weight * QuoteScale / total, at most 2^64 * 2^64 * 2^30.
			perUnit := new(uint256.Int).Mul(uint256.NewInt(vaultBalance), uint256.NewInt(class.Weight))
			perUnit.Mul(perUnit, uint256.NewInt(QuoteScale))
			q.PerUnit.Div(perUnit, total)
		}
		quotes = append(quotes, q)
	}
	return quotes, nil
}
