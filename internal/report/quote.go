package report

import (
	"math/big"

	"stakeVault/internal/staking"
)

// ClassRow is one line of a pool quote report.
type ClassRow struct {
	Index       int    `json:"index"`
	Receipt     string `json:"receipt"`
	Weight      uint64 `json:"weight"`
	Supply      string `json:"supply"`
	Redeemable  string `json:"redeemable"`
	PerReceipt  string `json:"per_receipt"`
	VaultShare  string `json:"vault_share"`
	RelativeTo0 string `json:"rate_vs_class0,omitempty"`
}

// PoolReport summarizes a pool's redemption state.
type PoolReport struct {
	Pool          string     `json:"pool"`
	Vault         string     `json:"vault_balance"`
	Redeemable    string     `json:"redeemable_total"`
	Dust          string     `json:"dust"`
	WeightedTotal string     `json:"weighted_supply"`
	Classes       []ClassRow `json:"classes"`
}

// Build turns quotes into a report. Amounts are formatted with decimals.
func Build(p *staking.Pool, vaultBalance uint64, quotes []staking.ClassQuote, decimals uint8) (PoolReport, error) {
	total, err := staking.TotalWeighted(p)
	if err != nil {
		return PoolReport{}, err
	}

	vault := new(big.Int).SetUint64(vaultBalance)
	redeemable := new(big.Int)
	scale := big.NewInt(staking.QuoteScale)
	var firstRate *big.Int

	rows := make([]ClassRow, 0, len(quotes))
	for _, q := range quotes {
		redeem := new(big.Int).SetUint64(q.Redeem)
		redeemable.Add(redeemable, redeem)

		perUnit := q.PerUnit.ToBig()
		row := ClassRow{
			Index:      q.Index,
			Receipt:    q.Class.Receipt.Hex(),
			Weight:     q.Class.Weight,
			Supply:     FormatAmount(new(big.Int).SetUint64(q.Class.Supply), decimals),
			Redeemable: FormatAmount(redeem, decimals),
			PerReceipt: Ratio(perUnit, scale),
			VaultShare: Ratio(redeem, vault),
		}
		if firstRate == nil {
			firstRate = perUnit
		} else {
			row.RelativeTo0 = Ratio(perUnit, firstRate)
		}
		rows = append(rows, row)
	}

	return PoolReport{
		Pool:          p.Address.Hex(),
		Vault:         FormatAmount(vault, decimals),
		Redeemable:    FormatAmount(redeemable, decimals),
		Dust:          FormatAmount(new(big.Int).Sub(vault, redeemable), decimals),
		WeightedTotal: total.ToBig().String(),
		Classes:       rows,
	}, nil
}
