package report

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"stakeVault/internal/staking"
)

func TestFormatAmount(t *testing.T) {
	cases := []struct {
		value    int64
		decimals uint8
		want     string
	}{
		{1234567, 6, "1.234567"},
		{-5, 2, "-0.05"},
		{42, 0, "42"},
	}
	for _, c := range cases {
		if got := FormatAmount(big.NewInt(c.value), c.decimals); got != c.want {
			t.Fatalf("format %d/%d: %s != %s", c.value, c.decimals, got, c.want)
		}
	}
	if got := FormatAmount(nil, 6); got != "0" {
		t.Fatalf("nil format: %s", got)
	}
}

func TestBuildReport(t *testing.T) {
	admin := common.HexToAddress("0xadadadadadadadadadadadadadadadadadadadad")
	p, err := staking.NewPool(
		common.HexToAddress("0x1111111111111111111111111111111111111111"),
		admin,
		common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"),
		common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"),
		3, 10_000,
	)
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	a, _, err := p.AddDerivedClass(admin, 200_000_000)
	if err != nil {
		t.Fatalf("add class: %v", err)
	}
	b, _, err := p.AddDerivedClass(admin, 50_000_000)
	if err != nil {
		t.Fatalf("add class: %v", err)
	}
	p.Classes[a].Supply = 100
	p.Classes[b].Supply = 200

	quotes, err := staking.Quote(p, 300)
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	rep, err := Build(p, 300, quotes, 0)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	if rep.Redeemable != "300" || rep.Dust != "0" {
		t.Fatalf("totals mismatch: %+v", rep)
	}
	if rep.WeightedTotal != "30000000000" {
		t.Fatalf("weighted total mismatch: %s", rep.WeightedTotal)
	}
	if rep.Classes[0].Redeemable != "200" || rep.Classes[1].Redeemable != "100" {
		t.Fatalf("class redeem mismatch: %+v", rep.Classes)
	}
	if rep.Classes[0].PerReceipt != "2.000000000000000000" {
		t.Fatalf("per receipt mismatch: %s", rep.Classes[0].PerReceipt)
	}
	if rep.Classes[1].RelativeTo0 != "0.250000000000000000" {
		t.Fatalf("relative rate mismatch: %s", rep.Classes[1].RelativeTo0)
	}
}
