package script

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Op is one line of an operations script.
type Op struct {
	Op             string         `json:"op"`
	Pool           string         `json:"pool,omitempty"`
	Caller         string         `json:"caller,omitempty"`
	Admin          string         `json:"admin,omitempty"`
	Vault          string         `json:"vault,omitempty"`
	Mint           string         `json:"mint,omitempty"`
	FeeNumerator   uint64         `json:"fee_numerator,omitempty"`
	FeeDenominator uint64         `json:"fee_denominator,omitempty"`
	Account        string         `json:"account,omitempty"`
	Receipt        string         `json:"receipt,omitempty"`
	Class          *int           `json:"class,omitempty"`
	Label          string         `json:"label,omitempty"`
	Weight         *uint64        `json:"weight,omitempty"`
	Amount         uint64         `json:"amount,omitempty"`
	Updates        []WeightUpdate `json:"updates,omitempty"`
}

// WeightUpdate is a reweight entry; Receipt may be an address or a label.
type WeightUpdate struct {
	Receipt string `json:"receipt"`
	Weight  uint64 `json:"weight"`
}

// Script operations.
const (
	OpCreatePool  = "create_pool"
	OpFund        = "fund"
	OpAddClass    = "add_class"
	OpRemoveClass = "remove_class"
	OpReweight    = "reweight"
	OpStake       = "stake"
	OpUnstake     = "unstake"
)

// ParseOp decodes one script line.
func ParseOp(line []byte) (Op, error) {
	var op Op
	if err := json.Unmarshal(line, &op); err != nil {
		return Op{}, fmt.Errorf("parse op: %w", err)
	}
	op.Op = strings.ToLower(strings.TrimSpace(op.Op))
	switch op.Op {
	case OpCreatePool, OpFund, OpAddClass, OpRemoveClass, OpReweight, OpStake, OpUnstake:
	case "":
		return Op{}, fmt.Errorf("missing op")
	default:
		return Op{}, fmt.Errorf("unknown op %q", op.Op)
	}
	return op, nil
}

func parseAddress(field, value string) (common.Address, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return common.Address{}, fmt.Errorf("%s is required", field)
	}
	if !common.IsHexAddress(value) {
		return common.Address{}, fmt.Errorf("invalid %s: %s", field, value)
	}
	return common.HexToAddress(value), nil
}
