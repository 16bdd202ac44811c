package chain

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
)

type stubCaller struct {
	balance  *big.Int
	decimals uint8
	lastTo   common.Address
}

func (s *stubCaller) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	parsed, err := ERC20ABI()
	if err != nil {
		return nil, err
	}
	s.lastTo = *msg.To
	method, err := parsed.MethodById(msg.Data[:4])
	if err != nil {
		return nil, err
	}
	switch method.Name {
	case "balanceOf":
		return method.Outputs.Pack(s.balance)
	default:
		return method.Outputs.Pack(s.decimals)
	}
}

func TestTokenBalanceAndDecimals(t *testing.T) {
	token := common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	vault := common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	stub := &stubCaller{balance: big.NewInt(300), decimals: 6}

	bal, err := TokenBalance(context.Background(), stub, token, vault, nil)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if bal.Int64() != 300 {
		t.Fatalf("balance mismatch: %s", bal)
	}
	if stub.lastTo != token {
		t.Fatalf("call target mismatch: %s", stub.lastTo.Hex())
	}

	decimals, err := TokenDecimals(context.Background(), stub, token)
	if err != nil {
		t.Fatalf("decimals: %v", err)
	}
	if decimals != 6 {
		t.Fatalf("decimals mismatch: %d", decimals)
	}
}
