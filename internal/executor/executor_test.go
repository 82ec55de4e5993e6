package executor

import (
	"encoding/hex"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/devlongs/mev-backrunner/pkg/types"
)

var (
	contract = common.HexToAddress("0x00000000000000000000000000000000000bacc0")
	wethAddr = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	usdcAddr = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	pool0    = common.HexToAddress("0xB4e16d0168e52d35CaCD2c6185b44281Ec28C9Dc")
	pool1    = common.HexToAddress("0x397FF1542f962076d0BFE58eA045FfA2d347ACa0")
)

type fakeRegistry struct{}

func (fakeRegistry) Pool(id int) (*types.Pool, bool) {
	switch id {
	case 0:
		return &types.Pool{ID: 0, Address: pool0}, true
	case 1:
		return &types.Pool{ID: 1, Address: pool1}, true
	}
	return nil, false
}

func (fakeRegistry) Token(id int) (*types.Token, bool) {
	switch id {
	case 0:
		return &types.Token{ID: 0, Address: wethAddr, Decimals: 18}, true
	case 1:
		return &types.Token{ID: 1, Address: usdcAddr, Decimals: 6}, true
	}
	return nil, false
}

func newTestExecutor(t *testing.T) *Executor {
	t.Helper()

	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	ex, err := NewExecutor(Config{
		Contract:   contract,
		PrivateKey: "0x" + hex.EncodeToString(crypto.FromECDSA(key)),
		ChainID:    big.NewInt(1),
	}, fakeRegistry{})
	if err != nil {
		t.Fatalf("NewExecutor: %v", err)
	}
	if ex.Address() != crypto.PubkeyToAddress(key.PublicKey) {
		t.Fatalf("Address() = %s; want key address", ex.Address().Hex())
	}
	return ex
}

func testOpportunity() *types.Opportunity {
	return &types.Opportunity{
		Path:        &types.Path{ID: 7, TokenIDs: []int{0, 1, 0}, PoolIDs: []int{0, 1}, Enabled: true},
		InputAmount: big.NewInt(1_000_000),
		Amounts:     []*big.Int{big.NewInt(1_000_000), big.NewInt(1_900_000), big.NewInt(1_050_000)},
		GasAmount:   180_000,
		GasPrice:    big.NewInt(30e9),
		NetProfit:   big.NewInt(50_000),
	}
}

func TestEncodeExecute(t *testing.T) {
	ex := newTestExecutor(t)

	data, err := ex.EncodeExecute(testOpportunity())
	if err != nil {
		t.Fatalf("EncodeExecute: %v", err)
	}

	method, err := contractABI.MethodById(data[:4])
	if err != nil {
		t.Fatalf("MethodById: %v", err)
	}
	if method.Name != "execute" {
		t.Errorf("method = %s; want execute", method.Name)
	}

	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		t.Fatalf("Unpack: %v", err)
	}
	if got := args[0].(*big.Int); got.Int64() != 1_000_000 {
		t.Errorf("amountIn = %s; want 1000000", got)
	}
	if got := args[1].(*big.Int); got.Int64() != 1_050_000 {
		t.Errorf("minAmountOut = %s; want 1050000", got)
	}

	pools := args[2].([]common.Address)
	if len(pools) != 2 || pools[0] != pool0 || pools[1] != pool1 {
		t.Errorf("pools = %v; want [%s %s]", pools, pool0.Hex(), pool1.Hex())
	}
	tokens := args[3].([]common.Address)
	if len(tokens) != 3 || tokens[0] != wethAddr || tokens[1] != usdcAddr || tokens[2] != wethAddr {
		t.Errorf("tokens = %v; want weth, usdc, weth", tokens)
	}
}

func TestEncodeExecuteUnknownPool(t *testing.T) {
	ex := newTestExecutor(t)
	opp := testOpportunity()
	opp.Path.PoolIDs = []int{0, 5}

	if _, err := ex.EncodeExecute(opp); err == nil {
		t.Error("EncodeExecute with unknown pool returned nil error")
	}
}

func TestAttach(t *testing.T) {
	ex := newTestExecutor(t)
	opp := testOpportunity()
	target := []byte{0x02, 0xf8, 0x01}

	if err := ex.Attach(opp, target, 11, Fees{GasTipCap: big.NewInt(2e9)}); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	if len(opp.BackrunTxs) != 2 {
		t.Fatalf("len(BackrunTxs) = %d; want 2", len(opp.BackrunTxs))
	}
	if string(opp.BackrunTxs[0]) != string(target) {
		t.Error("target transaction is not first in the bundle")
	}

	tx := new(ethtypes.Transaction)
	if err := tx.UnmarshalBinary(opp.BackrunTxs[1]); err != nil {
		t.Fatalf("UnmarshalBinary: %v", err)
	}

	sender, err := ethtypes.Sender(ethtypes.LatestSignerForChainID(big.NewInt(1)), tx)
	if err != nil {
		t.Fatalf("Sender: %v", err)
	}
	if sender != ex.Address() {
		t.Errorf("sender = %s; want %s", sender.Hex(), ex.Address().Hex())
	}
	if tx.Type() != ethtypes.DynamicFeeTxType {
		t.Errorf("tx type = %d; want dynamic fee", tx.Type())
	}
	if tx.Nonce() != 11 || tx.Gas() != 180_000 || *tx.To() != contract {
		t.Errorf("tx = nonce %d gas %d to %s; want 11, 180000, %s", tx.Nonce(), tx.Gas(), tx.To().Hex(), contract.Hex())
	}
	if tx.GasFeeCap().Cmp(big.NewInt(30e9)) != 0 || tx.GasTipCap().Cmp(big.NewInt(2e9)) != 0 {
		t.Errorf("fees = cap %s tip %s; want 30 gwei and 2 gwei", tx.GasFeeCap(), tx.GasTipCap())
	}
}

func TestAttachBlockLevel(t *testing.T) {
	ex := newTestExecutor(t)
	opp := testOpportunity()

	if err := ex.Attach(opp, nil, 0, Fees{}); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	if len(opp.BackrunTxs) != 1 {
		t.Errorf("len(BackrunTxs) = %d; want 1 without a target", len(opp.BackrunTxs))
	}
}

func TestBuildBundle(t *testing.T) {
	ex := newTestExecutor(t)

	triggerHash := common.HexToHash("0x0a")
	missingHash := common.HexToHash("0x0b")
	target := []byte{0x02, 0xf8, 0x01}

	triggered := testOpportunity()
	triggered.TriggerHash = &triggerHash
	block := testOpportunity()
	orphan := testOpportunity()
	orphan.TriggerHash = &missingHash
	broken := testOpportunity()
	broken.Path = &types.Path{ID: 9, TokenIDs: []int{0, 1, 0}, PoolIDs: []int{0, 5}}

	bundle, included := ex.BuildBundle(
		[]*types.Opportunity{triggered, orphan, broken, block},
		map[common.Hash][]byte{triggerHash: target},
		5,
		Fees{},
	)

	if len(included) != 2 || included[0] != triggered || included[1] != block {
		t.Fatalf("included = %v; want the triggered and block-level opportunities", included)
	}
	if len(bundle) != 3 {
		t.Fatalf("len(bundle) = %d; want 3", len(bundle))
	}
	if string(bundle[0]) != string(target) {
		t.Error("bundle does not start with the target transaction")
	}

	for i, want := range map[int]uint64{1: 5, 2: 6} {
		tx := new(ethtypes.Transaction)
		if err := tx.UnmarshalBinary(bundle[i]); err != nil {
			t.Fatalf("UnmarshalBinary(bundle[%d]): %v", i, err)
		}
		if tx.Nonce() != want {
			t.Errorf("bundle[%d] nonce = %d; want %d", i, tx.Nonce(), want)
		}
	}
}

func TestNewExecutorRejectsBadConfig(t *testing.T) {
	if _, err := NewExecutor(Config{Contract: contract, PrivateKey: "zz", ChainID: big.NewInt(1)}, fakeRegistry{}); err == nil {
		t.Error("NewExecutor with bad key returned nil error")
	}
	if _, err := NewExecutor(Config{Contract: contract, PrivateKey: "01"}, fakeRegistry{}); err == nil {
		t.Error("NewExecutor without chain id returned nil error")
	}
}
