package uniswapv2

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
)

var (
	testRouter = common.HexToAddress("0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D")
	testWETH   = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	testDAI    = common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F")
)

func TestDecodeRouterCallTokensForTokens(t *testing.T) {
	amountIn := big.NewInt(5_000)
	data, err := EncodeSwap(SwapExactTokensForTokens, amountIn, big.NewInt(42), []common.Address{testWETH, testDAI}, testRouter, big.NewInt(1_700_000_000))
	if err != nil {
		t.Fatalf("EncodeSwap: %v", err)
	}

	trade, ok := DecodeRouterCall(testRouter, big.NewInt(0), data)
	if !ok {
		t.Fatal("DecodeRouterCall returned no match")
	}
	if trade.Method != SwapExactTokensForTokens {
		t.Errorf("Method = %s; want %s", trade.Method, SwapExactTokensForTokens)
	}
	if trade.AmountIn.Cmp(amountIn) != 0 {
		t.Errorf("AmountIn = %s; want %s", trade.AmountIn, amountIn)
	}
	if trade.AmountOutMin.Int64() != 42 {
		t.Errorf("AmountOutMin = %s; want 42", trade.AmountOutMin)
	}
	if len(trade.Path) != 2 || trade.Path[0] != testWETH || trade.Path[1] != testDAI {
		t.Errorf("Path = %v; want [%s %s]", trade.Path, testWETH, testDAI)
	}
	if trade.Native {
		t.Error("Native = true; want false")
	}
	if trade.Dialect != DialectName {
		t.Errorf("Dialect = %s; want %s", trade.Dialect, DialectName)
	}
}

func TestDecodeRouterCallNativeInput(t *testing.T) {
	value := big.NewInt(1e18)
	data, err := EncodeSwap(SwapExactETHForTokensSupportingFee, nil, big.NewInt(1), []common.Address{testWETH, testDAI}, testRouter, big.NewInt(1))
	if err != nil {
		t.Fatalf("EncodeSwap: %v", err)
	}

	trade, ok := DecodeRouterCall(testRouter, value, data)
	if !ok {
		t.Fatal("DecodeRouterCall returned no match")
	}
	if !trade.Native {
		t.Error("Native = false; want true")
	}
	if trade.AmountIn.Cmp(value) != 0 {
		t.Errorf("AmountIn = %s; want tx value %s", trade.AmountIn, value)
	}
}

func TestDecodeRouterCallNoMatch(t *testing.T) {
	cases := map[string][]byte{
		"empty":            nil,
		"short":            {0x38, 0xed},
		"unknown selector": common.Hex2Bytes("a9059cbb0000000000000000000000000000000000000000000000000000000000000001"),
		"truncated args":   common.Hex2Bytes("38ed17390000000000000000000000000000000000000000000000000000000000000001"),
	}

	for name, data := range cases {
		if _, ok := DecodeRouterCall(testRouter, big.NewInt(0), data); ok {
			t.Errorf("%s: DecodeRouterCall matched; want no match", name)
		}
	}
}

func TestEncodeSwapUnsupported(t *testing.T) {
	if _, err := EncodeSwap("addLiquidity", nil, nil, nil, common.Address{}, nil); err == nil {
		t.Error("EncodeSwap(addLiquidity) returned nil error")
	}
}

func TestDecodeReserves(t *testing.T) {
	data := make([]byte, 96)
	big.NewInt(1000).FillBytes(data[0:32])
	big.NewInt(3_000_000).FillBytes(data[32:64])

	r0, r1, err := DecodeReserves(data)
	if err != nil {
		t.Fatalf("DecodeReserves: %v", err)
	}
	if r0.Int64() != 1000 || r1.Int64() != 3_000_000 {
		t.Errorf("reserves = (%s, %s); want (1000, 3000000)", r0, r1)
	}

	if _, _, err := DecodeReserves(data[:40]); err == nil {
		t.Error("DecodeReserves(short) returned nil error")
	}
}

func TestDecodeSync(t *testing.T) {
	pair := common.HexToAddress("0xB4e16d0168e52d35CaCD2c6185b44281Ec28C9Dc")
	data := make([]byte, 64)
	big.NewInt(42).FillBytes(data[0:32])
	big.NewInt(7).FillBytes(data[32:64])

	addr, r0, r1, err := DecodeSync(ethtypes.Log{
		Address: pair,
		Topics:  []common.Hash{SyncEventSignature},
		Data:    data,
	})
	if err != nil {
		t.Fatalf("DecodeSync: %v", err)
	}
	if addr != pair || r0.Int64() != 42 || r1.Int64() != 7 {
		t.Errorf("DecodeSync = (%s, %s, %s); want (%s, 42, 7)", addr.Hex(), r0, r1, pair.Hex())
	}

	other := common.HexToHash("0xd78ad95fa46c994b6551d0da85fc275fe613ce37657fb8d5e3d130840159d822")
	if _, _, _, err := DecodeSync(ethtypes.Log{Address: pair, Topics: []common.Hash{other}, Data: data}); err == nil {
		t.Error("DecodeSync(non-Sync topic) returned nil error")
	}
}

func TestSyncFilter(t *testing.T) {
	pairs := []common.Address{common.HexToAddress("0x01"), common.HexToAddress("0x02")}
	q := SyncFilter(pairs)
	if len(q.Addresses) != 2 || len(q.Topics) != 1 || q.Topics[0][0] != SyncEventSignature {
		t.Errorf("SyncFilter = %+v; want both pairs and the Sync topic", q)
	}
}
