// Package archer decodes the tipped-swap router dialect, where the user's trade
// is wrapped together with a miner tip and forwarded to an inner V2-style router.
package archer

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/devlongs/mev-backrunner/pkg/types"
)

// DialectName tags descriptors decoded from tipped router calldata
const DialectName = "archer_tipped_router"

// Router method names
const (
	SwapExactTokensForTokensWithTipAmount = "swapExactTokensForTokensWithTipAmount"
	SwapExactETHForTokensWithTipAmount    = "swapExactETHForTokensWithTipAmount"
	SwapExactTokensForETHAndTipAmount     = "swapExactTokensForETHAndTipAmount"
)

const tradeTuple = `{"name":"trade","type":"tuple","components":[{"name":"amountIn","type":"uint256"},{"name":"amountOut","type":"uint256"},{"name":"path","type":"address[]"},{"name":"to","type":"address"},{"name":"deadline","type":"uint256"}]}`

var routerABI = mustParseABI(`[
{"name":"` + SwapExactTokensForTokensWithTipAmount + `","type":"function","stateMutability":"payable","inputs":[{"name":"router","type":"address"},` + tradeTuple + `,{"name":"tipAmount","type":"uint256"}],"outputs":[]},
{"name":"` + SwapExactETHForTokensWithTipAmount + `","type":"function","stateMutability":"payable","inputs":[{"name":"router","type":"address"},` + tradeTuple + `,{"name":"tipAmount","type":"uint256"}],"outputs":[]},
{"name":"` + SwapExactTokensForETHAndTipAmount + `","type":"function","stateMutability":"payable","inputs":[{"name":"router","type":"address"},` + tradeTuple + `,{"name":"tipAmount","type":"uint256"}],"outputs":[]}
]`)

var supportedMethods = map[string]bool{
	SwapExactTokensForTokensWithTipAmount: false,
	SwapExactETHForTokensWithTipAmount:    true,
	SwapExactTokensForETHAndTipAmount:     false,
}

// Trade mirrors the router's Trade struct
type Trade struct {
	AmountIn  *big.Int
	AmountOut *big.Int
	Path      []common.Address
	To        common.Address
	Deadline  *big.Int
}

// DecodeRouterCall decodes tipped router calldata. The descriptor's Router is the
// inner router the trade is forwarded to.
func DecodeRouterCall(data []byte) (*types.TradeDescriptor, bool) {
	if len(data) < 4 {
		return nil, false
	}

	method, err := routerABI.MethodById(data[:4])
	if err != nil {
		return nil, false
	}
	native, ok := supportedMethods[method.Name]
	if !ok {
		return nil, false
	}

	args, err := method.Inputs.Unpack(data[4:])
	if err != nil || len(args) != 3 {
		return nil, false
	}

	router, ok := args[0].(common.Address)
	if !ok {
		return nil, false
	}
	trade, ok := convertTrade(args[1])
	if !ok || len(trade.Path) < 2 || trade.AmountIn == nil || trade.AmountOut == nil || trade.Deadline == nil {
		return nil, false
	}
	tip, _ := args[2].(*big.Int)

	return &types.TradeDescriptor{
		Dialect:      DialectName,
		Method:       method.Name,
		Router:       router,
		Path:         trade.Path,
		AmountIn:     trade.AmountIn,
		AmountOutMin: trade.AmountOut,
		Deadline:     trade.Deadline,
		Tip:          tip,
		Native:       native,
	}, true
}

// EncodeSwap packs calldata for one of the tipped router methods
func EncodeSwap(method string, router common.Address, trade Trade, tip *big.Int) ([]byte, error) {
	if _, ok := supportedMethods[method]; !ok {
		return nil, fmt.Errorf("unsupported tipped router method %q", method)
	}
	return routerABI.Pack(method, router, trade, tip)
}

func convertTrade(raw interface{}) (trade *Trade, ok bool) {
	defer func() {
		if recover() != nil {
			trade, ok = nil, false
		}
	}()
	return abi.ConvertType(raw, new(Trade)).(*Trade), true
}

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("invalid tipped router ABI: %v", err))
	}
	return parsed
}
