package uniswapv2

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/devlongs/mev-backrunner/pkg/types"
)

// DialectName tags descriptors decoded from plain router calldata
const DialectName = "uniswap_v2_router"

// Router method names
const (
	SwapExactTokensForTokens = "swapExactTokensForTokens"
	SwapExactTokensForETH    = "swapExactTokensForETH"
	SwapExactETHForTokens    = "swapExactETHForTokens"

	SwapExactTokensForTokensSupportingFee = "swapExactTokensForTokensSupportingFeeOnTransferTokens"
	SwapExactTokensForETHSupportingFee    = "swapExactTokensForETHSupportingFeeOnTransferTokens"
	SwapExactETHForTokensSupportingFee    = "swapExactETHForTokensSupportingFeeOnTransferTokens"
)

const routerABIJSON = `[
{"name":"swapExactTokensForTokens","type":"function","stateMutability":"nonpayable","inputs":[{"name":"amountIn","type":"uint256"},{"name":"amountOutMin","type":"uint256"},{"name":"path","type":"address[]"},{"name":"to","type":"address"},{"name":"deadline","type":"uint256"}],"outputs":[{"name":"amounts","type":"uint256[]"}]},
{"name":"swapExactTokensForETH","type":"function","stateMutability":"nonpayable","inputs":[{"name":"amountIn","type":"uint256"},{"name":"amountOutMin","type":"uint256"},{"name":"path","type":"address[]"},{"name":"to","type":"address"},{"name":"deadline","type":"uint256"}],"outputs":[{"name":"amounts","type":"uint256[]"}]},
{"name":"swapExactETHForTokens","type":"function","stateMutability":"payable","inputs":[{"name":"amountOutMin","type":"uint256"},{"name":"path","type":"address[]"},{"name":"to","type":"address"},{"name":"deadline","type":"uint256"}],"outputs":[{"name":"amounts","type":"uint256[]"}]},
{"name":"swapExactTokensForTokensSupportingFeeOnTransferTokens","type":"function","stateMutability":"nonpayable","inputs":[{"name":"amountIn","type":"uint256"},{"name":"amountOutMin","type":"uint256"},{"name":"path","type":"address[]"},{"name":"to","type":"address"},{"name":"deadline","type":"uint256"}],"outputs":[]},
{"name":"swapExactTokensForETHSupportingFeeOnTransferTokens","type":"function","stateMutability":"nonpayable","inputs":[{"name":"amountIn","type":"uint256"},{"name":"amountOutMin","type":"uint256"},{"name":"path","type":"address[]"},{"name":"to","type":"address"},{"name":"deadline","type":"uint256"}],"outputs":[]},
{"name":"swapExactETHForTokensSupportingFeeOnTransferTokens","type":"function","stateMutability":"payable","inputs":[{"name":"amountOutMin","type":"uint256"},{"name":"path","type":"address[]"},{"name":"to","type":"address"},{"name":"deadline","type":"uint256"}],"outputs":[]}
]`

var routerABI = mustParseABI(routerABIJSON)

// supportedMethods maps whitelisted methods to whether they are paid with transaction value
var supportedMethods = map[string]bool{
	SwapExactTokensForTokens:              false,
	SwapExactTokensForETH:                 false,
	SwapExactETHForTokens:                 true,
	SwapExactTokensForTokensSupportingFee: false,
	SwapExactTokensForETHSupportingFee:    false,
	SwapExactETHForTokensSupportingFee:    true,
}

// DecodeRouterCall decodes plain router calldata into a trade descriptor.
// It returns false for unknown or unsupported methods and malformed arguments.
func DecodeRouterCall(router common.Address, value *big.Int, data []byte) (*types.TradeDescriptor, bool) {
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

	args := make(map[string]interface{})
	if err := method.Inputs.UnpackIntoMap(args, data[4:]); err != nil {
		return nil, false
	}

	path, ok := args["path"].([]common.Address)
	if !ok || len(path) < 2 {
		return nil, false
	}
	amountOutMin, _ := args["amountOutMin"].(*big.Int)
	deadline, _ := args["deadline"].(*big.Int)

	var amountIn *big.Int
	if native {
		if value == nil {
			return nil, false
		}
		amountIn = new(big.Int).Set(value)
	} else {
		amountIn, _ = args["amountIn"].(*big.Int)
	}
	if amountIn == nil || amountOutMin == nil || deadline == nil {
		return nil, false
	}

	return &types.TradeDescriptor{
		Dialect:      DialectName,
		Method:       method.Name,
		Router:       router,
		Path:         path,
		AmountIn:     amountIn,
		AmountOutMin: amountOutMin,
		Deadline:     deadline,
		Native:       native,
	}, true
}

// EncodeSwap packs calldata for one of the supported router methods.
// amountIn is ignored for ETH-input methods.
func EncodeSwap(method string, amountIn, amountOutMin *big.Int, path []common.Address, to common.Address, deadline *big.Int) ([]byte, error) {
	native, ok := supportedMethods[method]
	if !ok {
		return nil, fmt.Errorf("unsupported router method %q", method)
	}
	if native {
		return routerABI.Pack(method, amountOutMin, path, to, deadline)
	}
	return routerABI.Pack(method, amountIn, amountOutMin, path, to, deadline)
}

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("invalid router ABI: %v", err))
	}
	return parsed
}
