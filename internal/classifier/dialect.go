package classifier

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/devlongs/mev-backrunner/internal/dex/archer"
	"github.com/devlongs/mev-backrunner/internal/dex/uniswapv2"
	"github.com/devlongs/mev-backrunner/pkg/types"
)

// Dialect enumerates the router calldata dialects the classifier understands
type Dialect int

const (
	// DialectPlain is the Uniswap V2 style router interface
	DialectPlain Dialect = iota
	// DialectTipped wraps a V2 trade with a miner tip
	DialectTipped
)

// AllDialects is the default decode order
var AllDialects = []Dialect{DialectPlain, DialectTipped}

func (d Dialect) String() string {
	switch d {
	case DialectPlain:
		return uniswapv2.DialectName
	case DialectTipped:
		return archer.DialectName
	default:
		return "unknown"
	}
}

// decode interprets calldata sent to `to` with `value` attached
func (d Dialect) decode(to common.Address, value *big.Int, data []byte) (*types.TradeDescriptor, bool) {
	switch d {
	case DialectPlain:
		return uniswapv2.DecodeRouterCall(to, value, data)
	case DialectTipped:
		trade, ok := archer.DecodeRouterCall(data)
		if !ok {
			return nil, false
		}
		if trade.Native && trade.AmountIn.Sign() == 0 && value != nil {
			trade.AmountIn = nativeInput(value, trade.Tip)
		}
		return trade, true
	default:
		return nil, false
	}
}

// nativeInput is the swapped part of a tipped call's value, which also pays the tip
func nativeInput(value, tip *big.Int) *big.Int {
	amount := new(big.Int).Set(value)
	if tip != nil {
		amount.Sub(amount, tip)
	}
	if amount.Sign() < 0 {
		amount.SetInt64(0)
	}
	return amount
}
