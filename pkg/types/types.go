package types

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
)

// Token represents an ERC20 token known to the instrument graph
type Token struct {
	ID       int
	Address  common.Address
	Symbol   string
	Decimals uint8
}

// Pool represents a constant-product liquidity pool.
// Tokens[0] is the pair's token0 and Tokens[1] its token1.
type Pool struct {
	ID       int
	Address  common.Address
	Exchange string
	Tokens   [2]int
	Weights  [2]uint32
}

// Has reports whether the pool trades the given token
func (p *Pool) Has(tokenID int) bool {
	return p.Tokens[0] == tokenID || p.Tokens[1] == tokenID
}

// Path is a cyclic route that starts and ends at the base token.
// len(PoolIDs) == len(TokenIDs)-1 and pool i trades TokenIDs[i] -> TokenIDs[i+1].
type Path struct {
	ID        int
	TokenIDs  []int
	PoolIDs   []int
	Enabled   bool
	GasAmount uint64
}

// Hops returns the number of pools traversed by the path
func (p *Path) Hops() int {
	return len(p.PoolIDs)
}

// TradeDescriptor is a router call decoded from pending calldata
type TradeDescriptor struct {
	Dialect      string
	Method       string
	Router       common.Address
	Path         []common.Address
	AmountIn     *big.Int
	AmountOutMin *big.Int
	Deadline     *big.Int
	Tip          *big.Int // tipped dialect only
	Native       bool     // input paid as transaction value
}

// ClassifiedTx is the outcome of classifying a raw signed transaction.
// Trade is nil when the transaction is not of interest.
type ClassifiedTx struct {
	Hash   common.Hash
	Sender common.Address
	Nonce  uint64
	Raw    []byte
	Tx     *ethtypes.Transaction
	Trade  *TradeDescriptor
}

// CallArgs is a trade descriptor resolved against the instrument graph.
// Amounts are normalized to 18 decimals.
type CallArgs struct {
	Exchange      string
	TokenIDs      []int
	PoolIDs       []int
	PoolAddresses []common.Address
	AmountIn      *big.Int
	AmountOutMin  *big.Int
	Deadline      *big.Int
}

// BackrunRequest is a pending trade candidate held by the request pool
type BackrunRequest struct {
	Args       *CallArgs
	Trade      *TradeDescriptor
	RawTx      []byte
	TxHash     common.Hash
	Sender     common.Address
	Nonce      uint64
	ReceivedAt time.Time
}

// Opportunity is a profitable cyclic trade computed within one evaluation
type Opportunity struct {
	Path        *Path
	TriggerHash *common.Hash // nil for block-level evaluation
	InputAmount *big.Int
	Amounts     []*big.Int // amount after each hop, Amounts[0] == InputAmount
	GrossProfit *big.Int
	GasAmount   uint64
	GasPrice    *big.Int
	NetProfit   *big.Int
	BackrunTxs  [][]byte
}
