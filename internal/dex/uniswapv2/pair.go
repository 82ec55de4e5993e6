package uniswapv2

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
)

// Sync event signature for reserve updates
// event Sync(uint112 reserve0, uint112 reserve1)
var SyncEventSignature = common.HexToHash("0x1c411e9a96e071241c2f21f7726b17ae89e3cab4c78be50e062b03a9fffbbad1")

// ContractCaller is the subset of the eth client needed to read pair state
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// PairReader reads reserves from V2 pair contracts
type PairReader struct {
	client ContractCaller
}

// NewPairReader creates a new pair reader
func NewPairReader(client ContractCaller) *PairReader {
	return &PairReader{client: client}
}

// GetReserves fetches current reserves from a V2 pool
func (r *PairReader) GetReserves(ctx context.Context, poolAddress common.Address) (*big.Int, *big.Int, error) {
	// getReserves() selector: 0x0902f1ac
	data := common.Hex2Bytes("0902f1ac")

	msg := ethereum.CallMsg{
		To:   &poolAddress,
		Data: data,
	}

	result, err := r.client.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, nil, err
	}

	return DecodeReserves(result)
}

// DecodeReserves decodes a getReserves() return payload or Sync event data
func DecodeReserves(data []byte) (*big.Int, *big.Int, error) {
	if len(data) < 64 {
		return nil, nil, fmt.Errorf("invalid reserves payload: expected at least 64 bytes, got %d", len(data))
	}

	reserve0 := new(big.Int).SetBytes(data[0:32])
	reserve1 := new(big.Int).SetBytes(data[32:64])

	return reserve0, reserve1, nil
}

// SyncFilter selects the Sync events emitted by the given pairs
func SyncFilter(pairs []common.Address) ethereum.FilterQuery {
	return ethereum.FilterQuery{
		Addresses: pairs,
		Topics:    [][]common.Hash{{SyncEventSignature}},
	}
}

// DecodeSync returns the emitting pair and its new reserves from a Sync log
func DecodeSync(l ethtypes.Log) (common.Address, *big.Int, *big.Int, error) {
	if len(l.Topics) == 0 || l.Topics[0] != SyncEventSignature {
		return common.Address{}, nil, nil, fmt.Errorf("log %s is not a Sync event", l.TxHash.Hex())
	}

	reserve0, reserve1, err := DecodeReserves(l.Data)
	if err != nil {
		return common.Address{}, nil, nil, err
	}
	return l.Address, reserve0, reserve1, nil
}
