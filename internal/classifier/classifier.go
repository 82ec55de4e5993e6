package classifier

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/devlongs/mev-backrunner/pkg/types"
)

// DecodeError is returned when raw bytes cannot be decoded into a signed transaction
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("undecodable transaction: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Classifier turns raw signed transactions into trade descriptors
type Classifier struct {
	dialects      []Dialect
	tippedRouters map[common.Address]bool
}

// NewClassifier creates a classifier trying dialects in the given order.
// When tippedRouters is non-empty the tipped dialect only matches calls to those addresses.
func NewClassifier(dialects []Dialect, tippedRouters []common.Address) *Classifier {
	if len(dialects) == 0 {
		dialects = AllDialects
	}

	routers := make(map[common.Address]bool, len(tippedRouters))
	for _, r := range tippedRouters {
		routers[r] = true
	}

	return &Classifier{
		dialects:      dialects,
		tippedRouters: routers,
	}
}

// Classify decodes a raw signed transaction. Only a transaction that cannot be
// decoded or whose signer cannot be recovered yields an error; calldata that
// matches no dialect returns a result with a nil Trade.
func (c *Classifier) Classify(raw []byte) (*types.ClassifiedTx, error) {
	tx := new(ethtypes.Transaction)
	if err := tx.UnmarshalBinary(raw); err != nil {
		return nil, &DecodeError{Err: err}
	}

	return c.ClassifyTransaction(tx, raw)
}

// ClassifyTransaction classifies an already decoded transaction
func (c *Classifier) ClassifyTransaction(tx *ethtypes.Transaction, raw []byte) (*types.ClassifiedTx, error) {
	signer := ethtypes.LatestSignerForChainID(tx.ChainId())
	sender, err := ethtypes.Sender(signer, tx)
	if err != nil {
		return nil, &DecodeError{Err: fmt.Errorf("failed to recover sender: %w", err)}
	}

	if raw == nil {
		if raw, err = tx.MarshalBinary(); err != nil {
			return nil, &DecodeError{Err: err}
		}
	}

	result := &types.ClassifiedTx{
		Hash:   tx.Hash(),
		Sender: sender,
		Nonce:  tx.Nonce(),
		Raw:    raw,
		Tx:     tx,
	}

	to := tx.To()
	if to == nil {
		return result, nil
	}

	for _, dialect := range c.dialects {
		if dialect == DialectTipped && len(c.tippedRouters) > 0 && !c.tippedRouters[*to] {
			continue
		}
		if trade, ok := dialect.decode(*to, tx.Value(), tx.Data()); ok {
			result.Trade = trade
			break
		}
	}

	return result, nil
}
