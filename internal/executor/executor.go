// Package executor turns scheduled opportunities into signed backrun
// transactions against the configured executor contract.
package executor

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog/log"

	"github.com/devlongs/mev-backrunner/internal/amm"
	"github.com/devlongs/mev-backrunner/pkg/types"
)

const executeABI = `[{
	"name": "execute",
	"type": "function",
	"stateMutability": "nonpayable",
	"inputs": [
		{"name": "amountIn", "type": "uint256"},
		{"name": "minAmountOut", "type": "uint256"},
		{"name": "pools", "type": "address[]"},
		{"name": "tokens", "type": "address[]"}
	],
	"outputs": []
}]`

var contractABI = mustParseABI(executeABI)

// Registry resolves the ids carried by a path to chain addresses
type Registry interface {
	Pool(id int) (*types.Pool, bool)
	Token(id int) (*types.Token, bool)
}

// Config for the executor
type Config struct {
	Contract   common.Address
	PrivateKey string
	ChainID    *big.Int
}

// Fees are the EIP-1559 fee fields of a backrun transaction
type Fees struct {
	GasTipCap *big.Int
	GasFeeCap *big.Int
}

// Executor signs backrun transactions
type Executor struct {
	contract common.Address
	key      *ecdsa.PrivateKey
	from     common.Address
	signer   ethtypes.Signer
	chainID  *big.Int
	registry Registry
}

// NewExecutor parses the signing key and binds the executor to a chain
func NewExecutor(cfg Config, registry Registry) (*Executor, error) {
	if cfg.ChainID == nil || cfg.ChainID.Sign() <= 0 {
		return nil, fmt.Errorf("executor chain id not configured")
	}
	if cfg.Contract == (common.Address{}) {
		return nil, fmt.Errorf("executor contract not configured")
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid executor key: %w", err)
	}

	return &Executor{
		contract: cfg.Contract,
		key:      key,
		from:     crypto.PubkeyToAddress(key.PublicKey),
		signer:   ethtypes.LatestSignerForChainID(cfg.ChainID),
		chainID:  cfg.ChainID,
		registry: registry,
	}, nil
}

// Address returns the account that signs backruns
func (e *Executor) Address() common.Address {
	return e.from
}

// EncodeExecute builds execute(amountIn, minAmountOut, pools, tokens) calldata.
// Amounts are converted back to base-token units; minAmountOut is the
// simulated final amount.
func (e *Executor) EncodeExecute(opp *types.Opportunity) ([]byte, error) {
	if opp == nil || opp.Path == nil || len(opp.Amounts) == 0 {
		return nil, fmt.Errorf("opportunity has no path")
	}

	pools := make([]common.Address, len(opp.Path.PoolIDs))
	for i, id := range opp.Path.PoolIDs {
		pool, ok := e.registry.Pool(id)
		if !ok {
			return nil, fmt.Errorf("unknown pool %d", id)
		}
		pools[i] = pool.Address
	}

	tokens := make([]common.Address, len(opp.Path.TokenIDs))
	var base *types.Token
	for i, id := range opp.Path.TokenIDs {
		token, ok := e.registry.Token(id)
		if !ok {
			return nil, fmt.Errorf("unknown token %d", id)
		}
		if i == 0 {
			base = token
		}
		tokens[i] = token.Address
	}

	amountIn := amm.Denormalize(opp.InputAmount, base.Decimals)
	minAmountOut := amm.Denormalize(opp.Amounts[len(opp.Amounts)-1], base.Decimals)

	return contractABI.Pack("execute", amountIn, minAmountOut, pools, tokens)
}

// BuildBackrun signs the execute call for an opportunity
func (e *Executor) BuildBackrun(opp *types.Opportunity, nonce uint64, fees Fees) (*ethtypes.Transaction, error) {
	data, err := e.EncodeExecute(opp)
	if err != nil {
		return nil, err
	}

	feeCap := fees.GasFeeCap
	if feeCap == nil {
		feeCap = opp.GasPrice
	}
	if feeCap == nil {
		return nil, fmt.Errorf("no gas price for backrun")
	}
	tip := fees.GasTipCap
	if tip == nil || tip.Cmp(feeCap) > 0 {
		tip = feeCap
	}

	contract := e.contract
	tx, err := ethtypes.SignNewTx(e.key, e.signer, &ethtypes.DynamicFeeTx{
		ChainID:   e.chainID,
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       opp.GasAmount,
		To:        &contract,
		Value:     big.NewInt(0),
		Data:      data,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to sign backrun: %w", err)
	}

	return tx, nil
}

// Attach signs the backrun and stores the bundle on the opportunity: the
// target transaction first when there is one, then the backrun.
func (e *Executor) Attach(opp *types.Opportunity, target []byte, nonce uint64, fees Fees) error {
	tx, err := e.BuildBackrun(opp, nonce, fees)
	if err != nil {
		return err
	}

	raw, err := tx.MarshalBinary()
	if err != nil {
		return err
	}

	txs := make([][]byte, 0, 2)
	if len(target) > 0 {
		txs = append(txs, target)
	}
	opp.BackrunTxs = append(txs, raw)
	return nil
}

// BuildBundle signs one backrun per scheduled opportunity, with consecutive
// nonces from nonce, and packs them into a single ordered bundle where every
// backrun directly follows its target. The plan is pool-disjoint, so the
// backruns do not interfere. Opportunities whose target raw transaction is
// unknown, or which cannot be signed, are left out.
func (e *Executor) BuildBundle(plan []*types.Opportunity, targets map[common.Hash][]byte, nonce uint64, fees Fees) ([][]byte, []*types.Opportunity) {
	var (
		bundle   [][]byte
		included []*types.Opportunity
	)

	for _, opp := range plan {
		var target []byte
		if opp.TriggerHash != nil {
			raw, ok := targets[*opp.TriggerHash]
			if !ok || len(raw) == 0 {
				log.Warn().
					Str("trigger", opp.TriggerHash.Hex()).
					Int("pathID", opp.Path.ID).
					Msg("Target transaction unavailable, skipping backrun")
				continue
			}
			target = raw
		}

		if err := e.Attach(opp, target, nonce, fees); err != nil {
			log.Warn().
				Err(err).
				Int("pathID", opp.Path.ID).
				Msg("Failed to build backrun")
			continue
		}
		nonce++

		bundle = append(bundle, opp.BackrunTxs...)
		included = append(included, opp)
	}

	return bundle, included
}

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(err)
	}
	return parsed
}
