package eth

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/ethclient/gethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/rs/zerolog/log"

	"github.com/devlongs/mev-backrunner/internal/config"
)

// balanceOf(address) selector
var balanceOfSelector = common.Hex2Bytes("70a08231")

// ErrNoWebSocket is returned by subscriptions when no ws_url is configured
var ErrNoWebSocket = errors.New("websocket endpoint not configured")

// Client wraps the Ethereum client with retry logic and convenience methods
type Client struct {
	client  *ethclient.Client
	ws      *ethclient.Client
	geth    *gethclient.Client
	cfg     config.RPCConfig
	chainID *big.Int
}

// NewClient creates a new Ethereum client. The websocket endpoint, when
// configured, carries the head and pending transaction subscriptions.
func NewClient(cfg config.RPCConfig) (*Client, error) {
	client, err := ethclient.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Ethereum node: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.RequestTimeout)
	defer cancel()

	chainID, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to get chain ID: %w", err)
	}

	c := &Client{
		client:  client,
		cfg:     cfg,
		chainID: chainID,
	}

	if cfg.WSUrl != "" {
		rpcClient, err := rpc.DialContext(ctx, cfg.WSUrl)
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to connect to websocket endpoint: %w", err)
		}
		c.ws = ethclient.NewClient(rpcClient)
		c.geth = gethclient.New(rpcClient)
	}

	log.Info().
		Str("url", cfg.URL).
		Str("wsUrl", cfg.WSUrl).
		Str("chainID", chainID.String()).
		Msg("Connected to Ethereum node")

	return c, nil
}

// Close closes the client connections
func (c *Client) Close() {
	c.client.Close()
	if c.ws != nil {
		c.ws.Close()
	}
}

// ChainID returns the chain ID
func (c *Client) ChainID() *big.Int {
	return c.chainID
}

// withRetry runs call up to RetryAttempts times, sleeping RetryDelay between attempts
func withRetry[T any](ctx context.Context, cfg config.RPCConfig, what string, call func() (T, error)) (T, error) {
	var (
		result T
		err    error
	)

	attempts := cfg.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}

	for i := 0; i < attempts; i++ {
		result, err = call()
		if err == nil || errors.Is(err, ethereum.NotFound) {
			return result, err
		}
		log.Warn().Err(err).Int("attempt", i+1).Msgf("Failed to get %s, retrying...", what)

		if i < attempts-1 {
			select {
			case <-ctx.Done():
				return result, ctx.Err()
			case <-time.After(cfg.RetryDelay):
			}
		}
	}

	return result, fmt.Errorf("failed to get %s after %d attempts: %w", what, attempts, err)
}

// BlockNumber returns the latest block number with retry
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	return withRetry(ctx, c.cfg, "block number", func() (uint64, error) {
		return c.client.BlockNumber(ctx)
	})
}

// SuggestGasPrice returns the node's legacy gas price suggestion with retry
func (c *Client) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return withRetry(ctx, c.cfg, "gas price", func() (*big.Int, error) {
		return c.client.SuggestGasPrice(ctx)
	})
}

// SuggestGasTipCap returns the node's priority fee suggestion with retry
func (c *Client) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	return withRetry(ctx, c.cfg, "gas tip", func() (*big.Int, error) {
		return c.client.SuggestGasTipCap(ctx)
	})
}

// NonceAt returns the confirmed nonce of an account with retry
func (c *Client) NonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return withRetry(ctx, c.cfg, "nonce", func() (uint64, error) {
		return c.client.NonceAt(ctx, account, nil)
	})
}

// PendingNonceAt returns the next nonce including pending transactions
func (c *Client) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return withRetry(ctx, c.cfg, "pending nonce", func() (uint64, error) {
		return c.client.PendingNonceAt(ctx, account)
	})
}

// BalanceAt returns the latest native balance of an account with retry
func (c *Client) BalanceAt(ctx context.Context, account common.Address) (*big.Int, error) {
	return withRetry(ctx, c.cfg, "balance", func() (*big.Int, error) {
		return c.client.BalanceAt(ctx, account, nil)
	})
}

// TokenBalance returns an ERC20 balance via balanceOf
func (c *Client) TokenBalance(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	data := make([]byte, 0, 36)
	data = append(data, balanceOfSelector...)
	data = append(data, common.LeftPadBytes(owner.Bytes(), 32)...)

	result, err := c.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return nil, err
	}
	if len(result) < 32 {
		return nil, fmt.Errorf("invalid balanceOf result: %d bytes", len(result))
	}
	return new(big.Int).SetBytes(result[:32]), nil
}

// TransactionReceipt returns the receipt of a transaction with retry
func (c *Client) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	return withRetry(ctx, c.cfg, "receipt", func() (*types.Receipt, error) {
		return c.client.TransactionReceipt(ctx, txHash)
	})
}

// IsMined reports whether a transaction has a receipt
func (c *Client) IsMined(ctx context.Context, txHash common.Hash) (bool, error) {
	_, err := c.TransactionReceipt(ctx, txHash)
	if errors.Is(err, ethereum.NotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// CallContract executes a contract call with retry
func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return withRetry(ctx, c.cfg, "contract call", func() ([]byte, error) {
		return c.client.CallContract(ctx, msg, blockNumber)
	})
}

// SubscribeNewHead subscribes to new block headers (requires WebSocket)
func (c *Client) SubscribeNewHead(ctx context.Context, ch chan<- *types.Header) (ethereum.Subscription, error) {
	if c.ws == nil {
		return nil, ErrNoWebSocket
	}
	return c.ws.SubscribeNewHead(ctx, ch)
}

// SubscribeFilterLogs streams logs matching q (requires WebSocket)
func (c *Client) SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error) {
	if c.ws == nil {
		return nil, ErrNoWebSocket
	}
	return c.ws.SubscribeFilterLogs(ctx, q, ch)
}

// SubscribePendingTransactions streams full pending transactions (requires WebSocket)
func (c *Client) SubscribePendingTransactions(ctx context.Context, ch chan<- *types.Transaction) (*rpc.ClientSubscription, error) {
	if c.geth == nil {
		return nil, ErrNoWebSocket
	}
	return c.geth.SubscribeFullPendingTransactions(ctx, ch)
}
