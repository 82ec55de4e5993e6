package relay

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog/log"
)

// RelayError is a string-constant error type
type RelayError string

func (e RelayError) Error() string { return string(e) }

const (
	ErrNoSigningKey RelayError = "signing key not configured"
	ErrEmptyBundle  RelayError = "bundle has no transactions"
)

// Config for relay client
type Config struct {
	URL           string
	SigningKey    string
	MaxRetries    int
	SubmitTimeout time.Duration
}

// Bundle represents a Flashbots bundle
type Bundle struct {
	Txs               []string `json:"txs"`
	BlockNumber       string   `json:"blockNumber"`
	MinTimestamp      *uint64  `json:"minTimestamp,omitempty"`
	MaxTimestamp      *uint64  `json:"maxTimestamp,omitempty"`
	RevertingTxHashes []string `json:"revertingTxHashes,omitempty"`
}

// BundleResponse from Flashbots
type BundleResponse struct {
	BundleHash string `json:"bundleHash"`
}

// NewBundle encodes raw signed transactions for inclusion in the given block
func NewBundle(txs [][]byte, blockNumber uint64) *Bundle {
	encoded := make([]string, len(txs))
	for i, raw := range txs {
		encoded[i] = hexutil.Encode(raw)
	}
	return &Bundle{
		Txs:         encoded,
		BlockNumber: hexutil.EncodeUint64(blockNumber),
	}
}

// Flashbots relay client
type Flashbots struct {
	config     Config
	httpClient *http.Client
	signingKey *ecdsa.PrivateKey
}

// NewFlashbots creates a new Flashbots relay client. An empty signing key is
// allowed; SendBundle then fails with ErrNoSigningKey.
func NewFlashbots(cfg Config) (*Flashbots, error) {
	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = 5 * time.Second
	}

	f := &Flashbots{
		config: cfg,
		httpClient: &http.Client{
			Timeout: cfg.SubmitTimeout,
		},
	}

	if cfg.SigningKey != "" {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.SigningKey, "0x"))
		if err != nil {
			return nil, fmt.Errorf("invalid signing key: %w", err)
		}
		f.signingKey = key

		log.Info().
			Str("address", crypto.PubkeyToAddress(key.PublicKey).Hex()).
			Str("relay", cfg.URL).
			Msg("Relay signing key loaded")
	}

	return f, nil
}

// SendBundle submits a bundle via eth_sendBundle
func (f *Flashbots) SendBundle(ctx context.Context, bundle *Bundle) (*BundleResponse, error) {
	if f.signingKey == nil {
		return nil, ErrNoSigningKey
	}
	if len(bundle.Txs) == 0 {
		return nil, ErrEmptyBundle
	}

	// Create JSON-RPC request
	request := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "eth_sendBundle",
		"params":  []interface{}{bundle},
	}

	body, err := json.Marshal(request)
	if err != nil {
		return nil, err
	}

	signature, err := f.signPayload(body)
	if err != nil {
		return nil, err
	}

	var resp *http.Response
	for i := 0; i <= f.config.MaxRetries; i++ {
		resp, err = f.post(ctx, body, signature)
		if err == nil && resp.StatusCode == http.StatusOK {
			break
		}

		if err == nil {
			resp.Body.Close()
			err = fmt.Errorf("unexpected status code: %d", resp.StatusCode)
		}
		log.Warn().
			Err(err).
			Int("attempt", i+1).
			Msg("Bundle submission failed")

		if i < f.config.MaxRetries {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(100 * time.Millisecond):
			}
		}
	}

	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	// Parse response
	var result struct {
		Result *BundleResponse `json:"result"`
		Error  *struct {
			Message string `json:"message"`
		} `json:"error"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	if result.Error != nil {
		return nil, fmt.Errorf("flashbots error: %s", result.Error.Message)
	}
	if result.Result == nil {
		return nil, fmt.Errorf("flashbots returned no result")
	}

	log.Info().
		Str("bundleHash", result.Result.BundleHash).
		Int("txCount", len(bundle.Txs)).
		Str("block", bundle.BlockNumber).
		Msg("Bundle submitted")

	return result.Result, nil
}

func (f *Flashbots) post(ctx context.Context, body []byte, signature string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.config.URL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Flashbots-Signature", signature)

	return f.httpClient.Do(req)
}

func (f *Flashbots) signPayload(body []byte) (string, error) {
	// Hash the body
	hashedBody := crypto.Keccak256Hash(body).Hex()

	// Sign with EIP-191
	signature, err := crypto.Sign(
		crypto.Keccak256([]byte(fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(hashedBody), hashedBody))),
		f.signingKey,
	)
	if err != nil {
		return "", err
	}

	// Format: address:signature
	addr := crypto.PubkeyToAddress(f.signingKey.PublicKey)
	return fmt.Sprintf("%s:%s", addr.Hex(), hexutil.Encode(signature)), nil
}
