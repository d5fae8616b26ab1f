package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"treasuryd/engine"
)

// Backend defines the subset of the Ethereum RPC used by the client.
type Backend interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*gethtypes.Header, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *gethtypes.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*gethtypes.Receipt, error)
}

// Dial initialises an EVM RPC client for the provided endpoint.
func Dial(endpoint string) (*ethclient.Client, error) {
	trimmed := strings.TrimSpace(endpoint)
	if trimmed == "" {
		return nil, fmt.Errorf("chain: evm endpoint required")
	}
	return ethclient.Dial(trimmed)
}

// EVMClient submits disbursement batches to ERC-7821 treasury accounts on an
// Ethereum-compatible chain and waits for finality.
type EVMClient struct {
	backend        Backend
	signer         *ecdsa.PrivateKey
	from           common.Address
	chainID        *big.Int
	confirmations  uint64
	pollInterval   time.Duration
	confirmTimeout time.Duration
}

// EVMOption customises the client instance.
type EVMOption func(*EVMClient)

// WithConfirmations sets the finality depth required by Confirm.
func WithConfirmations(depth uint64) EVMOption {
	return func(c *EVMClient) { c.confirmations = depth }
}

// WithPollInterval configures the confirmation polling cadence.
func WithPollInterval(interval time.Duration) EVMOption {
	return func(c *EVMClient) { c.pollInterval = interval }
}

// WithConfirmTimeout bounds how long Confirm waits for finality. A timeout
// is reported as failure for bookkeeping; the submission itself is not
// revocable.
func WithConfirmTimeout(timeout time.Duration) EVMOption {
	return func(c *EVMClient) { c.confirmTimeout = timeout }
}

// NewEVMClient constructs a client signing with the supplied key.
func NewEVMClient(backend Backend, signer *ecdsa.PrivateKey, chainID *big.Int, opts ...EVMOption) (*EVMClient, error) {
	if backend == nil {
		return nil, fmt.Errorf("chain: backend required")
	}
	if signer == nil {
		return nil, fmt.Errorf("chain: signer key required")
	}
	if chainID == nil || chainID.Sign() <= 0 {
		return nil, fmt.Errorf("chain: chain id required")
	}
	client := &EVMClient{
		backend:        backend,
		signer:         signer,
		from:           gethcrypto.PubkeyToAddress(signer.PublicKey),
		chainID:        new(big.Int).Set(chainID),
		confirmations:  3,
		pollInterval:   3 * time.Second,
		confirmTimeout: 5 * time.Minute,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

var _ engine.ChainClient = (*EVMClient)(nil)

// SubmitBatch encodes the operations as one ERC-7821 execute call against
// the treasury account and broadcasts it.
func (c *EVMClient) SubmitBatch(ctx context.Context, treasury common.Address, ops []engine.TransferOperation) (common.Hash, error) {
	if (treasury == common.Address{}) {
		return common.Hash{}, fmt.Errorf("chain: treasury address required")
	}
	data, err := EncodeExecute(ops)
	if err != nil {
		return common.Hash{}, err
	}
	nonce, err := c.backend.PendingNonceAt(ctx, c.from)
	if err != nil {
		return common.Hash{}, fmt.Errorf("chain: fetch nonce: %w", err)
	}
	tip, err := c.backend.SuggestGasTipCap(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("chain: suggest tip: %w", err)
	}
	head, err := c.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return common.Hash{}, fmt.Errorf("chain: fetch head: %w", err)
	}
	feeCap := new(big.Int).Set(tip)
	if head.BaseFee != nil {
		feeCap.Add(feeCap, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))
	}
	gas, err := c.backend.EstimateGas(ctx, ethereum.CallMsg{
		From: c.from,
		To:   &treasury,
		Data: data,
	})
	if err != nil {
		return common.Hash{}, fmt.Errorf("chain: estimate gas: %w", err)
	}
	tx, err := gethtypes.SignNewTx(c.signer, gethtypes.LatestSignerForChainID(c.chainID), &gethtypes.DynamicFeeTx{
		ChainID:   c.chainID,
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gas + gas/5,
		To:        &treasury,
		Data:      data,
	})
	if err != nil {
		return common.Hash{}, fmt.Errorf("chain: sign transaction: %w", err)
	}
	if err := c.backend.SendTransaction(ctx, tx); err != nil {
		return common.Hash{}, fmt.Errorf("chain: broadcast transaction: %w", err)
	}
	return tx.Hash(), nil
}

// Confirm blocks until the transaction reaches the configured depth, fails,
// or the timeout elapses.
func (c *EVMClient) Confirm(ctx context.Context, txHash common.Hash) error {
	if (txHash == common.Hash{}) {
		return fmt.Errorf("chain: tx hash required")
	}
	if c.confirmTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.confirmTimeout)
		defer cancel()
	}
	interval := c.pollInterval
	if interval <= 0 {
		interval = 3 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		final, err := c.checkFinality(ctx, txHash)
		if err != nil {
			return err
		}
		if final {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("chain: confirmation timed out for %s: %w", txHash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}

// checkFinality inspects the receipt once. Missing receipts and transient
// RPC errors leave the poll running; a reverted transaction is terminal.
func (c *EVMClient) checkFinality(ctx context.Context, txHash common.Hash) (bool, error) {
	receipt, err := c.backend.TransactionReceipt(ctx, txHash)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) || ctx.Err() == nil {
			return false, nil
		}
		return false, fmt.Errorf("chain: fetch receipt: %w", err)
	}
	if receipt == nil {
		return false, nil
	}
	if receipt.Status != gethtypes.ReceiptStatusSuccessful {
		return false, fmt.Errorf("chain: transaction %s reverted", txHash.Hex())
	}
	if c.confirmations <= 1 {
		return true, nil
	}
	head, err := c.backend.HeaderByNumber(ctx, nil)
	if err != nil || head == nil || head.Number == nil || receipt.BlockNumber == nil {
		return false, nil
	}
	if head.Number.Cmp(receipt.BlockNumber) < 0 {
		return false, nil
	}
	depth := new(big.Int).Sub(head.Number, receipt.BlockNumber)
	depth.Add(depth, big.NewInt(1))
	return depth.Cmp(new(big.Int).SetUint64(c.confirmations)) >= 0, nil
}
