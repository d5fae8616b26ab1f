package chain

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"treasuryd/engine"
)

// FuncClient adapts callback functions to the engine.ChainClient interface.
type FuncClient struct {
	SubmitFunc  func(ctx context.Context, treasury common.Address, ops []engine.TransferOperation) (common.Hash, error)
	ConfirmFunc func(ctx context.Context, txHash common.Hash) error
}

// SubmitBatch delegates to the configured callback.
func (c FuncClient) SubmitBatch(ctx context.Context, treasury common.Address, ops []engine.TransferOperation) (common.Hash, error) {
	if c.SubmitFunc == nil {
		return common.Hash{}, nil
	}
	return c.SubmitFunc(ctx, treasury, ops)
}

// Confirm delegates to the configured callback.
func (c FuncClient) Confirm(ctx context.Context, txHash common.Hash) error {
	if c.ConfirmFunc == nil {
		return nil
	}
	return c.ConfirmFunc(ctx, txHash)
}

var _ engine.ChainClient = FuncClient{}
