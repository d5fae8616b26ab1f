package chain

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"treasuryd/engine"
)

// The treasury account is an ERC-7821 executor: one execute call carries the
// whole batch and the account's own balance funds the transfers, so the
// chain's all-or-nothing call semantics make the batch atomic.
var (
	executeSelector  = crypto.Keccak256([]byte("execute(bytes32,bytes)"))[:4]
	transferSelector = crypto.Keccak256([]byte("transfer(address,uint256)"))[:4]

	callTupleType = mustNewType("tuple[]", []abi.ArgumentMarshaling{
		{Name: "target", Type: "address"},
		{Name: "value", Type: "uint256"},
		{Name: "data", Type: "bytes"},
	})
	bytes32Type = mustNewType("bytes32", nil)
	bytesType   = mustNewType("bytes", nil)
	addressType = mustNewType("address", nil)
	uint256Type = mustNewType("uint256", nil)

	callsArguments    = abi.Arguments{{Type: callTupleType}}
	executeArguments  = abi.Arguments{{Type: bytes32Type}, {Type: bytesType}}
	transferArguments = abi.Arguments{{Type: addressType}, {Type: uint256Type}}
)

// batchCallsMode selects the ERC-7821 single-batch execution mode.
var batchCallsMode = [32]byte{0x01}

type batchCall struct {
	Target common.Address `abi:"target"`
	Value  *big.Int       `abi:"value"`
	Data   []byte         `abi:"data"`
}

func mustNewType(t string, components []abi.ArgumentMarshaling) abi.Type {
	typ, err := abi.NewType(t, "", components)
	if err != nil {
		panic(err)
	}
	return typ
}

// EncodeTransfer builds ERC-20 transfer calldata.
func EncodeTransfer(recipient common.Address, amount *big.Int) ([]byte, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, fmt.Errorf("chain: transfer amount must be positive")
	}
	packed, err := transferArguments.Pack(recipient, amount)
	if err != nil {
		return nil, fmt.Errorf("chain: pack transfer args: %w", err)
	}
	return append(append([]byte{}, transferSelector...), packed...), nil
}

// EncodeExecute builds the calldata for one atomic ERC-7821 batch covering
// every transfer operation: native transfers become value calls, ERC-20
// transfers become contract calls against the token.
func EncodeExecute(ops []engine.TransferOperation) ([]byte, error) {
	if len(ops) == 0 {
		return nil, fmt.Errorf("chain: empty batch")
	}
	calls := make([]batchCall, 0, len(ops))
	for _, op := range ops {
		if op.Amount == nil || op.Amount.Sign() <= 0 {
			return nil, fmt.Errorf("chain: operation amount must be positive")
		}
		if op.Token.IsNative() {
			calls = append(calls, batchCall{
				Target: op.Recipient,
				Value:  new(big.Int).Set(op.Amount),
				Data:   []byte{},
			})
			continue
		}
		data, err := EncodeTransfer(op.Recipient, op.Amount)
		if err != nil {
			return nil, err
		}
		calls = append(calls, batchCall{
			Target: op.Token.Contract(),
			Value:  new(big.Int),
			Data:   data,
		})
	}
	executionData, err := callsArguments.Pack(calls)
	if err != nil {
		return nil, fmt.Errorf("chain: pack batch calls: %w", err)
	}
	payload, err := executeArguments.Pack(batchCallsMode, executionData)
	if err != nil {
		return nil, fmt.Errorf("chain: pack execute args: %w", err)
	}
	return append(append([]byte{}, executeSelector...), payload...), nil
}
