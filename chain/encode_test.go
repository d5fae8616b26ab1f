package chain_test

import (
	"encoding/hex"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"treasuryd/chain"
	"treasuryd/engine"
)

var (
	recipientA = common.HexToAddress("0x1111111111111111111111111111111111111111")
	recipientB = common.HexToAddress("0x2222222222222222222222222222222222222222")
	tokenX     = engine.Token("0xAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAa")
)

func TestEncodeTransfer(t *testing.T) {
	data, err := chain.EncodeTransfer(recipientA, big.NewInt(1000))
	require.NoError(t, err)
	require.Len(t, data, 4+32+32)
	require.Equal(t, "a9059cbb", hex.EncodeToString(data[:4]))
	require.Equal(t, recipientA.Bytes(), data[4+12:4+32])
	require.Equal(t, big.NewInt(1000), new(big.Int).SetBytes(data[4+32:]))
}

func TestEncodeTransferRejectsNonPositiveAmounts(t *testing.T) {
	_, err := chain.EncodeTransfer(recipientA, nil)
	require.Error(t, err)
	_, err = chain.EncodeTransfer(recipientA, big.NewInt(0))
	require.Error(t, err)
	_, err = chain.EncodeTransfer(recipientA, big.NewInt(-5))
	require.Error(t, err)
}

func TestEncodeExecuteSelectorAndMode(t *testing.T) {
	data, err := chain.EncodeExecute([]engine.TransferOperation{
		{Token: engine.NativeToken, Recipient: recipientA, Amount: big.NewInt(7)},
	})
	require.NoError(t, err)
	require.Equal(t, "e9ae5c53", hex.EncodeToString(data[:4]))

	mode := data[4 : 4+32]
	require.Equal(t, byte(0x01), mode[0])
	for _, b := range mode[1:] {
		require.Zero(t, b)
	}
}

func TestEncodeExecuteMixedBatch(t *testing.T) {
	data, err := chain.EncodeExecute([]engine.TransferOperation{
		{Token: engine.NativeToken, Recipient: recipientA, Amount: big.NewInt(7)},
		{Token: tokenX, Recipient: recipientB, Amount: big.NewInt(9)},
	})
	require.NoError(t, err)

	// The ERC-20 leg targets the token contract with transfer calldata; the
	// native leg carries the recipient and value directly.
	encoded := hex.EncodeToString(data)
	require.Contains(t, encoded, hex.EncodeToString(tokenX.Contract().Bytes()))
	require.Contains(t, encoded, "a9059cbb")
	require.Contains(t, encoded, hex.EncodeToString(recipientA.Bytes()))
	require.Contains(t, encoded, hex.EncodeToString(recipientB.Bytes()))
}

func TestEncodeExecuteRejectsBadBatches(t *testing.T) {
	_, err := chain.EncodeExecute(nil)
	require.Error(t, err)
	_, err = chain.EncodeExecute([]engine.TransferOperation{
		{Token: engine.NativeToken, Recipient: recipientA, Amount: big.NewInt(0)},
	})
	require.Error(t, err)
}
