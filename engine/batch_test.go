package engine_test

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"treasuryd/engine"
)

func TestBuildBatchNativeFirst(t *testing.T) {
	obligations := []engine.Obligation{
		{Recipient: memberA, Amount: big.NewInt(1), Token: tokenX},
		{Recipient: memberB, Amount: big.NewInt(2), Token: engine.NativeToken},
		{Recipient: memberA, Amount: big.NewInt(3), Token: tokenY},
		{Recipient: memberB, Amount: big.NewInt(4), Token: tokenX},
	}

	ops := engine.BuildBatch(obligations)
	require.Len(t, ops, 4)
	require.Equal(t, engine.NativeToken, ops[0].Token)
	require.Equal(t, big.NewInt(2), ops[0].Amount)
	require.Equal(t, tokenX, ops[1].Token, "token groups follow first occurrence")
	require.Equal(t, tokenX, ops[2].Token)
	require.Equal(t, tokenY, ops[3].Token)
	require.Equal(t, memberA, ops[1].Recipient)
	require.Equal(t, memberB, ops[2].Recipient)
}

func TestBuildBatchSkipsZeroAmounts(t *testing.T) {
	obligations := []engine.Obligation{
		{Recipient: memberA, Amount: big.NewInt(0), Token: engine.NativeToken},
		{Recipient: memberB, Amount: nil, Token: tokenX},
		{Recipient: memberA, Amount: big.NewInt(9), Token: tokenX},
	}

	ops := engine.BuildBatch(obligations)
	require.Len(t, ops, 1)
	require.Equal(t, big.NewInt(9), ops[0].Amount)
}

func TestBuildBatchCopiesAmounts(t *testing.T) {
	amount := big.NewInt(10)
	ops := engine.BuildBatch([]engine.Obligation{{Recipient: memberA, Amount: amount, Token: engine.NativeToken}})
	require.Len(t, ops, 1)

	amount.SetInt64(999)
	require.Equal(t, big.NewInt(10), ops[0].Amount, "operations must not alias obligation amounts")
}

func TestBuildBatchEmptyInput(t *testing.T) {
	require.Empty(t, engine.BuildBatch(nil))
	require.Empty(t, engine.BuildBatch([]engine.Obligation{}))
}
