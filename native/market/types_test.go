package market

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSanitizeAsk(t *testing.T) {
	seller := newTestAddress(0xA1)

	sanitized, err := SanitizeAsk(&Ask{ID: 1, Collection: 7, Token: 42, Currency: 3, Seller: seller})
	require.NoError(t, err)
	require.NotNil(t, sanitized.Price)
	require.Zero(t, sanitized.Price.Sign())

	_, err = SanitizeAsk(nil)
	require.Error(t, err)

	_, err = SanitizeAsk(&Ask{ID: 0, Price: big.NewInt(1)})
	require.Error(t, err)

	_, err = SanitizeAsk(&Ask{ID: 1, Price: big.NewInt(-1)})
	require.Error(t, err)

	over := new(big.Int).Add(MaxBalance(), big.NewInt(1))
	_, err = SanitizeAsk(&Ask{ID: 1, Price: over})
	require.Error(t, err)
}

func TestAskCloneIsDeep(t *testing.T) {
	ask := &Ask{ID: 1, Price: big.NewInt(500)}
	clone := ask.Clone()
	clone.Price.SetInt64(7)
	require.Equal(t, big.NewInt(500), ask.Price)
}

func TestCombinedTokenID(t *testing.T) {
	require.Equal(t, "0", CombinedTokenID(0, 0).String())
	require.Equal(t, big.NewInt(7<<32+42), CombinedTokenID(7, 42))

	// Collections keep their full 64-bit range after the shift.
	combined := CombinedTokenID(^uint64(0), ^uint64(0)>>32)
	expected := new(big.Int).Lsh(new(big.Int).SetUint64(^uint64(0)), 32)
	expected.Add(expected, new(big.Int).SetUint64(^uint64(0)>>32))
	require.Equal(t, expected, combined)
}

func TestWithdrawCause(t *testing.T) {
	require.True(t, WithdrawMatched.Valid())
	require.True(t, WithdrawUnused.Valid())
	require.False(t, WithdrawCause(9).Valid())

	require.Equal(t, "matched", WithdrawMatched.String())
	require.Equal(t, "unused", WithdrawUnused.String())
}
