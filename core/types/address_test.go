package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseAddressRoundTrip(t *testing.T) {
	addr, err := ParseAddress("0xA1a1A1A1a1a1a1A1a1A1a1a1A1a1a1A1A1a1a1A1")
	require.NoError(t, err)
	require.Equal(t, "0xa1a1a1a1a1a1a1a1a1a1a1a1a1a1a1a1a1a1a1a1", addr.String())
	require.False(t, addr.IsZero())

	again, err := ParseAddress(addr.String())
	require.NoError(t, err)
	require.Equal(t, addr, again)
}

func TestParseAddressRejectsMalformed(t *testing.T) {
	for _, input := range []string{
		"",
		"a1a1a1a1a1a1a1a1a1a1a1a1a1a1a1a1a1a1a1a1",
		"0x1234",
		"0xzz a1a1a1a1a1a1a1a1a1a1a1a1a1a1a1a1a1a1",
	} {
		_, err := ParseAddress(input)
		require.Error(t, err, "input %q", input)
	}
}

func TestZeroAddressIsUnset(t *testing.T) {
	require.True(t, ZeroAddress.IsZero())
	require.Equal(t, "0x0000000000000000000000000000000000000000", ZeroAddress.String())
}

func TestAddressJSONEncoding(t *testing.T) {
	addr, err := ParseAddress("0x0101010101010101010101010101010101010101")
	require.NoError(t, err)

	encoded, err := json.Marshal(addr)
	require.NoError(t, err)
	require.JSONEq(t, `"0x0101010101010101010101010101010101010101"`, string(encoded))

	var decoded Address
	require.NoError(t, json.Unmarshal(encoded, &decoded))
	require.Equal(t, addr, decoded)
}
