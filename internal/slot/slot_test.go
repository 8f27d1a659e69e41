package slot

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

// A Slot's type must be recoverable from its bits alone.
func TestTypeRecoverableFromBits(t *testing.T) {
	cases := []struct {
		slot Slot
		typ  Type
	}{
		{MakeNil(), TypeNil},
		{MakeInteger(0), TypeInteger},
		{MakeInteger(-40), TypeInteger},
		{MakeFloat(1.5), TypeFloat},
		{MakeFloat(0), TypeFloat},
		{MakeBoolean(true), TypeBoolean},
		{MakeBoolean(false), TypeBoolean},
		{MakeChar('q'), TypeChar},
		{MakeSymbol(0xfeedface), TypeSymbol},
		{MakePointer(0x1000), TypeObject},
	}
	for _, c := range cases {
		require.Equal(t, c.typ, FromBits(c.slot.Bits()).Type())
	}
}

func TestRoundTrips(t *testing.T) {
	require.Equal(t, int32(-40), MakeInteger(-40).Integer())
	require.Equal(t, int32(math.MaxInt32), MakeInteger(math.MaxInt32).Integer())
	require.Equal(t, 2.25, MakeFloat(2.25).Float())
	require.True(t, MakeBoolean(true).Boolean())
	require.Equal(t, 'z', MakeChar('z').Char())
	require.Equal(t, uint64(0xabcd), MakeSymbol(0xabcd).Symbol())
}

func TestFloatNaNStaysFloat(t *testing.T) {
	nan := MakeFloat(math.NaN())
	require.Equal(t, TypeFloat, nan.Type())
	require.True(t, math.IsNaN(nan.Float()))

	inf := MakeFloat(math.Inf(1))
	require.Equal(t, TypeFloat, inf.Type())
}

func TestTruthiness(t *testing.T) {
	require.False(t, MakeNil().Truthy())
	require.False(t, MakeBoolean(false).Truthy())
	require.True(t, MakeBoolean(true).Truthy())
	require.True(t, MakeInteger(0).Truthy())
	require.True(t, MakeFloat(0).Truthy())
}

func TestNumericTypeFlags(t *testing.T) {
	require.True(t, TypeInteger.IsNumeric())
	require.True(t, TypeFloat.IsNumeric())
	require.True(t, (TypeInteger | TypeFloat).IsNumeric())
	require.False(t, TypeAny.IsNumeric())
	require.False(t, TypeBoolean.IsNumeric())
	require.False(t, Type(0).IsNumeric())
}
