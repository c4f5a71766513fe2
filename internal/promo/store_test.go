package promo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNullableIntKeepsCapsWithinColumnRange(t *testing.T) {
	v, err := nullableInt(nil)
	require.NoError(t, err)
	require.False(t, v.Valid)

	limit := math.MaxInt32
	v, err = nullableInt(&limit)
	require.NoError(t, err)
	require.True(t, v.Valid)
	require.EqualValues(t, math.MaxInt32, v.Int32)

	for _, n := range []int{math.MaxInt32 + 1, 3000000000, 4294967297, -1} {
		n := n
		_, err := nullableInt(&n)
		require.ErrorIs(t, err, ErrMalformedRecord, n)
	}
}

func TestCheckRejectsCapAboveColumnRange(t *testing.T) {
	n := MaxUsesLimit + 1
	c := Code{Code: "BIG", DiscountType: Fixed, MaxUses: &n}
	require.ErrorIs(t, c.Check(), ErrMalformedRecord)
}
