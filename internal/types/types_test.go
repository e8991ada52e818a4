package types

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		v    Value
		t    ColType
		len  int
	}{
		{"int positive", IntValue(42), TypeInt, 4},
		{"int negative", IntValue(-7), TypeInt, 4},
		{"int zero", IntValue(0), TypeInt, 4},
		{"float positive", FloatValue(3.5), TypeFloat, 4},
		{"float negative", FloatValue(-3.5), TypeFloat, 4},
		{"char", CharValue([]byte("hi")), TypeChar, 5},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			enc, err := Encode(c.v, c.t, c.len)
			require.NoError(t, err)
			require.Len(t, enc, FixedLength(c.t, c.len))
			dec := Decode(enc, c.t)
			switch c.t {
			case TypeInt:
				require.Equal(t, c.v.I, dec.I)
			case TypeFloat:
				require.Equal(t, c.v.F, dec.F)
			case TypeChar:
				padded := make([]byte, c.len)
				copy(padded, c.v.S)
				require.Equal(t, padded, dec.S)
			}
		})
	}
}

func TestEncodedOrderMatchesNumericOrder(t *testing.T) {
	vals := []int32{-100, -1, 0, 1, 100}
	var encoded [][]byte
	for _, v := range vals {
		b, err := Encode(IntValue(v), TypeInt, 4)
		require.NoError(t, err)
		encoded = append(encoded, b)
	}
	for i := 1; i < len(encoded); i++ {
		require.Negative(t, CompareEncoded(encoded[i-1], encoded[i]))
	}
}

func TestEncodedFloatOrder(t *testing.T) {
	vals := []float32{-3.5, -1.0, 0.0, 1.0, 3.5}
	var encoded [][]byte
	for _, v := range vals {
		b, err := Encode(FloatValue(v), TypeFloat, 4)
		require.NoError(t, err)
		encoded = append(encoded, b)
	}
	for i := 1; i < len(encoded); i++ {
		require.Negative(t, CompareEncoded(encoded[i-1], encoded[i]))
	}
}

func TestCompareIntFloatWidening(t *testing.T) {
	c, err := Compare(IntValue(3), FloatValue(3.0))
	require.NoError(t, err)
	require.Zero(t, c)

	c, err = Compare(FloatValue(3.5), IntValue(3))
	require.NoError(t, err)
	require.Positive(t, c)
}

func TestCompareCharVsNumericIsError(t *testing.T) {
	_, err := Compare(CharValue([]byte("x")), IntValue(1))
	require.Error(t, err)
}
