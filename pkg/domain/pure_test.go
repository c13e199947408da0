package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPureEncodings(t *testing.T) {
	assert.Equal(t, []byte{7}, PureU8(7).Bytes)
	assert.Equal(t, []byte{0x01, 0x02, 0, 0, 0, 0, 0, 0}, PureU64(0x0201).Bytes)
	assert.Equal(t, []byte{1}, PureBool(true).Bytes)
	assert.Equal(t, []byte{3, 'a', 'b', 'c'}, PureBytes([]byte("abc")).Bytes)

	u128, err := PureU128("340282366920938463463374607431768211455")
	require.NoError(t, err)
	assert.Equal(t, []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff}, u128.Bytes)

	small, err := PureU128("258")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x02, 0x01}, small.Bytes[:2])

	_, err = PureU128("340282366920938463463374607431768211456")
	assert.ErrorIs(t, err, ErrInvalidRequest)
	_, err = PureU128("-1")
	assert.ErrorIs(t, err, ErrInvalidRequest)

	addr, err := PureAddress("0x2")
	require.NoError(t, err)
	require.Len(t, addr.Bytes, 32)
	assert.Equal(t, byte(2), addr.Bytes[31])

	_, err = PureAddress("0xnothex")
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestU64Vector(t *testing.T) {
	arg := PureU64Vector([]uint64{1, 300, 1 << 40})
	assert.Equal(t, byte(3), arg.Bytes[0])
	assert.Len(t, arg.Bytes, 1+3*8)

	got, err := DecodeU64Vector(arg.Bytes)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 300, 1 << 40}, got)

	big := make([]uint64, 200)
	got, err = DecodeU64Vector(PureU64Vector(big).Bytes)
	require.NoError(t, err)
	assert.Len(t, got, 200)

	_, err = DecodeU64Vector([]byte{2, 1, 0, 0, 0, 0, 0, 0, 0})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = DecodeU64Vector([]byte{0x80})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestValidatePure(t *testing.T) {
	tests := []struct {
		name  string
		arg   Argument
		valid bool
	}{
		{"u64", PureU64(1), true},
		{"short u64", Argument{Kind: ArgumentPure, Type: PureTypeU64, Bytes: []byte{1}}, false},
		{"bool two", Argument{Kind: ArgumentPure, Type: PureTypeBool, Bytes: []byte{2}}, false},
		{"bytes", PureBytes([]byte("hello")), true},
		{"bytes bad length", Argument{Kind: ArgumentPure, Type: PureTypeBytes, Bytes: []byte{4, 'a'}}, false},
		{"unknown type", Argument{Kind: ArgumentPure, Type: "u256", Bytes: []byte{0}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.arg.validate()
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
