package domain

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
)

// PureType names the move type of a pure argument
type PureType string

const (
	PureTypeU8        PureType = "u8"
	PureTypeU64       PureType = "u64"
	PureTypeU128      PureType = "u128"
	PureTypeBool      PureType = "bool"
	PureTypeAddress   PureType = "address"
	PureTypeBytes     PureType = "vector<u8>"
	PureTypeU64Vector PureType = "vector<u64>"
)

const addressLength = 32

// PureU8 encodes a u8 argument
func PureU8(v uint8) Argument {
	return Argument{Kind: ArgumentPure, Type: PureTypeU8, Bytes: []byte{v}}
}

// PureU64 encodes a u64 argument
func PureU64(v uint64) Argument {
	return Argument{Kind: ArgumentPure, Type: PureTypeU64, Bytes: binary.LittleEndian.AppendUint64(nil, v)}
}

// PureU128 encodes a u128 argument given as a decimal string
func PureU128(decimal string) (Argument, error) {
	n, ok := new(big.Int).SetString(decimal, 10)
	if !ok || n.Sign() < 0 || n.BitLen() > 128 {
		return Argument{}, fmt.Errorf("%w: invalid u128 %q", ErrInvalidRequest, decimal)
	}
	be := n.FillBytes(make([]byte, 16))
	le := make([]byte, 16)
	for i := range be {
		le[i] = be[15-i]
	}
	return Argument{Kind: ArgumentPure, Type: PureTypeU128, Bytes: le}, nil
}

// PureBool encodes a bool argument
func PureBool(v bool) Argument {
	b := byte(0)
	if v {
		b = 1
	}
	return Argument{Kind: ArgumentPure, Type: PureTypeBool, Bytes: []byte{b}}
}

// PureAddress encodes a 0x-prefixed hex address, left padded to 32 bytes
func PureAddress(addr string) (Argument, error) {
	raw := strings.TrimPrefix(strings.ToLower(addr), "0x")
	if len(raw)%2 == 1 {
		raw = "0" + raw
	}
	decoded, err := hex.DecodeString(raw)
	if err != nil || len(decoded) > addressLength {
		return Argument{}, fmt.Errorf("%w: invalid address %q", ErrInvalidRequest, addr)
	}
	out := make([]byte, addressLength)
	copy(out[addressLength-len(decoded):], decoded)
	return Argument{Kind: ArgumentPure, Type: PureTypeAddress, Bytes: out}, nil
}

// PureBytes encodes a vector<u8> argument with a uleb128 length prefix
func PureBytes(v []byte) Argument {
	out := appendUleb128(make([]byte, 0, len(v)+5), uint64(len(v)))
	out = append(out, v...)
	return Argument{Kind: ArgumentPure, Type: PureTypeBytes, Bytes: out}
}

// PureU64Vector encodes a vector<u64> argument
func PureU64Vector(vs []uint64) Argument {
	out := appendUleb128(make([]byte, 0, len(vs)*8+5), uint64(len(vs)))
	for _, v := range vs {
		out = binary.LittleEndian.AppendUint64(out, v)
	}
	return Argument{Kind: ArgumentPure, Type: PureTypeU64Vector, Bytes: out}
}

// DecodeU64Vector reverses PureU64Vector
func DecodeU64Vector(b []byte) ([]uint64, error) {
	n, rest, err := readUleb128(b)
	if err != nil {
		return nil, err
	}
	if uint64(len(rest)) != n*8 {
		return nil, fmt.Errorf("%w: vector<u64> length mismatch", ErrInvalidRequest)
	}
	out := make([]uint64, n)
	for i := range out {
		out[i] = binary.LittleEndian.Uint64(rest[i*8:])
	}
	return out, nil
}

func validatePure(t PureType, b []byte) error {
	switch t {
	case PureTypeU8, PureTypeBool:
		if len(b) != 1 {
			return fmt.Errorf("%s must be 1 byte, got %d", t, len(b))
		}
		if t == PureTypeBool && b[0] > 1 {
			return fmt.Errorf("bool must be 0 or 1")
		}
	case PureTypeU64:
		if len(b) != 8 {
			return fmt.Errorf("u64 must be 8 bytes, got %d", len(b))
		}
	case PureTypeU128:
		if len(b) != 16 {
			return fmt.Errorf("u128 must be 16 bytes, got %d", len(b))
		}
	case PureTypeAddress:
		if len(b) != addressLength {
			return fmt.Errorf("address must be %d bytes, got %d", addressLength, len(b))
		}
	case PureTypeBytes:
		n, rest, err := readUleb128(b)
		if err != nil {
			return err
		}
		if uint64(len(rest)) != n {
			return fmt.Errorf("vector<u8> length mismatch")
		}
	case PureTypeU64Vector:
		if _, err := DecodeU64Vector(b); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unsupported pure type %q", t)
	}
	return nil
}

func appendUleb128(b []byte, v uint64) []byte {
	for v >= 0x80 {
		b = append(b, byte(v)|0x80)
		v >>= 7
	}
	return append(b, byte(v))
}

func readUleb128(b []byte) (uint64, []byte, error) {
	var v uint64
	var shift uint
	for i, c := range b {
		if shift >= 64 {
			break
		}
		v |= uint64(c&0x7f) << shift
		if c&0x80 == 0 {
			return v, b[i+1:], nil
		}
		shift += 7
	}
	return 0, nil, fmt.Errorf("%w: malformed uleb128 length", ErrInvalidRequest)
}
