package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRequest() OperationRequest {
	return OperationRequest{
		ID:            "r1",
		Target:        "0x1::game::play",
		TypeArguments: []string{NativeCoinType},
		Args: []Argument{
			SharedObject("0xh0", 3, true),
			PureU64(9),
			Payment(100),
		},
	}
}

func TestWithResourceLeavesOriginalUntouched(t *testing.T) {
	req := sampleRequest()
	gas := ResourceHandle{Ref: ObjectRef{ObjectID: "0xc", Version: 4}, Balance: 1000}

	bound := req.WithResource(gas)
	require.NotNil(t, bound.Resource)
	assert.Equal(t, gas, *bound.Resource)
	assert.Nil(t, req.Resource)

	bound.Args[0].Object.Mutable = false
	bound.Args[1].Bytes[0] = 0xff
	bound.TypeArguments[0] = "other"
	bound.Resource.Balance = 1

	assert.True(t, req.Args[0].Object.Mutable)
	assert.Equal(t, byte(9), req.Args[1].Bytes[0])
	assert.Equal(t, NativeCoinType, req.TypeArguments[0])
	assert.Equal(t, uint64(1000), gas.Balance)

	again := bound.Clone()
	again.Resource.Balance = 2
	assert.Equal(t, uint64(1), bound.Resource.Balance)
}

func TestRequestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*OperationRequest)
		valid  bool
	}{
		{"valid", func(r *OperationRequest) {}, true},
		{"two segment target", func(r *OperationRequest) { r.Target = "game::play" }, false},
		{"empty segment", func(r *OperationRequest) { r.Target = "0x1::::play" }, false},
		{"zero payment", func(r *OperationRequest) { r.Args[2] = Payment(0) }, true},
		{"object without id", func(r *OperationRequest) { r.Args[0] = Argument{Kind: ArgumentObject, Object: &ObjectArg{}} }, false},
		{"nil object", func(r *OperationRequest) { r.Args[0] = Argument{Kind: ArgumentObject} }, false},
		{"symbol object", func(r *OperationRequest) { r.Args[0] = SymbolObject("house", true, true) }, true},
		{"unknown kind", func(r *OperationRequest) { r.Args[1].Kind = "magic" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := sampleRequest()
			tt.mutate(&req)
			err := req.Validate()
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidRequest)
			}
		})
	}
}

func TestPaymentTotalAndSplitRequest(t *testing.T) {
	req := sampleRequest()
	req.Args = append(req.Args, Payment(50))
	assert.Equal(t, uint64(150), req.PaymentTotal())

	split := NewSplitRequest("split-1", []uint64{10, 20})
	require.NoError(t, split.Validate())
	assert.Equal(t, SplitCoinsTarget, split.Target)

	amounts, err := DecodeU64Vector(split.Args[0].Bytes)
	require.NoError(t, err)
	assert.Equal(t, []uint64{10, 20}, amounts)
}

func TestHandleWithEffects(t *testing.T) {
	h := ResourceHandle{Ref: ObjectRef{ObjectID: "0xc", Version: 1}, Balance: 100}

	assert.Equal(t, h, h.WithEffects(nil))

	fx := &Effects{GasObject: ObjectRef{ObjectID: "0xc", Version: 2, Digest: "d"}, FinalBalance: 90}
	updated := h.WithEffects(fx)
	assert.Equal(t, uint64(2), updated.Ref.Version)
	assert.Equal(t, uint64(90), updated.Balance)
	assert.Equal(t, uint64(1), h.Ref.Version)
	assert.Equal(t, "0xc@2", updated.Ref.String())
}
