package orchestrator

import (
	"testing"

	"github.com/aescanero/gasrunner/pkg/domain"
	"github.com/stretchr/testify/assert"
)

func request(id string) domain.OperationRequest {
	return domain.OperationRequest{ID: id, Target: "0x1::counter::increment", Args: []domain.Argument{domain.PureU64(1)}}
}

func TestValidator(t *testing.T) {
	bound := request("b").WithResource(domain.ResourceHandle{Ref: domain.ObjectRef{ObjectID: "0xc", Version: 1}})

	tests := []struct {
		name    string
		spec    *BatchSpec
		wantErr bool
	}{
		{
			name: "valid serial batch",
			spec: &BatchSpec{Mode: domain.ExecutionModeSerial, Requests: []domain.OperationRequest{request("a"), request("b")}},
		},
		{
			name: "valid parallel batch",
			spec: &BatchSpec{Mode: domain.ExecutionModeParallel, Requests: []domain.OperationRequest{request("a")}},
		},
		{
			name:    "nil batch",
			wantErr: true,
		},
		{
			name:    "unknown mode",
			spec:    &BatchSpec{Mode: "sideways", Requests: []domain.OperationRequest{request("a")}},
			wantErr: true,
		},
		{
			name:    "empty batch",
			spec:    &BatchSpec{Mode: domain.ExecutionModeSerial},
			wantErr: true,
		},
		{
			name:    "too many requests",
			spec:    &BatchSpec{Mode: domain.ExecutionModeSerial, Requests: []domain.OperationRequest{request("a"), request("b"), request("c"), request("d")}},
			wantErr: true,
		},
		{
			name:    "missing id",
			spec:    &BatchSpec{Mode: domain.ExecutionModeSerial, Requests: []domain.OperationRequest{request("")}},
			wantErr: true,
		},
		{
			name:    "duplicate id",
			spec:    &BatchSpec{Mode: domain.ExecutionModeSerial, Requests: []domain.OperationRequest{request("a"), request("a")}},
			wantErr: true,
		},
		{
			name:    "already bound",
			spec:    &BatchSpec{Mode: domain.ExecutionModeParallel, Requests: []domain.OperationRequest{request("a"), bound}},
			wantErr: true,
		},
		{
			name: "bad target",
			spec: &BatchSpec{Mode: domain.ExecutionModeSerial, Requests: []domain.OperationRequest{
				{ID: "a", Target: "increment"},
			}},
			wantErr: true,
		},
	}

	validator := NewValidator(3)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validator.Validate(tt.spec)
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrInvalidRequest)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidatorWithoutLimit(t *testing.T) {
	reqs := make([]domain.OperationRequest, 0, 100)
	for i := 0; i < 100; i++ {
		reqs = append(reqs, request(string(rune('a'+i%26))+string(rune('a'+i/26))))
	}
	assert.NoError(t, NewValidator(0).Validate(&BatchSpec{Mode: domain.ExecutionModeParallel, Requests: reqs}))
}
