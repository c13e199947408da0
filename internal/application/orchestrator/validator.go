package orchestrator

import (
	"fmt"

	"github.com/aescanero/gasrunner/pkg/domain"
)

// Validator validates batch specs
type Validator struct {
	maxRequests int
}

// NewValidator creates a new batch validator. maxRequests of zero means no limit.
func NewValidator(maxRequests int) *Validator {
	return &Validator{maxRequests: maxRequests}
}

// Validate validates a batch spec whose requests are already resolved
func (v *Validator) Validate(spec *BatchSpec) error {
	if spec == nil {
		return fmt.Errorf("%w: batch is nil", domain.ErrInvalidRequest)
	}

	switch spec.Mode {
	case domain.ExecutionModeSerial, domain.ExecutionModeParallel:
	default:
		return fmt.Errorf("%w: unknown execution mode %q", domain.ErrInvalidRequest, spec.Mode)
	}

	if len(spec.Requests) == 0 {
		return fmt.Errorf("%w: batch must have at least one request", domain.ErrInvalidRequest)
	}
	if v.maxRequests > 0 && len(spec.Requests) > v.maxRequests {
		return fmt.Errorf("%w: batch has %d requests, limit is %d",
			domain.ErrInvalidRequest, len(spec.Requests), v.maxRequests)
	}

	ids := make(map[string]bool, len(spec.Requests))
	for i, req := range spec.Requests {
		if req.ID == "" {
			return fmt.Errorf("%w: request %d has no id", domain.ErrInvalidRequest, i)
		}
		if ids[req.ID] {
			return fmt.Errorf("%w: duplicate request id %s", domain.ErrInvalidRequest, req.ID)
		}
		ids[req.ID] = true

		if req.Resource != nil {
			return fmt.Errorf("%w: request %s is already bound to a gas coin", domain.ErrInvalidRequest, req.ID)
		}
		if err := req.Validate(); err != nil {
			return fmt.Errorf("invalid request %s: %w", req.ID, err)
		}
	}

	return nil
}
