package orchestrator

import (
	"fmt"

	"github.com/aescanero/gasrunner/pkg/domain"
)

// Template describes the requests of a generated batch
type Template struct {
	Name          string            `json:"name"`
	Target        string            `json:"target"`
	TypeArguments []string          `json:"type_arguments,omitempty"`
	Args          []domain.Argument `json:"args"`
	GasBudget     uint64            `json:"gas_budget,omitempty"`
}

// Generator returns the arguments for request index. base is a private
// copy of the template arguments the generator may modify and return.
type Generator func(index int, base []domain.Argument) ([]domain.Argument, error)

// BuildBatch creates count requests from template with ids <name>-<index>.
// It has no side effects: the same template and generator always produce
// the same batch, and no two requests share argument memory.
func BuildBatch(template Template, count int, generator Generator) ([]domain.OperationRequest, error) {
	if template.Name == "" {
		return nil, fmt.Errorf("%w: template needs a name", domain.ErrInvalidRequest)
	}
	if count < 0 {
		return nil, fmt.Errorf("%w: negative request count %d", domain.ErrInvalidRequest, count)
	}

	base := domain.OperationRequest{
		Target:        template.Target,
		TypeArguments: template.TypeArguments,
		Args:          template.Args,
		GasBudget:     template.GasBudget,
	}

	reqs := make([]domain.OperationRequest, 0, count)
	for i := 0; i < count; i++ {
		req := base.Clone()
		req.ID = fmt.Sprintf("%s-%d", template.Name, i)

		if generator != nil {
			args, err := generator(i, req.Args)
			if err != nil {
				return nil, fmt.Errorf("failed to generate request %s: %w", req.ID, err)
			}
			req.Args = args
		}
		reqs = append(reqs, req)
	}
	return reqs, nil
}
