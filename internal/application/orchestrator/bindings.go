package orchestrator

import (
	"context"
	"fmt"
	"regexp"
	"sort"

	"github.com/aescanero/gasrunner/pkg/domain"
	"github.com/aescanero/gasrunner/pkg/ports"
)

var placeholder = regexp.MustCompile(`\$\{([^}]+)\}`)

// Bindings maps manifest names to deployed object ids. They are loaded
// once at startup so request handling never touches the manifest.
type Bindings map[string]string

// LoadBindings resolves every name through store. A missing name is an error.
func LoadBindings(ctx context.Context, store ports.ManifestStore, names []string) (Bindings, error) {
	b := make(Bindings, len(names))
	var missing []string

	for _, name := range names {
		id, found, err := store.Resolve(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve %s: %w", name, err)
		}
		if !found {
			missing = append(missing, name)
			continue
		}
		b[name] = id
	}

	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, fmt.Errorf("%w: manifest has no entry for %v", domain.ErrInvalidConfig, missing)
	}
	return b, nil
}

// Names returns the bound names, sorted
func (b Bindings) Names() []string {
	names := make([]string, 0, len(b))
	for name := range b {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Apply returns a copy of req with ${name} placeholders in its target and
// type arguments, and symbolic object arguments, replaced by bound ids
func (b Bindings) Apply(req domain.OperationRequest) (domain.OperationRequest, error) {
	out := req.Clone()

	target, err := b.expand(out.Target)
	if err != nil {
		return req, err
	}
	out.Target = target

	for i, typ := range out.TypeArguments {
		if out.TypeArguments[i], err = b.expand(typ); err != nil {
			return req, err
		}
	}

	for i, a := range out.Args {
		if a.Kind != domain.ArgumentObject || a.Object == nil || a.Object.Symbol == "" {
			continue
		}
		id, ok := b[a.Object.Symbol]
		if !ok {
			return req, fmt.Errorf("%w: arg %d: unknown object %q", domain.ErrInvalidRequest, i, a.Object.Symbol)
		}
		a.Object.ID = id
	}

	return out, nil
}

func (b Bindings) expand(s string) (string, error) {
	var unknown string
	out := placeholder.ReplaceAllStringFunc(s, func(m string) string {
		name := placeholder.FindStringSubmatch(m)[1]
		id, ok := b[name]
		if !ok {
			unknown = name
			return m
		}
		return id
	})
	if unknown != "" {
		return "", fmt.Errorf("%w: unknown name %q in %q", domain.ErrInvalidRequest, unknown, s)
	}
	return out, nil
}
