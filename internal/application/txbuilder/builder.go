// Package txbuilder turns operation requests into signed transactions.
package txbuilder

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aescanero/gasrunner/pkg/domain"
	"github.com/aescanero/gasrunner/pkg/ports"
)

// VersionLookup returns the last known reference of an owned object
type VersionLookup func(objectID string) (domain.ObjectRef, bool)

// Builder builds and signs transactions for one sender
type Builder struct {
	signer    ports.Signer
	gasBudget uint64
}

// New creates a builder. gasBudget is used for requests that carry none.
func New(signer ports.Signer, gasBudget uint64) *Builder {
	return &Builder{signer: signer, gasBudget: gasBudget}
}

// Sender returns the signer's address
func (b *Builder) Sender() string {
	return b.signer.Address()
}

// Build binds the gas coin, resolves object references and signs the result
func (b *Builder) Build(ctx context.Context, req domain.OperationRequest, gas domain.ResourceHandle, lookup VersionLookup) (*domain.Transaction, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	bound := req.WithResource(gas)

	budget := bound.GasBudget
	if budget == 0 {
		budget = b.gasBudget
	}

	objects, err := resolveObjects(bound.Args, lookup)
	if err != nil {
		return nil, err
	}

	data := domain.TransactionData{
		Sender:    b.signer.Address(),
		Request:   bound,
		Gas:       gas.Ref,
		GasBudget: budget,
		Objects:   objects,
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to encode transaction: %w", err)
	}

	sig, err := b.signer.Sign(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}

	return &domain.Transaction{Data: data, Bytes: raw, Signature: sig}, nil
}

// UnpinnedObjects returns the owned object ids the request leaves unversioned
func UnpinnedObjects(req domain.OperationRequest) []string {
	var ids []string
	for _, a := range req.Args {
		if a.Kind != domain.ArgumentObject || a.Object == nil || a.Object.Shared {
			continue
		}
		if a.Object.ID != "" && a.Object.Version == 0 {
			ids = append(ids, a.Object.ID)
		}
	}
	return ids
}

func resolveObjects(args []domain.Argument, lookup VersionLookup) ([]domain.ObjectRef, error) {
	var refs []domain.ObjectRef
	for i, a := range args {
		if a.Kind != domain.ArgumentObject {
			continue
		}
		obj := a.Object
		if obj.ID == "" {
			return nil, fmt.Errorf("%w: arg %d: unresolved symbol %q", domain.ErrInvalidRequest, i, obj.Symbol)
		}

		ref := domain.ObjectRef{ObjectID: obj.ID, Version: obj.Version}
		switch {
		case obj.Shared:
			ref.Version = obj.InitialSharedVersion
		case ref.Version == 0 && lookup != nil:
			if known, ok := lookup(obj.ID); ok {
				ref = known
			}
		}
		refs = append(refs, ref)
	}
	return refs, nil
}
