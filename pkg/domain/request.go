package domain

import (
	"fmt"
	"strings"
)

// ArgumentKind discriminates call arguments
type ArgumentKind string

const (
	ArgumentPure    ArgumentKind = "pure"
	ArgumentObject  ArgumentKind = "object"
	ArgumentPayment ArgumentKind = "payment"
)

// SplitCoinsTarget is the call the gas pool uses to split its source coin
const SplitCoinsTarget = "0x2::pay::split_vec"

// NativeCoinType is the type argument of the ledger's gas coin
const NativeCoinType = "0x2::sui::SUI"

// Argument is one ordered, typed call argument
type Argument struct {
	Kind ArgumentKind `json:"kind"`

	// Pure
	Type  PureType `json:"type,omitempty"`
	Bytes []byte   `json:"bytes,omitempty"`

	// Object
	Object *ObjectArg `json:"object,omitempty"`

	// Payment is split off the gas coin at execution time
	Amount uint64 `json:"amount,omitempty"`
}

// ObjectArg references a ledger object by id or by manifest symbol
type ObjectArg struct {
	ID     string `json:"id,omitempty"`
	Symbol string `json:"symbol,omitempty"`

	// Version pins an owned object; zero lets the executor fill it in
	Version uint64 `json:"version,omitempty"`

	Shared               bool   `json:"shared,omitempty"`
	InitialSharedVersion uint64 `json:"initial_shared_version,omitempty"`
	Mutable              bool   `json:"mutable,omitempty"`
}

// OwnedObject references an owned object by id
func OwnedObject(id string) Argument {
	return Argument{Kind: ArgumentObject, Object: &ObjectArg{ID: id, Mutable: true}}
}

// SharedObject references a shared object
func SharedObject(id string, initialSharedVersion uint64, mutable bool) Argument {
	return Argument{Kind: ArgumentObject, Object: &ObjectArg{
		ID:                   id,
		Shared:               true,
		InitialSharedVersion: initialSharedVersion,
		Mutable:              mutable,
	}}
}

// SymbolObject references an object by its manifest name, resolved before submission
func SymbolObject(symbol string, shared, mutable bool) Argument {
	return Argument{Kind: ArgumentObject, Object: &ObjectArg{Symbol: symbol, Shared: shared, Mutable: mutable}}
}

// Payment splits amount off the gas coin and passes the new coin as the argument
func Payment(amount uint64) Argument {
	return Argument{Kind: ArgumentPayment, Amount: amount}
}

// OperationRequest describes one transaction to submit.
//
// Requests are treated as immutable values: binding a resource returns
// a copy and leaves the original untouched.
type OperationRequest struct {
	ID            string          `json:"id"`
	Target        string          `json:"target"`
	TypeArguments []string        `json:"type_arguments,omitempty"`
	Args          []Argument      `json:"args"`
	GasBudget     uint64          `json:"gas_budget,omitempty"`
	Resource      *ResourceHandle `json:"resource,omitempty"`
}

// WithResource returns a copy of the request bound to the given gas coin
func (r OperationRequest) WithResource(h ResourceHandle) OperationRequest {
	out := r.Clone()
	out.Resource = &h
	return out
}

// Clone returns a deep copy that shares no memory with r
func (r OperationRequest) Clone() OperationRequest {
	out := r
	out.TypeArguments = append([]string(nil), r.TypeArguments...)
	out.Args = make([]Argument, len(r.Args))
	for i, a := range r.Args {
		a.Bytes = append([]byte(nil), a.Bytes...)
		if a.Object != nil {
			obj := *a.Object
			a.Object = &obj
		}
		out.Args[i] = a
	}
	if r.Resource != nil {
		h := *r.Resource
		out.Resource = &h
	}
	return out
}

// PaymentTotal sums every payment argument
func (r OperationRequest) PaymentTotal() uint64 {
	var total uint64
	for _, a := range r.Args {
		if a.Kind == ArgumentPayment {
			total += a.Amount
		}
	}
	return total
}

// Validate checks the request is well formed
func (r OperationRequest) Validate() error {
	if err := validateTarget(r.Target); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	for i, a := range r.Args {
		if err := a.validate(); err != nil {
			return fmt.Errorf("%w: arg %d: %v", ErrInvalidRequest, i, err)
		}
	}
	return nil
}

func (a Argument) validate() error {
	switch a.Kind {
	case ArgumentPure:
		return validatePure(a.Type, a.Bytes)
	case ArgumentObject:
		if a.Object == nil {
			return fmt.Errorf("object argument without object")
		}
		if a.Object.ID == "" && a.Object.Symbol == "" {
			return fmt.Errorf("object argument needs an id or a symbol")
		}
		return nil
	case ArgumentPayment:
		// a zero payment yields an empty coin, e.g. for coin::destroy_zero
		return nil
	default:
		return fmt.Errorf("unknown argument kind %q", a.Kind)
	}
}

func validateTarget(target string) error {
	parts := strings.Split(target, "::")
	if len(parts) != 3 {
		return fmt.Errorf("target %q must be package::module::function", target)
	}
	for _, p := range parts {
		if p == "" {
			return fmt.Errorf("target %q has an empty segment", target)
		}
	}
	return nil
}

// NewSplitRequest builds the coin split used to replenish the gas pool
func NewSplitRequest(id string, amounts []uint64) OperationRequest {
	return OperationRequest{
		ID:            id,
		Target:        SplitCoinsTarget,
		TypeArguments: []string{NativeCoinType},
		Args:          []Argument{PureU64Vector(amounts)},
	}
}
