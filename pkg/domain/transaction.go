package domain

import (
	"crypto/sha256"
	"encoding/hex"
)

// TransactionData is the signed body of a transaction
type TransactionData struct {
	Sender    string           `json:"sender"`
	Request   OperationRequest `json:"request"`
	Gas       ObjectRef        `json:"gas"`
	GasBudget uint64           `json:"gas_budget"`

	// Objects holds the object arguments with their resolved references,
	// in argument order
	Objects []ObjectRef `json:"objects,omitempty"`
}

// Transaction is a built and signed transaction ready for the gateway
type Transaction struct {
	Data      TransactionData `json:"data"`
	Bytes     []byte          `json:"bytes"`
	Signature []byte          `json:"signature"`
}

// Digest returns the content digest of the signed bytes
func (t *Transaction) Digest() string {
	sum := sha256.Sum256(t.Bytes)
	return hex.EncodeToString(sum[:])
}

// Effects reports what a submitted transaction did on the ledger
type Effects struct {
	Digest  string `json:"digest"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`

	// GasObject is the gas coin's reference after execution
	GasObject    ObjectRef `json:"gas_object"`
	GasUsed      uint64    `json:"gas_used"`
	FinalBalance uint64    `json:"final_balance"`

	Created []CreatedObject `json:"created,omitempty"`
	Mutated []ObjectRef     `json:"mutated,omitempty"`
	Deleted []ObjectRef     `json:"deleted,omitempty"`
}

// CreatedObject is a new object produced by a transaction
type CreatedObject struct {
	Ref     ObjectRef `json:"ref"`
	Type    string    `json:"type,omitempty"`
	Balance uint64    `json:"balance,omitempty"`
}
