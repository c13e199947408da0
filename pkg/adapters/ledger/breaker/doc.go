// Package breaker guards a ledger gateway with a circuit breaker.
package breaker
