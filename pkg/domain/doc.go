// Package domain holds the value types shared by the gas pool, the
// executors and the adapters.
//
//   - ResourceHandle and ObjectRef describe gas coins and ledger objects
//   - OperationRequest and Argument describe one call to submit
//   - Transaction and Effects are what goes to and comes back from the ledger
//   - ExecutionOutcome is produced exactly once per request
//   - BatchState and Event back the orchestrator's batch runs
//
// Errors are sentinel values; classify them with errors.Is or IsRetryable.
package domain
