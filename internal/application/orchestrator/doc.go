// Package orchestrator runs batches of operation requests on the executors.
//
// The manager coordinates batch runs by:
//   - Resolving manifest names in targets and object arguments
//   - Validating the batch before anything is submitted
//   - Running the batch on the serial or parallel executor under a timeout
//   - Publishing one event per transition and per request outcome
//   - Persisting the batch state and its outcomes via batch storage
//
// BuildBatch expands a template into a batch with deterministic request ids.
package orchestrator
