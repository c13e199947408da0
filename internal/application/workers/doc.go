// Package workers implements the parallel executor.
//
// The executor owns a fixed number of lanes. For each request a lane:
//   - Checks out a gas coin from its gaspool.Pool
//   - Builds and signs the transaction with that coin
//   - Submits it with a per-submission timeout
//   - Returns the coin with its new balance, or invalidates it on failure
//   - Retries network failures and timeouts on a fresh coin with backoff
//
// The health monitor logs lane status and exports it as metrics.
package workers
