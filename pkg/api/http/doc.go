// Package http provides the HTTP REST API implementation.
//
// The HTTP server exposes endpoints for:
//   - Batch submission, status, results and cancellation
//   - Gas pool and lane snapshots of the parallel executor
//   - Health checks
//   - Prometheus metrics
package http
