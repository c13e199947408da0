// Package events provides event bus implementations.
//
// Implementations:
//   - redis: Redis Streams, broadcast or with consumer groups
//   - memory: In-process fan-out for tests and single-process runs
package events
