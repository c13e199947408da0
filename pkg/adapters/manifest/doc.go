// Package manifest provides ports.ManifestStore implementations that map
// deployed object type names to object ids.
//
// Implementations:
//   - file: a JSON list of {type, id} entries written at deploy time
//   - redis: a Redis hash of name to id
package manifest
