// Package gaspool manages the working set of gas coins used by parallel lanes.
//
// The pool:
//   - Hands each free coin to exactly one caller at a time
//   - Splits new coins off a source coin when none is free (single-flight)
//   - Refills in the background when free coins drop below a watermark
//   - Drops coins that fall below the minimum balance or fail a submission
//   - Keeps balance accounting that can be checked at any point via Stats
//   - Claims its coins in the sender's coinlock registry and skips coins held elsewhere
package gaspool
