// Package memory provides an in-process ledger used for dry runs and tests.
//
// The ledger tracks gas coins and objects with versions, charges a fixed
// fee per transaction, honors payment arguments and the pool's coin split
// call, and keeps a submission log with in-flight windows.
package memory
