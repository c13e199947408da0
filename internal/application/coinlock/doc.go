// Package coinlock records which component spends each gas coin of an
// address.
//
// The registry:
//   - Holds at most one claim per coin
//   - Is shared process-wide per owner address via ForOwner
//   - Lets the gas pool and the serial executor skip each other's coins
package coinlock
