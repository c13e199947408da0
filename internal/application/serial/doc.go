// Package serial implements the single-lane executor.
//
// One goroutine drains a queue of requests and submits them in call order
// on one gas coin, building each transaction from the coin reference and
// object versions the previous confirmation produced. A failed request is
// reported to its caller only; the queue keeps going.
package serial
