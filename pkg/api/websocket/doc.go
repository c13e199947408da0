// Package websocket provides real-time event streaming via WebSocket.
//
// Clients can connect to /api/v1/batches/:id/stream to receive one message
// per request outcome of a running batch, followed by its final event.
package websocket
