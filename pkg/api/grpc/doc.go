// Package grpc serves the standard gRPC health service for the executors.
package grpc
