// Package ed25519 implements ports.Signer with an Ed25519 key.
//
// Keys are loaded from a base64 secret that may carry the scheme flag
// byte in front of the 32-byte seed. The account address is the hex
// encoded blake2b-256 hash of the flag byte followed by the public key.
package ed25519
