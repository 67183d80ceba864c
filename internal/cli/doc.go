// Package cli wires configuration into a running bandit process.
// The cobra commands in cmd/bandit are thin wrappers around it.
package cli
