// Package daemon coordinates the long-running gisterd process.
//
// It wires configuration, the state store, the workflow manager, and the
// HTTP operational API into a single lifecycle with flock-based locking to
// prevent multiple instances. Keep orchestration logic here: individual
// pipeline steps live in their own packages while the daemon focuses on
// startup, shutdown, and high level coordination.
package daemon
