// Package main (cmd/sbtctl) implements a command-line client for the
// soulbound certificate contract.
//
// The client talks directly to the ledger RPC, so it works without a running
// registry server. Read commands (list, status, holder-of, balance-of) need no
// signer; mutating commands (mint, approve, burn) require a private key and go
// through the same authorization gating and post-mutation resynchronization as
// the server.
//
// All command output is JSON on stdout, one object per invocation.
package main
