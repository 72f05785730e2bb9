// Package main (cmd/server) implements the soulbound certificate registry server.
//
// The server exposes HTTP endpoints for certificate lifecycle management:
// issuing (mint), holder acknowledgment (approve), revocation (burn), status
// probing, and the local document and metadata caches. All ledger state lives
// in the certificate contract; the server keeps only a reconciled view of the
// session account's credentials plus the local caches.
//
// The session account is derived from the configured private key. Its role is
// re-derived from the contract administrator on every authorization check, so
// issuer-only operations are gated before any transaction is submitted.
//
// Supporting documents can be cached in process memory (the default), on the
// local filesystem, in S3-compatible object storage, or on an IPFS node,
// selected with the document-store URI flag. Certificate metadata is persisted
// as one JSON file per certificate under the metadata directory.
//
// A background loop resynchronizes the credential set from the ledger on a
// fixed interval, since the ledger never pushes changes made by other sessions.
//
// The server implements graceful shutdown on receiving termination signals
// (SIGINT/SIGTERM) and supports health checks, metrics collection, and optional
// profiling endpoints.
//
// Example usage:
//
//	server --rpc-addr http://127.0.0.1:8545 \
//	       --contract 0x5FbDB2315678afecb367f032d93F642f64180aa3 \
//	       --private-key $SBT_PRIVATE_KEY \
//	       --document-store file:///var/lib/sbt/documents \
//	       --metadata-dir /var/lib/sbt/metadata
package main
