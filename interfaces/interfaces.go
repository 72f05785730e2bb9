package interfaces

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// CertificateLedger is the typed, error-normalized surface of the soulbound
// certificate contract. Mutating calls submit a transaction and resolve only
// once it reaches confirmation; a successfully submitted transaction is
// irrevocable even if confirmation is still pending. No retries are performed
// automatically; idempotency is the caller's responsibility.
type CertificateLedger interface {
	// Issue creates a new certificate owned by holder. Issuer-only on the
	// ledger side; the new token ID is not reported back and must be learned
	// through a subsequent CredentialsOf read.
	Issue(ctx context.Context, holder common.Address) (common.Hash, error)

	// Approve acknowledges certificate id as its holder.
	Approve(ctx context.Context, id TokenID) (common.Hash, error)

	// Revoke permanently removes certificate id. Issuer-only on the ledger side.
	Revoke(ctx context.Context, id TokenID) (common.Hash, error)

	// CredentialsOf lists the token IDs currently held by account.
	CredentialsOf(ctx context.Context, account common.Address) ([]TokenID, error)

	// HolderOf returns the current holder of id. Fails with
	// ErrTransactionReverted if the token never existed.
	HolderOf(ctx context.Context, id TokenID) (common.Address, error)

	// Administrator returns the issuer account (the contract owner).
	Administrator(ctx context.Context) (common.Address, error)

	// BalanceOf returns the number of certificates held by account.
	BalanceOf(ctx context.Context, account common.Address) (uint64, error)

	// RawRecord reads the contract's internal {exists, approved} record for
	// id. The mapping may not be publicly exposed, in which case the call
	// fails with ErrReadDecodeFailure.
	RawRecord(ctx context.Context, id TokenID) (CertificateStatus, error)
}

// AuthorizationGuard derives the session role and gates issuer-only
// operations before any network call is made.
type AuthorizationGuard interface {
	// Account is the connected session account.
	Account() common.Address

	// CurrentRole re-derives the caller's role from the ledger administrator
	// account. The result is session-scoped and recomputed on every call.
	CurrentRole(ctx context.Context) (Role, error)

	// RequireIssuer fails fast with ErrAuthorizationDenied when the session
	// account is not the ledger administrator.
	RequireIssuer(ctx context.Context) error
}

// DocumentBackend persists validated document records keyed by token ID.
// Implementations decide durability; only the in-memory backend guarantees
// process-lifetime read-your-write semantics required by the core contract.
type DocumentBackend interface {
	// Store saves the record, replacing any prior record for the same token ID.
	Store(ctx context.Context, record DocumentRecord) error

	// Fetch retrieves the record for id, or ErrRecordNotFound.
	Fetch(ctx context.Context, id TokenID) (DocumentRecord, error)

	// Delete removes the record for id. Returns ErrRecordNotFound if absent.
	Delete(ctx context.Context, id TokenID) error

	// List returns the token IDs with a stored record.
	List(ctx context.Context) ([]TokenID, error)

	// Available checks whether the backend is reachable.
	Available(ctx context.Context) bool

	// Name returns a unique identifier for this backend.
	Name() string

	// LocationURI returns the URI that identifies this backend.
	LocationURI() string
}

// MetadataStore persists one descriptive record per certificate ID. Save
// replaces the prior record wholesale and must never expose a partially
// written record to a concurrent Load.
type MetadataStore interface {
	Save(ctx context.Context, id TokenID, record MetadataRecord) error
	Load(ctx context.Context, id TokenID) (MetadataRecord, error)
	Remove(ctx context.Context, id TokenID) bool
}
