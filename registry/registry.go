// Package registry holds the reconciliation core: the session holder's
// credential-id set, the per-id pending-action map, and the command flow
// that submits mutations through the authorization guard and the ledger
// gateway and then resynchronizes from the ledger.
//
// The registry never patches its state from a mutation's expected outcome.
// Only a fresh CredentialsOf read is trusted, because local optimistic
// updates cannot know about concurrent mutations from other sessions or
// about the ledger's own ordering of pending transactions.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/atomic"

	"github.com/certreg/sbt-registry-backend/interfaces"
)

// pendingKey marks one in-flight mutation. Approve and burn are keyed by
// token ID; mint has no ID until the next resync, so it is keyed by the
// holder the certificate is minted for.
type pendingKey struct {
	verb   interfaces.ActionVerb
	id     interfaces.TokenID
	holder common.Address
}

// Registry reconciles the local credential view with the ledger.
type Registry struct {
	ledger interfaces.CertificateLedger
	guard  interfaces.AuthorizationGuard
	log    *slog.Logger

	// resyncSeq issues completion tokens so that an earlier in-flight resync
	// can never overwrite the result of a later one that completed first.
	resyncSeq atomic.Uint64

	mu          sync.Mutex
	known       map[interfaces.TokenID]struct{}
	pending     map[pendingKey]struct{}
	lastApplied uint64
}

// New creates a registry for the guard's session account. The set starts
// empty; call Resync to populate it.
func New(ledger interfaces.CertificateLedger, guard interfaces.AuthorizationGuard, log *slog.Logger) *Registry {
	return &Registry{
		ledger:  ledger,
		guard:   guard,
		log:     log,
		known:   make(map[interfaces.TokenID]struct{}),
		pending: make(map[pendingKey]struct{}),
	}
}

// Credentials returns the current known credential IDs in ascending order.
func (r *Registry) Credentials() []interfaces.TokenID {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]interfaces.TokenID, 0, len(r.known))
	for id := range r.known {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Has reports whether the registry currently lists id for the session holder.
func (r *Registry) Has(id interfaces.TokenID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.known[id]
	return ok
}

// Pending reports whether a mutation with the given verb is in flight for id.
func (r *Registry) Pending(id interfaces.TokenID, verb interfaces.ActionVerb) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.pending[pendingKey{verb: verb, id: id}]
	return ok
}

// Mint issues a new certificate for holder. Issuer-only; the minted ID is
// deliberately not inferred from the transaction result. The ledger, not the
// client, is the source of truth for ID assignment order, so the ID stays
// unknown until the next resync.
func (r *Registry) Mint(ctx context.Context, holder common.Address) error {
	if err := interfaces.ValidateAccount(holder); err != nil {
		return err
	}
	if err := r.guard.RequireIssuer(ctx); err != nil {
		return err
	}

	key := pendingKey{verb: interfaces.VerbMint, holder: holder}
	if err := r.setPending(key); err != nil {
		return err
	}
	defer r.clearPending(key)

	txHash, err := r.ledger.Issue(ctx, holder)
	if err != nil {
		return fmt.Errorf("mint for %s: %w", holder.Hex(), err)
	}

	r.log.Info("Certificate minted",
		slog.String("holder", holder.Hex()),
		slog.String("tx", txHash.Hex()))

	return r.resyncAfter(ctx, interfaces.VerbMint)
}

// Approve acknowledges certificate id as the session holder. The id must be
// in the known set; the check is client-side for fast feedback, the ledger
// remains the final arbiter.
func (r *Registry) Approve(ctx context.Context, id interfaces.TokenID) error {
	if !r.Has(id) {
		return fmt.Errorf("%w: certificate %s is not held by this account", interfaces.ErrValidation, id)
	}

	key := pendingKey{verb: interfaces.VerbApprove, id: id}
	if err := r.setPending(key); err != nil {
		return err
	}
	defer r.clearPending(key)

	txHash, err := r.ledger.Approve(ctx, id)
	if err != nil {
		return fmt.Errorf("approve %s: %w", id, err)
	}

	r.log.Info("Certificate approved",
		slog.String("token_id", id.String()),
		slog.String("tx", txHash.Hex()))

	return r.resyncAfter(ctx, interfaces.VerbApprove)
}

// Burn permanently revokes certificate id. Issuer-only. The issuer's own
// holder set usually does not list the token, so existence is left to the
// ledger: a burn of a nonexistent id surfaces the ledger rejection, it is
// never treated as success.
func (r *Registry) Burn(ctx context.Context, id interfaces.TokenID) error {
	if err := r.guard.RequireIssuer(ctx); err != nil {
		return err
	}

	key := pendingKey{verb: interfaces.VerbBurn, id: id}
	if err := r.setPending(key); err != nil {
		return err
	}
	defer r.clearPending(key)

	txHash, err := r.ledger.Revoke(ctx, id)
	if err != nil {
		return fmt.Errorf("burn %s: %w", id, err)
	}

	r.log.Info("Certificate burned",
		slog.String("token_id", id.String()),
		slog.String("tx", txHash.Hex()))

	return r.resyncAfter(ctx, interfaces.VerbBurn)
}

// Resync re-reads the full holder credential list and replaces the local set
// wholesale. Results are sequenced by completion order: a resync whose token
// was issued before an already-applied one is dropped, so last-complete-wins
// and an in-flight earlier read can never clobber a newer result.
//
// On failure the last-known-good set stays in place; stale-but-present is
// preferred over empty-and-misleading.
func (r *Registry) Resync(ctx context.Context) error {
	token := r.resyncSeq.Add(1)

	ids, err := r.ledger.CredentialsOf(ctx, r.guard.Account())
	if err != nil {
		return fmt.Errorf("resync: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if token <= r.lastApplied {
		r.log.Debug("Resync result superseded",
			slog.Uint64("token", token),
			slog.Uint64("applied", r.lastApplied))
		return nil
	}
	r.lastApplied = token

	fresh := make(map[interfaces.TokenID]struct{}, len(ids))
	for _, id := range ids {
		fresh[id] = struct{}{}
	}
	r.known = fresh

	r.log.Debug("Registry resynced",
		slog.Uint64("token", token),
		slog.Int("credentials", len(fresh)))
	return nil
}

// RunResyncLoop resynchronizes on a fixed interval until ctx is done. The
// ledger never pushes changes made by other sessions, so polling is the only
// way to observe them.
func (r *Registry) RunResyncLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.Resync(ctx); err != nil {
				r.log.Warn("Periodic resync failed", "err", err)
			}
		}
	}
}

// resyncAfter runs the mandatory post-mutation resync. The mutation itself
// already confirmed; a resync failure here is recoverable and reported as
// such, with the last-known-good set kept in place.
func (r *Registry) resyncAfter(ctx context.Context, verb interfaces.ActionVerb) error {
	if err := r.Resync(ctx); err != nil {
		return fmt.Errorf("%s confirmed but state not refreshed: %w", verb, err)
	}
	return nil
}

func (r *Registry) setPending(key pendingKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, inFlight := r.pending[key]; inFlight {
		if key.verb == interfaces.VerbMint {
			return fmt.Errorf("%w: mint for %s", interfaces.ErrActionPending, key.holder.Hex())
		}
		return fmt.Errorf("%w: %s for certificate %s", interfaces.ErrActionPending, key.verb, key.id)
	}
	r.pending[key] = struct{}{}
	return nil
}

func (r *Registry) clearPending(key pendingKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pending, key)
}
