// Package authz derives the session role from the ledger administrator
// account and gates issuer-only operations before any network call.
package authz

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/certreg/sbt-registry-backend/interfaces"
)

// Guard binds a session account to the ledger. The role is re-derived on
// every check; an account or connection change means constructing a new
// Guard, never reusing a cached role.
type Guard struct {
	ledger  interfaces.CertificateLedger
	account common.Address
	log     *slog.Logger
}

// NewGuard creates a guard for the given session account.
func NewGuard(ledger interfaces.CertificateLedger, account common.Address, log *slog.Logger) *Guard {
	return &Guard{ledger: ledger, account: account, log: log}
}

// Account returns the connected session account.
func (g *Guard) Account() common.Address {
	return g.account
}

// CurrentRole compares the session account against the ledger administrator.
func (g *Guard) CurrentRole(ctx context.Context) (interfaces.Role, error) {
	if g.account == (common.Address{}) {
		return interfaces.RoleHolder, fmt.Errorf("%w: no session account", interfaces.ErrConnectionUnavailable)
	}

	admin, err := g.ledger.Administrator(ctx)
	if err != nil {
		return interfaces.RoleHolder, fmt.Errorf("reading ledger administrator: %w", err)
	}

	if admin == g.account {
		return interfaces.RoleIssuer, nil
	}
	return interfaces.RoleHolder, nil
}

// RequireIssuer fails fast with ErrAuthorizationDenied when the session
// account is not the ledger administrator. Mint and burn call this before
// anything reaches the gateway.
func (g *Guard) RequireIssuer(ctx context.Context) error {
	role, err := g.CurrentRole(ctx)
	if err != nil {
		return err
	}

	if role != interfaces.RoleIssuer {
		g.log.Debug("Issuer-only operation denied",
			slog.String("account", g.account.Hex()))
		return fmt.Errorf("%w: account %s is not the ledger administrator",
			interfaces.ErrAuthorizationDenied, g.account.Hex())
	}
	return nil
}
