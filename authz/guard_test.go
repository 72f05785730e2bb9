package authz

import (
	"context"
	"fmt"
	"log/slog"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/certreg/sbt-registry-backend/interfaces"
	"github.com/certreg/sbt-registry-backend/ledger"
)

var (
	adminAccount  = common.HexToAddress("0x1111111111111111111111111111111111111111")
	holderAccount = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

func TestCurrentRole(t *testing.T) {
	mockLedger := new(ledger.MockLedger)
	mockLedger.On("Administrator", context.Background()).Return(adminAccount, nil)

	log := slog.New(slog.DiscardHandler)

	issuerGuard := NewGuard(mockLedger, adminAccount, log)
	role, err := issuerGuard.CurrentRole(context.Background())
	require.NoError(t, err)
	assert.Equal(t, interfaces.RoleIssuer, role)

	holderGuard := NewGuard(mockLedger, holderAccount, log)
	role, err = holderGuard.CurrentRole(context.Background())
	require.NoError(t, err)
	assert.Equal(t, interfaces.RoleHolder, role)
}

func TestCurrentRole_NoSessionAccount(t *testing.T) {
	mockLedger := new(ledger.MockLedger)
	guard := NewGuard(mockLedger, common.Address{}, slog.New(slog.DiscardHandler))

	_, err := guard.CurrentRole(context.Background())
	assert.ErrorIs(t, err, interfaces.ErrConnectionUnavailable)

	// The ledger must not have been consulted at all.
	mockLedger.AssertNotCalled(t, "Administrator", context.Background())
}

func TestCurrentRole_RederivedEveryCall(t *testing.T) {
	// The administrator can change between calls (e.g. contract ownership
	// transfer); the guard must re-read it rather than cache.
	mockLedger := new(ledger.MockLedger)
	mockLedger.On("Administrator", context.Background()).Return(adminAccount, nil).Once()
	mockLedger.On("Administrator", context.Background()).Return(holderAccount, nil).Once()

	guard := NewGuard(mockLedger, adminAccount, slog.New(slog.DiscardHandler))

	role, err := guard.CurrentRole(context.Background())
	require.NoError(t, err)
	assert.Equal(t, interfaces.RoleIssuer, role)

	role, err = guard.CurrentRole(context.Background())
	require.NoError(t, err)
	assert.Equal(t, interfaces.RoleHolder, role)

	mockLedger.AssertExpectations(t)
}

func TestRequireIssuer(t *testing.T) {
	mockLedger := new(ledger.MockLedger)
	mockLedger.On("Administrator", context.Background()).Return(adminAccount, nil)

	log := slog.New(slog.DiscardHandler)

	assert.NoError(t, NewGuard(mockLedger, adminAccount, log).RequireIssuer(context.Background()))

	err := NewGuard(mockLedger, holderAccount, log).RequireIssuer(context.Background())
	assert.ErrorIs(t, err, interfaces.ErrAuthorizationDenied)
}

func TestRequireIssuer_LedgerFailureSurfaces(t *testing.T) {
	mockLedger := new(ledger.MockLedger)
	mockLedger.On("Administrator", context.Background()).
		Return(common.Address{}, fmt.Errorf("%w: owner: connection refused", interfaces.ErrConnectionUnavailable))

	err := NewGuard(mockLedger, adminAccount, slog.New(slog.DiscardHandler)).RequireIssuer(context.Background())
	assert.ErrorIs(t, err, interfaces.ErrConnectionUnavailable)
	assert.NotErrorIs(t, err, interfaces.ErrAuthorizationDenied)
}
