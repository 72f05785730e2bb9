package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/certreg/sbt-registry-backend/interfaces"
	"github.com/certreg/sbt-registry-backend/ledger"
)

var (
	adminAccount  = common.HexToAddress("0x1111111111111111111111111111111111111111")
	holderAccount = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

// stubGuard is a fixed-role guard so registry tests do not depend on the
// Administrator read.
type stubGuard struct {
	account common.Address
	issuer  bool
}

func (g *stubGuard) Account() common.Address { return g.account }

func (g *stubGuard) CurrentRole(ctx context.Context) (interfaces.Role, error) {
	if g.issuer {
		return interfaces.RoleIssuer, nil
	}
	return interfaces.RoleHolder, nil
}

func (g *stubGuard) RequireIssuer(ctx context.Context) error {
	if !g.issuer {
		return fmt.Errorf("%w: not the ledger administrator", interfaces.ErrAuthorizationDenied)
	}
	return nil
}

func newTestRegistry(mockLedger *ledger.MockLedger, issuer bool) *Registry {
	guard := &stubGuard{account: holderAccount, issuer: issuer}
	return New(mockLedger, guard, slog.New(slog.DiscardHandler))
}

func TestMint_ResyncsAfterConfirmation(t *testing.T) {
	mockLedger := new(ledger.MockLedger)
	mockLedger.On("Issue", mock.Anything, adminAccount).Return(common.HexToHash("0xaa"), nil).Once()
	mockLedger.On("CredentialsOf", mock.Anything, holderAccount).
		Return([]interfaces.TokenID{101}, nil).Once()

	reg := newTestRegistry(mockLedger, true)

	require.NoError(t, reg.Mint(context.Background(), adminAccount))
	assert.Equal(t, []interfaces.TokenID{101}, reg.Credentials())
	mockLedger.AssertExpectations(t)
}

func TestMint_DeniedBeforeAnyLedgerCall(t *testing.T) {
	mockLedger := new(ledger.MockLedger)
	reg := newTestRegistry(mockLedger, false)

	err := reg.Mint(context.Background(), adminAccount)
	assert.ErrorIs(t, err, interfaces.ErrAuthorizationDenied)

	mockLedger.AssertNotCalled(t, "Issue", mock.Anything, mock.Anything)
	mockLedger.AssertNotCalled(t, "CredentialsOf", mock.Anything, mock.Anything)
}

func TestMint_MalformedHolder(t *testing.T) {
	mockLedger := new(ledger.MockLedger)
	reg := newTestRegistry(mockLedger, true)

	err := reg.Mint(context.Background(), common.Address{})
	assert.ErrorIs(t, err, interfaces.ErrValidation)
	mockLedger.AssertNotCalled(t, "Issue", mock.Anything, mock.Anything)
}

func TestApprove_UnknownIDRejectedLocally(t *testing.T) {
	mockLedger := new(ledger.MockLedger)
	reg := newTestRegistry(mockLedger, false)

	err := reg.Approve(context.Background(), 42)
	assert.ErrorIs(t, err, interfaces.ErrValidation)
	mockLedger.AssertNotCalled(t, "Approve", mock.Anything, mock.Anything)
}

func TestApprove_SubmitsAndResyncs(t *testing.T) {
	mockLedger := new(ledger.MockLedger)
	mockLedger.On("CredentialsOf", mock.Anything, holderAccount).
		Return([]interfaces.TokenID{101}, nil)
	mockLedger.On("Approve", mock.Anything, interfaces.TokenID(101)).
		Return(common.HexToHash("0xbb"), nil).Once()

	reg := newTestRegistry(mockLedger, false)
	require.NoError(t, reg.Resync(context.Background()))

	require.NoError(t, reg.Approve(context.Background(), 101))
	assert.False(t, reg.Pending(101, interfaces.VerbApprove), "pending flag must clear on success")
	mockLedger.AssertExpectations(t)
}

func TestApprove_FailureLeavesStateAndClearsPending(t *testing.T) {
	mockLedger := new(ledger.MockLedger)
	mockLedger.On("CredentialsOf", mock.Anything, holderAccount).
		Return([]interfaces.TokenID{101}, nil).Once()
	mockLedger.On("Approve", mock.Anything, interfaces.TokenID(101)).
		Return(common.Hash{}, fmt.Errorf("%w: approveCertificate", interfaces.ErrTransactionReverted)).Once()

	reg := newTestRegistry(mockLedger, false)
	require.NoError(t, reg.Resync(context.Background()))

	err := reg.Approve(context.Background(), 101)
	assert.ErrorIs(t, err, interfaces.ErrTransactionReverted)

	// No partial update, and the action can be retried.
	assert.Equal(t, []interfaces.TokenID{101}, reg.Credentials())
	assert.False(t, reg.Pending(101, interfaces.VerbApprove))
}

func TestApprove_DuplicateInFlightRejected(t *testing.T) {
	mockLedger := new(ledger.MockLedger)
	mockLedger.On("CredentialsOf", mock.Anything, holderAccount).
		Return([]interfaces.TokenID{101}, nil)

	entered := make(chan struct{})
	release := make(chan struct{})
	mockLedger.On("Approve", mock.Anything, interfaces.TokenID(101)).
		Run(func(args mock.Arguments) {
			close(entered)
			<-release
		}).
		Return(common.HexToHash("0xcc"), nil).Once()

	reg := newTestRegistry(mockLedger, false)
	require.NoError(t, reg.Resync(context.Background()))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		assert.NoError(t, reg.Approve(context.Background(), 101))
	}()

	<-entered

	// Second invocation while the first is unresolved: rejected, never a
	// second ledger submission.
	err := reg.Approve(context.Background(), 101)
	assert.ErrorIs(t, err, interfaces.ErrActionPending)

	close(release)
	wg.Wait()

	mockLedger.AssertNumberOfCalls(t, "Approve", 1)
}

func TestBurn_RemovedAtNextResync(t *testing.T) {
	mockLedger := new(ledger.MockLedger)
	mockLedger.On("CredentialsOf", mock.Anything, holderAccount).
		Return([]interfaces.TokenID{101, 102}, nil).Once()
	mockLedger.On("Revoke", mock.Anything, interfaces.TokenID(101)).
		Return(common.HexToHash("0xdd"), nil).Once()
	mockLedger.On("CredentialsOf", mock.Anything, holderAccount).
		Return([]interfaces.TokenID{102}, nil).Once()

	reg := newTestRegistry(mockLedger, true)
	require.NoError(t, reg.Resync(context.Background()))
	require.Equal(t, []interfaces.TokenID{101, 102}, reg.Credentials())

	require.NoError(t, reg.Burn(context.Background(), 101))
	assert.Equal(t, []interfaces.TokenID{102}, reg.Credentials())
	mockLedger.AssertExpectations(t)
}

func TestBurn_DeniedForHolder(t *testing.T) {
	mockLedger := new(ledger.MockLedger)
	reg := newTestRegistry(mockLedger, false)

	err := reg.Burn(context.Background(), 101)
	assert.ErrorIs(t, err, interfaces.ErrAuthorizationDenied)
	mockLedger.AssertNotCalled(t, "Revoke", mock.Anything, mock.Anything)
}

func TestBurn_LedgerRejectionSurfaced(t *testing.T) {
	mockLedger := new(ledger.MockLedger)
	mockLedger.On("Revoke", mock.Anything, interfaces.TokenID(999)).
		Return(common.Hash{}, fmt.Errorf("%w: burn: execution reverted", interfaces.ErrTransactionReverted)).Once()

	reg := newTestRegistry(mockLedger, true)

	err := reg.Burn(context.Background(), 999)
	assert.ErrorIs(t, err, interfaces.ErrTransactionReverted)
	assert.False(t, reg.Pending(999, interfaces.VerbBurn))
}

func TestResync_FailureKeepsLastKnownGood(t *testing.T) {
	mockLedger := new(ledger.MockLedger)
	mockLedger.On("CredentialsOf", mock.Anything, holderAccount).
		Return([]interfaces.TokenID{101}, nil).Once()
	mockLedger.On("CredentialsOf", mock.Anything, holderAccount).
		Return([]interfaces.TokenID(nil), fmt.Errorf("%w: studentCertificates", interfaces.ErrConnectionUnavailable)).Once()

	reg := newTestRegistry(mockLedger, false)
	require.NoError(t, reg.Resync(context.Background()))

	err := reg.Resync(context.Background())
	assert.ErrorIs(t, err, interfaces.ErrConnectionUnavailable)

	// Stale-but-present beats empty-and-misleading.
	assert.Equal(t, []interfaces.TokenID{101}, reg.Credentials())
}

func TestResync_LastCompleteWins(t *testing.T) {
	mockLedger := new(ledger.MockLedger)

	entered := make(chan struct{})
	release := make(chan struct{})

	// First resync is issued earlier but completes later, holding a stale
	// list. It must not overwrite the second resync's result.
	mockLedger.On("CredentialsOf", mock.Anything, holderAccount).
		Run(func(args mock.Arguments) {
			close(entered)
			<-release
		}).
		Return([]interfaces.TokenID{101}, nil).Once()
	mockLedger.On("CredentialsOf", mock.Anything, holderAccount).
		Return([]interfaces.TokenID{101, 102}, nil).Once()

	reg := newTestRegistry(mockLedger, false)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		assert.NoError(t, reg.Resync(context.Background()))
	}()

	<-entered
	require.NoError(t, reg.Resync(context.Background()))
	require.Equal(t, []interfaces.TokenID{101, 102}, reg.Credentials())

	close(release)
	wg.Wait()

	assert.Equal(t, []interfaces.TokenID{101, 102}, reg.Credentials(),
		"earlier in-flight resync must not overwrite a later-completed one")
}

func TestMintApproveBurnScenario(t *testing.T) {
	// Administrator mints for the holder; resync shows [101]; the holder
	// approves; the administrator burns; resync shows [].
	adminLedger := new(ledger.MockLedger)
	holderLedger := new(ledger.MockLedger)

	adminReg := New(adminLedger, &stubGuard{account: adminAccount, issuer: true}, slog.New(slog.DiscardHandler))
	holderReg := New(holderLedger, &stubGuard{account: holderAccount, issuer: false}, slog.New(slog.DiscardHandler))

	adminLedger.On("Issue", mock.Anything, holderAccount).Return(common.HexToHash("0x01"), nil).Once()
	adminLedger.On("CredentialsOf", mock.Anything, adminAccount).Return([]interfaces.TokenID{}, nil)

	require.NoError(t, adminReg.Mint(context.Background(), holderAccount))

	holderLedger.On("CredentialsOf", mock.Anything, holderAccount).Return([]interfaces.TokenID{101}, nil).Once()
	require.NoError(t, holderReg.Resync(context.Background()))
	require.Equal(t, []interfaces.TokenID{101}, holderReg.Credentials())

	holderLedger.On("Approve", mock.Anything, interfaces.TokenID(101)).Return(common.HexToHash("0x02"), nil).Once()
	holderLedger.On("CredentialsOf", mock.Anything, holderAccount).Return([]interfaces.TokenID{101}, nil).Once()
	holderLedger.On("RawRecord", mock.Anything, interfaces.TokenID(101)).
		Return(interfaces.CertificateStatus{Exists: true, Approved: true}, nil).Once()

	require.NoError(t, holderReg.Approve(context.Background(), 101))

	probe := ledger.NewStatusProbe(holderLedger, slog.New(slog.DiscardHandler))
	status, err := probe.Status(context.Background(), 101)
	require.NoError(t, err)
	assert.True(t, status.Approved)

	adminLedger.On("Revoke", mock.Anything, interfaces.TokenID(101)).Return(common.HexToHash("0x03"), nil).Once()
	require.NoError(t, adminReg.Burn(context.Background(), 101))

	holderLedger.On("CredentialsOf", mock.Anything, holderAccount).Return([]interfaces.TokenID{}, nil).Once()
	require.NoError(t, holderReg.Resync(context.Background()))
	assert.Empty(t, holderReg.Credentials())
}

func TestRunResyncLoop_StopsOnContextCancel(t *testing.T) {
	mockLedger := new(ledger.MockLedger)
	mockLedger.On("CredentialsOf", mock.Anything, holderAccount).
		Return([]interfaces.TokenID{101}, nil)

	reg := newTestRegistry(mockLedger, false)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		reg.RunResyncLoop(ctx, 5*time.Millisecond)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		return len(reg.Credentials()) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("resync loop did not stop on cancel")
	}
}
