package ledger

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/mock"

	"github.com/certreg/sbt-registry-backend/interfaces"
)

// MockLedger mocks the CertificateLedger interface
type MockLedger struct {
	mock.Mock
}

// Issue mocks the Issue method
func (m *MockLedger) Issue(ctx context.Context, holder common.Address) (common.Hash, error) {
	args := m.Called(ctx, holder)
	return args.Get(0).(common.Hash), args.Error(1)
}

// Approve mocks the Approve method
func (m *MockLedger) Approve(ctx context.Context, id interfaces.TokenID) (common.Hash, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(common.Hash), args.Error(1)
}

// Revoke mocks the Revoke method
func (m *MockLedger) Revoke(ctx context.Context, id interfaces.TokenID) (common.Hash, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(common.Hash), args.Error(1)
}

// CredentialsOf mocks the CredentialsOf method
func (m *MockLedger) CredentialsOf(ctx context.Context, account common.Address) ([]interfaces.TokenID, error) {
	args := m.Called(ctx, account)
	return args.Get(0).([]interfaces.TokenID), args.Error(1)
}

// HolderOf mocks the HolderOf method
func (m *MockLedger) HolderOf(ctx context.Context, id interfaces.TokenID) (common.Address, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(common.Address), args.Error(1)
}

// Administrator mocks the Administrator method
func (m *MockLedger) Administrator(ctx context.Context) (common.Address, error) {
	args := m.Called(ctx)
	return args.Get(0).(common.Address), args.Error(1)
}

// BalanceOf mocks the BalanceOf method
func (m *MockLedger) BalanceOf(ctx context.Context, account common.Address) (uint64, error) {
	args := m.Called(ctx, account)
	return args.Get(0).(uint64), args.Error(1)
}

// RawRecord mocks the RawRecord method
func (m *MockLedger) RawRecord(ctx context.Context, id interfaces.TokenID) (interfaces.CertificateStatus, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(interfaces.CertificateStatus), args.Error(1)
}
