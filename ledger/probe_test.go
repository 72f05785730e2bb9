package ledger

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/certreg/sbt-registry-backend/interfaces"
)

func TestStatusProbe_ReadableRecord(t *testing.T) {
	mockLedger := new(MockLedger)
	mockLedger.On("RawRecord", context.Background(), interfaces.TokenID(101)).
		Return(interfaces.CertificateStatus{Exists: true, Approved: true}, nil)

	probe := NewStatusProbe(mockLedger, testLogger())

	status, err := probe.Status(context.Background(), 101)
	require.NoError(t, err)
	assert.True(t, status.Exists)
	assert.True(t, status.Approved)
	mockLedger.AssertExpectations(t)
}

func TestStatusProbe_DecodeFailureFallsBack(t *testing.T) {
	mockLedger := new(MockLedger)
	mockLedger.On("RawRecord", context.Background(), interfaces.TokenID(7)).
		Return(interfaces.CertificateStatus{},
			fmt.Errorf("%w: _certificates: execution reverted", interfaces.ErrReadDecodeFailure))

	probe := NewStatusProbe(mockLedger, testLogger())

	status, err := probe.Status(context.Background(), 7)
	require.NoError(t, err, "decode failure must degrade, not propagate")
	assert.Equal(t, interfaces.CertificateStatus{Exists: true, Approved: false}, status)
}

func TestStatusProbe_OtherFailuresSurface(t *testing.T) {
	mockLedger := new(MockLedger)
	mockLedger.On("RawRecord", context.Background(), interfaces.TokenID(7)).
		Return(interfaces.CertificateStatus{},
			fmt.Errorf("%w: _certificates: connection refused", interfaces.ErrConnectionUnavailable))

	probe := NewStatusProbe(mockLedger, testLogger())

	_, err := probe.Status(context.Background(), 7)
	assert.ErrorIs(t, err, interfaces.ErrConnectionUnavailable)
}
