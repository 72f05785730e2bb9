package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/certreg/sbt-registry-backend/interfaces"
)

// StatusProbe is a best-effort read of a single certificate's existence and
// approval flags. Deployed contracts are not required to expose the internal
// record; when the read fails to decode the probe degrades to a fixed
// fallback instead of propagating the failure.
type StatusProbe struct {
	ledger interfaces.CertificateLedger
	log    *slog.Logger
}

// NewStatusProbe creates a probe over the given ledger client.
func NewStatusProbe(ledger interfaces.CertificateLedger, log *slog.Logger) *StatusProbe {
	return &StatusProbe{ledger: ledger, log: log}
}

// Status reads the {exists, approved} record for id.
//
// On ErrReadDecodeFailure the probe returns {Exists: true, Approved: false}.
// The fallback cannot distinguish "the contract does not expose this field"
// from "the token genuinely does not exist"; this precision loss is a known
// property of the probe, kept deliberately rather than guessed away. Any
// other failure is surfaced.
func (p *StatusProbe) Status(ctx context.Context, id interfaces.TokenID) (interfaces.CertificateStatus, error) {
	status, err := p.ledger.RawRecord(ctx, id)
	if err == nil {
		return status, nil
	}

	if errors.Is(err, interfaces.ErrReadDecodeFailure) {
		p.log.Warn("Certificate record not readable, using fallback status",
			slog.String("token_id", id.String()),
			"err", err)
		return interfaces.CertificateStatus{Exists: true, Approved: false}, nil
	}

	return interfaces.CertificateStatus{}, fmt.Errorf("probing certificate %s: %w", id, err)
}
