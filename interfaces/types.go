// Package interfaces defines the core types, error kinds, and component
// contracts for the soulbound certificate registry system. It provides the
// contract between different components without implementation details.
package interfaces

import (
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// TokenID identifies a single certificate on the ledger. IDs are assigned by
// the contract in issuance order, are immutable, and are never reused.
type TokenID uint64

// NewTokenIDFromString parses a decimal token ID.
func NewTokenIDFromString(s string) (TokenID, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid token id %q", ErrValidation, s)
	}
	return TokenID(id), nil
}

// NewTokenIDFromBig converts a uint256 value read from the contract.
// The contract assigns IDs sequentially, so anything outside the uint64
// range means the response could not be interpreted.
func NewTokenIDFromBig(v *big.Int) (TokenID, error) {
	if v == nil || v.Sign() < 0 || !v.IsUint64() {
		return 0, fmt.Errorf("%w: token id out of range", ErrReadDecodeFailure)
	}
	return TokenID(v.Uint64()), nil
}

// BigInt returns the uint256 representation used on the wire.
func (id TokenID) BigInt() *big.Int {
	return new(big.Int).SetUint64(uint64(id))
}

// String returns the decimal representation.
func (id TokenID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// Role is the session-scoped role of the connected account, derived by
// comparing it against the contract administrator. It is never cached across
// reconnects.
type Role int

const (
	// RoleHolder is an ordinary certificate holder.
	RoleHolder Role = iota
	// RoleIssuer is the ledger administrator (the contract owner).
	RoleIssuer
)

// String returns the role name.
func (r Role) String() string {
	switch r {
	case RoleIssuer:
		return "issuer"
	case RoleHolder:
		return "holder"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}

// ActionVerb names a mutating ledger action tracked by the pending-action map.
type ActionVerb string

const (
	VerbMint    ActionVerb = "mint"
	VerbApprove ActionVerb = "approve"
	VerbBurn    ActionVerb = "burn"
)

// CertificateStatus is the per-certificate record kept by the contract.
type CertificateStatus struct {
	Exists   bool `json:"exists"`
	Approved bool `json:"approved"`
}

// Document constraints enforced before any encoding or persistence work.
const (
	// MaxDocumentSize caps supporting documents at 5 MiB.
	MaxDocumentSize = 5 << 20
)

// AllowedDocumentTypes is the supporting-document mime type allow-list.
var AllowedDocumentTypes = map[string]struct{}{
	"image/png":       {},
	"image/jpeg":      {},
	"application/pdf": {},
}

// DocumentTypeAllowed reports whether mimeType is on the allow-list.
func DocumentTypeAllowed(mimeType string) bool {
	_, ok := AllowedDocumentTypes[mimeType]
	return ok
}

// DocumentRecord is one validated supporting document attached to a
// certificate ID. At most one record exists per ID; a new upload overwrites
// the prior one.
type DocumentRecord struct {
	TokenID    TokenID   `json:"token_id"`
	MimeType   string    `json:"mime_type"`
	Size       int64     `json:"size"`
	Payload    []byte    `json:"payload"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// MetadataRecord is the locally-persisted descriptive record for a
// certificate. Its lifecycle is fully independent of the certificate's ledger
// state and it is never validated against the ledger.
type MetadataRecord struct {
	Name              string            `json:"name"`
	Description       string            `json:"description"`
	Course            string            `json:"course,omitempty"`
	IssueDate         string            `json:"issue_date"`
	ExpirationDate    string            `json:"expiration_date,omitempty"`
	Issuer            string            `json:"issuer"`
	Recipient         string            `json:"recipient"`
	Grade             string            `json:"grade,omitempty"`
	Skills            []string          `json:"skills,omitempty"`
	AdditionalDetails map[string]string `json:"additional_details,omitempty"`
}

// DefaultMetadata returns the template record used when an issuer has not yet
// filled in certificate details.
func DefaultMetadata() MetadataRecord {
	return MetadataRecord{
		Name:        "University Certificate",
		Description: "This certificate verifies the successful completion of a course or program",
		Course:      "Blockchain Development Fundamentals",
		IssueDate:   time.Now().UTC().Format("2006-01-02"),
		Issuer:      "University Blockchain Program",
		Recipient:   "Certificate Holder",
		Grade:       "A",
		Skills:      []string{"Blockchain", "Smart Contracts", "Web3"},
		AdditionalDetails: map[string]string{
			"Credit Hours": "3",
			"Program":      "Computer Science",
		},
	}
}

// Validate checks the record for the fields the issuer must always provide.
func (m *MetadataRecord) Validate() error {
	if m.Name == "" {
		return fmt.Errorf("%w: metadata name is required", ErrValidation)
	}
	if m.IssueDate == "" {
		return fmt.Errorf("%w: metadata issue date is required", ErrValidation)
	}
	return nil
}

// ValidateAccount rejects malformed or zero account addresses before they
// leave the process.
func ValidateAccount(account common.Address) error {
	if account == (common.Address{}) {
		return fmt.Errorf("%w: zero account address", ErrValidation)
	}
	return nil
}

// ParseAccount parses a 0x-prefixed or bare 40-char hex account address.
func ParseAccount(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%w: invalid account address %q", ErrValidation, s)
	}
	addr := common.HexToAddress(s)
	if err := ValidateAccount(addr); err != nil {
		return common.Address{}, err
	}
	return addr, nil
}

// ErrRecordNotFound is returned by document and metadata stores when no
// record exists for the requested certificate ID.
var ErrRecordNotFound = errors.New("record not found")
