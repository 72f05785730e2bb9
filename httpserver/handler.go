package httpserver

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/certreg/sbt-registry-backend/docstore"
	"github.com/certreg/sbt-registry-backend/interfaces"
	"github.com/certreg/sbt-registry-backend/ledger"
	"github.com/certreg/sbt-registry-backend/metastore"
	"github.com/certreg/sbt-registry-backend/metrics"
	"github.com/certreg/sbt-registry-backend/registry"
)

const (
	// maxUploadSize caps document upload request bodies slightly above the
	// document limit so that an oversized payload is rejected by validation
	// with a clear message rather than by a truncated read.
	maxUploadSize = interfaces.MaxDocumentSize + 4096

	// maxJSONBodySize is the maximum allowed metadata or command body (1MB).
	maxJSONBodySize = 1024 * 1024
)

// Handler processes HTTP requests for the certificate registry service. It
// wires the reconciliation registry, the status probe, and the document and
// metadata caches behind the JSON API.
type Handler struct {
	registry  *registry.Registry
	probe     *ledger.StatusProbe
	ledger    interfaces.CertificateLedger
	guard     interfaces.AuthorizationGuard
	documents *docstore.Store
	metadata  *metastore.Store
	log       *slog.Logger

	// metrics is set by the server when a metrics listener is configured.
	metrics *metrics.MetricsServer
}

// NewHandler creates a new HTTP request handler with the specified dependencies.
func NewHandler(reg *registry.Registry, probe *ledger.StatusProbe, certLedger interfaces.CertificateLedger, guard interfaces.AuthorizationGuard, documents *docstore.Store, metadata *metastore.Store, log *slog.Logger) *Handler {
	return &Handler{
		registry:  reg,
		probe:     probe,
		ledger:    certLedger,
		guard:     guard,
		documents: documents,
		metadata:  metadata,
		log:       log,
	}
}

// statusForError maps the service error taxonomy onto HTTP status codes.
// Unclassified errors are treated as internal.
func statusForError(err error) int {
	switch {
	case errors.Is(err, interfaces.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, interfaces.ErrAuthorizationDenied):
		return http.StatusForbidden
	case errors.Is(err, interfaces.ErrRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, interfaces.ErrActionPending):
		return http.StatusConflict
	case errors.Is(err, interfaces.ErrTransactionRejected):
		return http.StatusForbidden
	case errors.Is(err, interfaces.ErrTransactionReverted), errors.Is(err, interfaces.ErrReadDecodeFailure):
		return http.StatusBadGateway
	case errors.Is(err, interfaces.ErrConnectionUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, interfaces.ErrTransactionTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusForError(err)
	if status >= http.StatusInternalServerError {
		h.log.Error("Request failed", "err", err, "path", r.URL.Path)
	} else {
		h.log.Debug("Request rejected", "err", err, "path", r.URL.Path)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error":     err.Error(),
		"retryable": interfaces.Retryable(err),
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.log.Error("Failed to encode response", "err", err)
	}
}

func tokenIDParam(r *http.Request) (interfaces.TokenID, error) {
	return interfaces.NewTokenIDFromString(chi.URLParam(r, "token_id"))
}

func (h *Handler) countAction(verb interfaces.ActionVerb, err error) {
	if h.metrics == nil {
		return
	}
	outcome := "confirmed"
	if err != nil {
		outcome = "failed"
	}
	h.metrics.LedgerActions.WithLabelValues(string(verb), outcome).Inc()
}

func (h *Handler) countResync(err error) {
	if h.metrics == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "failed"
	}
	h.metrics.Resyncs.WithLabelValues(outcome).Inc()
}

// HandleSession reports the session account and its current role. The role is
// re-derived from the ledger on every request.
//
// URL format: GET /api/session
func (h *Handler) HandleSession(w http.ResponseWriter, r *http.Request) {
	role, err := h.guard.CurrentRole(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"account": h.guard.Account().Hex(),
		"role":    role.String(),
	})
}

// HandleListCertificates returns the session holder's certificate IDs together
// with their cached document and metadata presence.
//
// URL format: GET /api/certificates
func (h *Handler) HandleListCertificates(w http.ResponseWriter, r *http.Request) {
	ids := h.registry.Credentials()

	type entry struct {
		TokenID     interfaces.TokenID `json:"token_id"`
		HasDocument bool               `json:"has_document"`
		HasMetadata bool               `json:"has_metadata"`
	}

	entries := make([]entry, 0, len(ids))
	for _, id := range ids {
		_, metaErr := h.metadata.Load(r.Context(), id)
		entries = append(entries, entry{
			TokenID:     id,
			HasDocument: h.documents.Has(r.Context(), id),
			HasMetadata: metaErr == nil,
		})
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"certificates": entries})
}

// HandleMint issues a new certificate for the holder given in the request
// body. Issuer-only.
//
// URL format: POST /api/certificates
// Request body: {"holder": "0x..."}
func (h *Handler) HandleMint(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Holder string `json:"holder"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxJSONBodySize)).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	holder, err := interfaces.ParseAccount(req.Holder)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	err = h.registry.Mint(r.Context(), holder)
	h.countAction(interfaces.VerbMint, err)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, map[string]any{
		"holder": holder.Hex(),
		"status": "minted",
	})
}

// HandleApprove acknowledges a certificate as the session holder.
//
// URL format: POST /api/certificates/{token_id}/approve
func (h *Handler) HandleApprove(w http.ResponseWriter, r *http.Request) {
	id, err := tokenIDParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	err = h.registry.Approve(r.Context(), id)
	h.countAction(interfaces.VerbApprove, err)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"token_id": id,
		"status":   "approved",
	})
}

// HandleBurn permanently revokes a certificate. Issuer-only. The cached
// document and metadata for the ID are left in place; burns never cascade
// into the local caches.
//
// URL format: DELETE /api/certificates/{token_id}
func (h *Handler) HandleBurn(w http.ResponseWriter, r *http.Request) {
	id, err := tokenIDParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	err = h.registry.Burn(r.Context(), id)
	h.countAction(interfaces.VerbBurn, err)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"token_id": id,
		"status":   "burned",
	})
}

// HandleResync forces an immediate reconciliation against the ledger.
//
// URL format: POST /api/certificates/resync
func (h *Handler) HandleResync(w http.ResponseWriter, r *http.Request) {
	err := h.registry.Resync(r.Context())
	h.countResync(err)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"status":       "resynced",
		"certificates": h.registry.Credentials(),
	})
}

// HandleStatus probes the existence and approval flags of one certificate.
// When the contract does not expose its internal record the probe degrades to
// a fixed fallback; the response marks degraded results.
//
// URL format: GET /api/certificates/{token_id}/status
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	id, err := tokenIDParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	status, err := h.probe.Status(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	holder := ""
	if addr, err := h.ledger.HolderOf(r.Context(), id); err == nil {
		holder = addr.Hex()
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"token_id": id,
		"exists":   status.Exists,
		"approved": status.Approved,
		"holder":   holder,
	})
}

// HandleUploadDocument stores the supporting document for a certificate ID.
// The payload is validated against the mime allow-list and the size cap
// before it is persisted. Documents may be staged before the certificate is
// minted.
//
// URL format: PUT /api/certificates/{token_id}/document
// Required headers:
//   - Content-Type: image/png, image/jpeg or application/pdf
func (h *Handler) HandleUploadDocument(w http.ResponseWriter, r *http.Request) {
	id, err := tokenIDParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxUploadSize))
	if err != nil {
		h.log.Error("Failed to read request body", "err", err)
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}

	if err := h.documents.Store(r.Context(), id, r.Header.Get("Content-Type"), payload); err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, map[string]any{
		"token_id": id,
		"size":     len(payload),
	})
}

// HandleGetDocument serves the stored document with its original mime type.
//
// URL format: GET /api/certificates/{token_id}/document
func (h *Handler) HandleGetDocument(w http.ResponseWriter, r *http.Request) {
	id, err := tokenIDParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	record, err := h.documents.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", record.MimeType)
	w.WriteHeader(http.StatusOK)
	w.Write(record.Payload)
}

// HandleDeleteDocument removes the stored document for a certificate ID.
//
// URL format: DELETE /api/certificates/{token_id}/document
func (h *Handler) HandleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id, err := tokenIDParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if !h.documents.Remove(r.Context(), id) {
		h.writeError(w, r, interfaces.ErrRecordNotFound)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"token_id": id,
		"status":   "deleted",
	})
}

// HandleSaveMetadata replaces the descriptive record for a certificate ID.
// There is no field-level merge; the submitted record becomes the record.
//
// URL format: PUT /api/certificates/{token_id}/metadata
func (h *Handler) HandleSaveMetadata(w http.ResponseWriter, r *http.Request) {
	id, err := tokenIDParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var record interfaces.MetadataRecord
	if err := json.NewDecoder(io.LimitReader(r.Body, maxJSONBodySize)).Decode(&record); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.metadata.Save(r.Context(), id, record); err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"token_id": id,
		"status":   "saved",
	})
}

// HandleGetMetadata serves the descriptive record for a certificate ID. When
// no record has been saved yet the default template is returned, marked as
// such, so issuers always have a starting point to edit.
//
// URL format: GET /api/certificates/{token_id}/metadata
func (h *Handler) HandleGetMetadata(w http.ResponseWriter, r *http.Request) {
	id, err := tokenIDParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	record, err := h.metadata.Load(r.Context(), id)
	if errors.Is(err, interfaces.ErrRecordNotFound) {
		h.writeJSON(w, http.StatusOK, map[string]any{
			"token_id": id,
			"default":  true,
			"metadata": interfaces.DefaultMetadata(),
		})
		return
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"token_id": id,
		"default":  false,
		"metadata": record,
	})
}
