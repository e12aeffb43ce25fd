package submission

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/facturia/facturia/internal/invoice"
	"github.com/facturia/facturia/internal/platform/httpx"
	"github.com/facturia/facturia/internal/shared"
)

// Submitter runs a create-invoice request.
type Submitter interface {
	Submit(ctx context.Context, req Request) (Result, error)
}

// Extractor turns free text into a partial draft.
type Extractor interface {
	Extract(ctx context.Context, text string) (invoice.PartialDraft, error)
}

// Handler wires HTTP endpoints for the invoice pipeline.
type Handler struct {
	submitter Submitter
	extractor Extractor
	location  *time.Location
	now       func() time.Time
	logger    zerolog.Logger
}

// NewHandler constructs a Handler instance. extractor may be nil, in which
// case the extract endpoint reports the service as unavailable.
func NewHandler(submitter Submitter, extractor Extractor, location *time.Location, logger zerolog.Logger) *Handler {
	if location == nil {
		location = time.UTC
	}
	return &Handler{
		submitter: submitter,
		extractor: extractor,
		location:  location,
		now:       time.Now,
		logger:    logger,
	}
}

// MountRoutes registers pipeline routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/create-invoice", h.createInvoice)
	r.Post("/extract", h.extract)
}

type createInvoiceResponse struct {
	Success             bool         `json:"success"`
	AuthorizationCode   string       `json:"authorizationCode"`
	AuthorizationExpiry invoice.Date `json:"authorizationExpiry"`
	VoucherNumber       int64        `json:"voucherNumber"`
}

func (h *Handler) createInvoice(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondFailure(w, err)
		return
	}
	result, err := h.submitter.Submit(r.Context(), req)
	if err != nil {
		if shared.KindOf(err) == shared.KindInternal {
			hlog.FromRequest(r).Error().Err(err).Msg("create invoice")
		}
		httpx.RespondFailure(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, createInvoiceResponse{
		Success:             true,
		AuthorizationCode:   result.AuthorizationCode,
		AuthorizationExpiry: result.AuthorizationExpiry,
		VoucherNumber:       result.VoucherNumber,
	})
}

type extractRequest struct {
	Text string `json:"text"`
}

type extractResponse struct {
	Success bool          `json:"success"`
	Draft   invoice.Draft `json:"draft"`
}

func (h *Handler) extract(w http.ResponseWriter, r *http.Request) {
	if h.extractor == nil {
		h.logger.Warn().Msg("extract called without an understanding service")
		httpx.RespondFailure(w, fmt.Errorf("%w: no understanding service configured", shared.ErrExtractionFailed))
		return
	}
	var req extractRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondFailure(w, err)
		return
	}
	partial, err := h.extractor.Extract(r.Context(), req.Text)
	if err != nil {
		httpx.RespondFailure(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, extractResponse{
		Success: true,
		Draft:   invoice.Normalize(partial, h.now().In(h.location)),
	})
}
