package quote

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/smilequote/internal/catalog"
	"github.com/noah-isme/smilequote/internal/common"
	"github.com/noah-isme/smilequote/internal/discount"
	"github.com/noah-isme/smilequote/internal/ledger"
	"github.com/noah-isme/smilequote/internal/lock"
	"github.com/noah-isme/smilequote/internal/money"
	"github.com/noah-isme/smilequote/internal/pricing"
)

// HeaderQuoteID carries the quote identity between client and server.
const HeaderQuoteID = "X-Quote-ID"

// HeaderRequestSeq carries the client's monotonic request sequence for promo resubmission.
const HeaderRequestSeq = "X-Request-Seq"

// Handler exposes the quote HTTP endpoints.
type Handler struct {
	Svc *Service
}

type lineView struct {
	InstanceID string       `json:"instanceId"`
	ItemID     string       `json:"itemId"`
	ItemKind   catalog.Kind `json:"itemKind"`
	Name       string       `json:"name"`
	UnitPrice  money.Money  `json:"unitPrice"`
	Quantity   int          `json:"quantity"`
	LineTotal  money.Money  `json:"lineTotal"`
}

type quoteView struct {
	Success            bool              `json:"success"`
	QuoteID            string            `json:"quoteId"`
	Version            int64             `json:"version"`
	Status             Status            `json:"status"`
	SelectedTreatments []lineView        `json:"selectedTreatments"`
	Totals             pricing.Summary   `json:"totals"`
	ActiveDiscount     *discount.Summary `json:"activeDiscount,omitempty"`
	PatientContact     *Contact          `json:"patientContact,omitempty"`
	ClinicID           string            `json:"clinicId,omitempty"`
	Message            string            `json:"message,omitempty"`
	Code               string            `json:"code,omitempty"`
	PromoDetails       *discount.Summary `json:"promoDetails,omitempty"`
}

func view(q Quote) quoteView {
	items := q.Ledger.Items()
	lines := make([]lineView, 0, len(items))
	for _, it := range items {
		lines = append(lines, lineView{
			InstanceID: it.InstanceID(),
			ItemID:     it.ItemID,
			ItemKind:   it.Kind,
			Name:       it.Name,
			UnitPrice:  it.UnitPrice,
			Quantity:   it.Quantity,
			LineTotal:  it.LineTotal(),
		})
	}
	v := quoteView{
		Success:            true,
		QuoteID:            q.ID,
		Version:            q.Version,
		Status:             q.Status,
		SelectedTreatments: lines,
		Totals:             q.Totals(),
		ClinicID:           q.ClinicID,
	}
	if q.Discount != nil {
		s := q.Discount.Summarize()
		v.ActiveDiscount = &s
	}
	if q.Contact != (Contact{}) {
		c := q.Contact
		v.PatientContact = &c
	}
	return v
}

type itemRequest struct {
	QuoteID     string `json:"quoteId"`
	Version     int64  `json:"version"`
	TreatmentID string `json:"treatmentId" validate:"required"`
	ItemKind    string `json:"itemKind"`
	Quantity    *int   `json:"quantity" validate:"omitempty,min=0,max=64"`
}

type removeRequest struct {
	QuoteID    string `json:"quoteId"`
	Version    int64  `json:"version"`
	InstanceID string `json:"instanceId" validate:"required"`
}

type promoRequest struct {
	QuoteID    string `json:"quoteId"`
	Version    int64  `json:"version"`
	PromoCode  string `json:"promoCode"`
	OfferID    string `json:"offerId"`
	RequestSeq uint64 `json:"requestSeq"`
}

type baseRequest struct {
	QuoteID string `json:"quoteId"`
	Version int64  `json:"version"`
}

type submitRequest struct {
	QuoteID        string  `json:"quoteId"`
	Version        int64   `json:"version"`
	PatientContact Contact `json:"patientContact"`
}

type assignRequest struct {
	Version  int64  `json:"version"`
	ClinicID string `json:"clinicId" validate:"required"`
}

// Create handles POST /api/quote.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	q, err := h.Svc.Create(r.Context())
	if err != nil {
		writeError(w, err, nil)
		return
	}
	respond(w, http.StatusCreated, q, view(q))
}

// Get handles GET /api/quote/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	q, err := h.Svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err, nil)
		return
	}
	respond(w, http.StatusOK, q, view(q))
}

// AddTreatment handles POST /api/quote/add-treatment. Without a quote id a
// new DRAFT holding the item is created, and only if the item resolves.
func (h *Handler) AddTreatment(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var req itemRequest
	if !decode(w, r, &req) {
		return
	}
	kind, err := catalog.ParseKind(req.ItemKind)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	qty := 1
	if req.Quantity != nil {
		qty = *req.Quantity
	}
	if qty < 1 {
		writeError(w, ledger.ErrInvalidQuantity, nil)
		return
	}
	ctx := r.Context()
	id := quoteID(r, req.QuoteID)
	if id == "" {
		q, err := h.Svc.CreateWithItem(ctx, kind, req.TreatmentID, qty)
		if err != nil {
			writeError(w, err, nil)
			return
		}
		respond(w, http.StatusOK, q, view(q))
		return
	}
	q, err := h.Svc.AddItem(ctx, id, expectedVersion(r, req.Version), kind, req.TreatmentID, qty)
	if err != nil {
		writeError(w, err, &q)
		return
	}
	respond(w, http.StatusOK, q, view(q))
}

// RemoveTreatment handles POST /api/quote/remove-treatment.
func (h *Handler) RemoveTreatment(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var req removeRequest
	if !decode(w, r, &req) {
		return
	}
	id, ok := requireQuoteID(w, r, req.QuoteID)
	if !ok {
		return
	}
	kind, itemID, err := ledger.ParseInstanceID(req.InstanceID)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	q, err := h.Svc.RemoveItem(r.Context(), id, expectedVersion(r, req.Version), kind, itemID)
	if err != nil {
		writeError(w, err, &q)
		return
	}
	respond(w, http.StatusOK, q, view(q))
}

// UpdateQuantity handles POST /api/quote/update-quantity. Zero removes the line.
func (h *Handler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var req itemRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Quantity == nil {
		common.JSON(w, http.StatusBadRequest, common.Failure("quantity is required", "INVALID_REQUEST"))
		return
	}
	id, ok := requireQuoteID(w, r, req.QuoteID)
	if !ok {
		return
	}
	kind, err := catalog.ParseKind(req.ItemKind)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	q, err := h.Svc.SetQuantity(r.Context(), id, expectedVersion(r, req.Version), kind, req.TreatmentID, *req.Quantity)
	if err != nil {
		writeError(w, err, &q)
		return
	}
	respond(w, http.StatusOK, q, view(q))
}

// ApplyPromo handles POST /api/quote/apply-promo.
func (h *Handler) ApplyPromo(w http.ResponseWriter, r *http.Request) {
	h.applyDiscount(w, r, discount.SourcePromoCode)
}

// ApplyOffer handles POST /api/quote/apply-offer.
func (h *Handler) ApplyOffer(w http.ResponseWriter, r *http.Request) {
	h.applyDiscount(w, r, discount.SourceSpecialOffer)
}

func (h *Handler) applyDiscount(w http.ResponseWriter, r *http.Request, src discount.Source) {
	if !h.ready(w) {
		return
	}
	var req promoRequest
	if !decode(w, r, &req) {
		return
	}
	code := req.PromoCode
	if src == discount.SourceSpecialOffer {
		code = req.OfferID
	}
	if discount.Normalize(code) == "" {
		common.JSON(w, http.StatusBadRequest, common.Failure("code is required", "INVALID_REQUEST"))
		return
	}
	id, ok := requireQuoteID(w, r, req.QuoteID)
	if !ok {
		return
	}
	seq := req.RequestSeq
	if raw := strings.TrimSpace(r.Header.Get(HeaderRequestSeq)); raw != "" {
		if parsed, err := strconv.ParseUint(raw, 10, 64); err == nil {
			seq = parsed
		}
	}
	q, err := h.Svc.applyDiscount(r.Context(), id, expectedVersion(r, req.Version), code, src, seq)
	if err != nil {
		writeError(w, err, &q)
		return
	}
	v := view(q)
	v.PromoDetails = v.ActiveDiscount
	v.Message = "Promo code applied"
	if src == discount.SourceSpecialOffer {
		v.Message = "Special offer applied"
	}
	if !v.Totals.Eligible && v.Totals.AmountToQualify > 0 {
		v.Message += "; add " + v.Totals.AmountToQualify.String() + " more to qualify"
	}
	respond(w, http.StatusOK, q, v)
}

// RemovePromo handles POST /api/quote/remove-promo.
func (h *Handler) RemovePromo(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var req baseRequest
	if !decode(w, r, &req) {
		return
	}
	id, ok := requireQuoteID(w, r, req.QuoteID)
	if !ok {
		return
	}
	q, err := h.Svc.RemovePromo(r.Context(), id, expectedVersion(r, req.Version))
	if err != nil {
		writeError(w, err, &q)
		return
	}
	v := view(q)
	v.Message = "Promo code removed"
	respond(w, http.StatusOK, q, v)
}

// Submit handles POST /api/quote/submit.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var req submitRequest
	if !decode(w, r, &req) {
		return
	}
	id, ok := requireQuoteID(w, r, req.QuoteID)
	if !ok {
		return
	}
	q, err := h.Svc.Submit(r.Context(), id, expectedVersion(r, req.Version), req.PatientContact)
	if err != nil {
		writeError(w, err, &q)
		return
	}
	setQuoteHeaders(w, q)
	common.JSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"quote_id": q.ID,
		"version":  q.Version,
		"status":   q.Status,
		"message":  "Quote submitted",
		"totals":   q.Totals(),
	})
}

// Cancel handles POST /api/quote/cancel.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var req baseRequest
	if !decode(w, r, &req) {
		return
	}
	id, ok := requireQuoteID(w, r, req.QuoteID)
	if !ok {
		return
	}
	q, err := h.Svc.Cancel(r.Context(), id, expectedVersion(r, req.Version))
	if err != nil {
		writeError(w, err, &q)
		return
	}
	respond(w, http.StatusOK, q, view(q))
}

// Assign handles POST /api/admin/quotes/{id}/assign.
func (h *Handler) Assign(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var req assignRequest
	if !decode(w, r, &req) {
		return
	}
	q, err := h.Svc.Assign(r.Context(), chi.URLParam(r, "id"), expectedVersion(r, req.Version), req.ClinicID)
	if err != nil {
		writeError(w, err, &q)
		return
	}
	respond(w, http.StatusOK, q, view(q))
}

func (h *Handler) ready(w http.ResponseWriter) bool {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "quote service not configured", nil)
		return false
	}
	return true
}

var requestValidator = validator.New()

// decode reads an optional JSON body and validates struct tags.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
			common.JSON(w, http.StatusBadRequest, common.Failure("invalid JSON body", "INVALID_JSON"))
			return false
		}
	}
	if err := requestValidator.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		fields := []string{}
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				fields = append(fields, lowerFirst(fe.Field()))
			}
		}
		body := common.Failure("invalid request", "INVALID_REQUEST")
		body["fields"] = fields
		common.JSON(w, http.StatusBadRequest, body)
		return false
	}
	return true
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

func quoteID(r *http.Request, fromBody string) string {
	if id := strings.TrimSpace(r.Header.Get(HeaderQuoteID)); id != "" {
		return id
	}
	return strings.TrimSpace(fromBody)
}

func requireQuoteID(w http.ResponseWriter, r *http.Request, fromBody string) (string, bool) {
	id := quoteID(r, fromBody)
	if id == "" {
		common.JSON(w, http.StatusBadRequest, common.Failure("quote id is required", "QUOTE_ID_REQUIRED"))
		return "", false
	}
	return id, true
}

// expectedVersion reads If-Match ("3", W/"3" or 3) and falls back to the body.
func expectedVersion(r *http.Request, fromBody int64) int64 {
	raw := strings.TrimSpace(r.Header.Get("If-Match"))
	raw = strings.TrimPrefix(raw, "W/")
	raw = strings.Trim(raw, `"`)
	if raw != "" && raw != "*" {
		if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return v
		}
	}
	return fromBody
}

func setQuoteHeaders(w http.ResponseWriter, q Quote) {
	if q.ID == "" {
		return
	}
	w.Header().Set(HeaderQuoteID, q.ID)
	w.Header().Set("ETag", `"`+strconv.FormatInt(q.Version, 10)+`"`)
}

func respond(w http.ResponseWriter, status int, q Quote, v quoteView) {
	setQuoteHeaders(w, q)
	common.JSON(w, status, v)
}

// writeError renders {success:false, message, code}. When the current quote
// is known its totals are included so the client can keep displaying them.
func writeError(w http.ResponseWriter, err error, current *Quote) {
	status, code, message := classify(err)
	body := common.Failure(message, code)
	var verr *ValidationError
	if errors.As(err, &verr) {
		body["missingFields"] = verr.Fields
	}
	if current != nil && current.ID != "" {
		setQuoteHeaders(w, *current)
		body["quoteId"] = current.ID
		body["version"] = current.Version
		body["totals"] = current.Totals()
	}
	common.JSON(w, status, body)
}

func classify(err error) (int, string, string) {
	var (
		verr   *ValidationError
		appErr *common.AppError
	)
	switch {
	case errors.As(err, &verr):
		return http.StatusUnprocessableEntity, "VALIDATION_FAILED", "Please provide: " + strings.Join(verr.Fields, ", ")
	case errors.Is(err, discount.ErrNotFound), errors.Is(err, discount.ErrExpired):
		code, status := discount.ErrorCode(err)
		return status, code, discount.Message(err)
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound, "QUOTE_NOT_FOUND", "Quote not found"
	case errors.Is(err, catalog.ErrNotFound):
		return http.StatusNotFound, "ITEM_NOT_FOUND", "Treatment not found in catalog"
	case errors.Is(err, catalog.ErrInvalidItem):
		return http.StatusBadGateway, "CATALOG_ITEM_INVALID", "The catalog returned an unusable entry for this item"
	case errors.Is(err, catalog.ErrUnknownKind), errors.Is(err, ledger.ErrInvalidLine):
		return http.StatusBadRequest, "INVALID_ITEM", err.Error()
	case errors.Is(err, ledger.ErrItemNotFound):
		return http.StatusNotFound, "LINE_NOT_FOUND", "Item is not in this quote"
	case errors.Is(err, ledger.ErrInvalidQuantity):
		return http.StatusBadRequest, "INVALID_QUANTITY", "Quantity must be at least 1"
	case errors.Is(err, ErrLocked):
		return http.StatusLocked, "QUOTE_LOCKED", "Quote has been submitted and can no longer be changed"
	case errors.Is(err, ErrConcurrentModification):
		return http.StatusConflict, "CONCURRENT_MODIFICATION", "Quote changed since you loaded it; refresh and retry"
	case errors.Is(err, ErrStale):
		return http.StatusConflict, "STALE_REQUEST", "A newer request superseded this one"
	case errors.Is(err, ErrInvalidTransition):
		return http.StatusConflict, "INVALID_TRANSITION", err.Error()
	case errors.Is(err, lock.ErrTimeout):
		return http.StatusConflict, "QUOTE_BUSY", "Another change to this quote is in progress; retry shortly"
	case errors.As(err, &appErr):
		return appErr.HTTPStatus, appErr.Code, appErr.Message
	default:
		return http.StatusInternalServerError, "INTERNAL", "Something went wrong while updating the quote"
	}
}
