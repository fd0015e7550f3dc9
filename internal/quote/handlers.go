package quote

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/quote-engine/internal/calculator"
	"github.com/noah-isme/quote-engine/internal/common"
	"github.com/noah-isme/quote-engine/internal/obs"
	"github.com/noah-isme/quote-engine/internal/pricing"
)

// Handler exposes the quote endpoints used by embedded calculator widgets.
type Handler struct {
	Svc      *Service
	Validate *validator.Validate
}

// NewHandler constructs a Handler with its own payload validator.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc, Validate: validator.New()}
}

// Mount registers the quote routes on r. Calculator-scoped routes pass through
// limit when it is non-nil.
func (h *Handler) Mount(r chi.Router, limit func(http.Handler) http.Handler) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			if limit != nil {
				r.Use(limit)
			}
			r.Post("/calculators/{id}/quotes", h.Create)
			r.Post("/calculators/{id}/promo-codes/check", h.CheckPromoCode)
		})
		r.Post("/quotes/preview", h.Preview)
		r.Post("/quotes/verify", h.Verify)
	})
}

type selectionPayload struct {
	Fields     map[string]string          `json:"fields" validate:"max=64"`
	AddOns     []string                   `json:"addOns" validate:"max=64,dive,max=128"`
	PromoCode  string                     `json:"promoCode" validate:"max=64"`
	Quantities map[string]decimal.Decimal `json:"quantities" validate:"max=64"`
	Flags      map[string]bool            `json:"flags" validate:"max=64"`
}

func (p selectionPayload) selection() pricing.Selection {
	return pricing.Selection{
		Fields:     p.Fields,
		AddOns:     p.AddOns,
		PromoCode:  p.PromoCode,
		Quantities: p.Quantities,
		Flags:      p.Flags,
	}
}

type promoCheckRequest struct {
	Code string `json:"code" validate:"required,max=64"`
}

type previewRequest struct {
	Config    json.RawMessage  `json:"config" validate:"required"`
	Selection selectionPayload `json:"selection"`
}

type verifyRequest struct {
	Token string `json:"token" validate:"required,max=4096"`
}

type amountView struct {
	Amount    decimal.Decimal `json:"amount"`
	Formatted string          `json:"formatted"`
}

type lineItemView struct {
	Label     string           `json:"label"`
	Kind      pricing.ItemKind `json:"kind"`
	Ref       string           `json:"ref,omitempty"`
	Amount    decimal.Decimal  `json:"amount"`
	Formatted string           `json:"formatted"`
}

type breakdownView struct {
	Currency       string         `json:"currency"`
	Symbol         string         `json:"symbol"`
	LineItems      []lineItemView `json:"lineItems"`
	Subtotal       amountView     `json:"subtotal"`
	SurchargeTotal amountView     `json:"surchargeTotal"`
	DiscountTotal  amountView     `json:"discountTotal"`
	Total          amountView     `json:"total"`
}

type quoteView struct {
	ID                string        `json:"id"`
	CalculatorID      string        `json:"calculatorId"`
	Breakdown         breakdownView `json:"breakdown"`
	PromoCodeRejected bool          `json:"promoCodeRejected"`
	Token             string        `json:"token,omitempty"`
	ExpiresAt         *time.Time    `json:"expiresAt,omitempty"`
	CreatedAt         time.Time     `json:"createdAt"`
}

func toBreakdownView(b pricing.Breakdown) breakdownView {
	amount := func(d decimal.Decimal) amountView {
		return amountView{Amount: d, Formatted: b.Format(d)}
	}
	items := make([]lineItemView, 0, len(b.LineItems))
	for _, item := range b.LineItems {
		items = append(items, lineItemView{
			Label:     item.Label,
			Kind:      item.Kind,
			Ref:       item.Ref,
			Amount:    item.Amount,
			Formatted: b.Format(item.Amount),
		})
	}
	return breakdownView{
		Currency:       b.Currency,
		Symbol:         b.Symbol,
		LineItems:      items,
		Subtotal:       amount(b.Subtotal),
		SurchargeTotal: amount(b.SurchargeTotal),
		DiscountTotal:  amount(b.DiscountTotal),
		Total:          amount(b.Total),
	}
}

func toQuoteView(q Quote) quoteView {
	view := quoteView{
		ID:                q.ID,
		CalculatorID:      q.CalculatorID,
		Breakdown:         toBreakdownView(q.Breakdown),
		PromoCodeRejected: q.PromoCodeRejected,
		Token:             q.Token,
		CreatedAt:         q.CreatedAt,
	}
	if !q.ExpiresAt.IsZero() {
		expires := q.ExpiresAt
		view.ExpiresAt = &expires
	}
	return view
}

// Create prices the posted selection for the calculator in the URL.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "quote service not configured", nil)
		return
	}
	var payload selectionPayload
	if !h.decode(w, r, &payload) {
		return
	}
	q, err := h.Svc.Quote(r.Context(), chi.URLParam(r, "id"), payload.selection())
	if err != nil {
		writeError(w, r, err)
		return
	}
	obs.AddLogField(r.Context(), "quote_id", q.ID)
	if q.PromoCodeRejected {
		obs.AddLogField(r.Context(), "promo_code", "rejected")
	}
	common.Data(w, http.StatusCreated, toQuoteView(q))
}

// CheckPromoCode tells the widget whether a promo code would apply.
func (h *Handler) CheckPromoCode(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "quote service not configured", nil)
		return
	}
	var req promoCheckRequest
	if !h.decode(w, r, &req) {
		return
	}
	valid, err := h.Svc.CheckPromoCode(r.Context(), chi.URLParam(r, "id"), req.Code)
	if err != nil {
		writeError(w, r, err)
		return
	}
	common.Data(w, http.StatusOK, map[string]any{
		"code":  pricing.NormalizePromoCode(req.Code),
		"valid": valid,
	})
}

// Preview prices a selection against an unpublished configuration.
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "quote service not configured", nil)
		return
	}
	var req previewRequest
	if !h.decode(w, r, &req) {
		return
	}
	var cfg pricing.PricingConfig
	if err := json.Unmarshal(req.Config, &cfg); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid config payload", nil)
		return
	}
	breakdown, err := h.Svc.Preview(r.Context(), cfg, req.Selection.selection())
	if err != nil {
		writeError(w, r, err)
		return
	}
	common.Data(w, http.StatusOK, toBreakdownView(breakdown))
}

// Verify checks a quote token on behalf of checkout.
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "quote service not configured", nil)
		return
	}
	var req verifyRequest
	if !h.decode(w, r, &req) {
		return
	}
	claims, err := h.Svc.VerifyToken(r.Context(), req.Token)
	if err != nil {
		writeError(w, r, err)
		return
	}
	common.Data(w, http.StatusOK, claims)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return false
	}
	if h.Validate == nil {
		return true
	}
	if err := h.Validate.Struct(dst); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			details := make(map[string]string, len(fieldErrs))
			for _, fe := range fieldErrs {
				details[fieldPath(fe.Namespace())] = fe.Tag()
			}
			common.JSONError(w, http.StatusBadRequest, "VALIDATION_FAILED", "payload failed validation", details)
			return false
		}
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return false
	}
	return true
}

func fieldPath(namespace string) string {
	if _, rest, ok := strings.Cut(namespace, "."); ok {
		return rest
	}
	return namespace
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	err = toAppError(err)
	var appErr *common.AppError
	if errors.As(err, &appErr) {
		obs.AddLogField(r.Context(), "error_code", appErr.Code)
	} else {
		obs.AddLogField(r.Context(), "error", err.Error())
	}
	common.WriteError(w, err)
}

func toAppError(err error) error {
	var appErr *common.AppError
	var verr *pricing.ValidationError
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, calculator.ErrInvalidID):
		return common.NewAppError("BAD_REQUEST", "invalid calculator id", http.StatusBadRequest, err)
	case errors.Is(err, calculator.ErrNotFound):
		return common.NewAppError("NOT_FOUND", "calculator not found", http.StatusNotFound, err)
	case errors.As(err, &verr):
		return common.NewAppError("INVALID_CONFIG", "pricing config is invalid", http.StatusUnprocessableEntity, err).WithDetails(verr.Problems)
	case errors.Is(err, pricing.ErrInvalidConfig):
		return common.NewAppError("INVALID_CONFIG", "pricing config is invalid", http.StatusUnprocessableEntity, err)
	case errors.Is(err, ErrInvalidToken):
		return common.NewAppError("UNAUTHORIZED", "invalid quote token", http.StatusUnauthorized, err)
	case errors.Is(err, ErrServiceUnavailable), errors.Is(err, calculator.ErrStoreUnavailable):
		return common.NewAppError("UNAVAILABLE", "quote service unavailable", http.StatusServiceUnavailable, err)
	default:
		return err
	}
}
