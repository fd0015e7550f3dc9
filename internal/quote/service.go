package quote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/noah-isme/quote-engine/internal/calculator"
	"github.com/noah-isme/quote-engine/internal/obs"
	"github.com/noah-isme/quote-engine/internal/pricing"
)

// ErrServiceUnavailable indicates a required dependency was not wired.
var ErrServiceUnavailable = errors.New("quote: service not configured")

// Quote is a priced selection for one calculator.
type Quote struct {
	ID           string            `json:"id"`
	CalculatorID string            `json:"calculatorId"`
	Selection    pricing.Selection `json:"selection"`
	Breakdown    pricing.Breakdown `json:"breakdown"`
	// PromoCodeRejected is set when a non-empty code matched nothing; the quote is still priced.
	PromoCodeRejected bool      `json:"promoCodeRejected"`
	Token             string    `json:"token,omitempty"`
	ExpiresAt         time.Time `json:"expiresAt,omitempty"`
	CreatedAt         time.Time `json:"createdAt"`
}

// Publisher hands computed quotes to downstream consumers.
type Publisher interface {
	PublishQuote(ctx context.Context, q Quote) error
}

// NopPublisher drops every quote.
type NopPublisher struct{}

// PublishQuote implements Publisher.
func (NopPublisher) PublishQuote(context.Context, Quote) error { return nil }

// Service prices selections against calculator configurations.
type Service struct {
	Source    calculator.Source
	Publisher Publisher
	Signer    *Signer
	Logger    zerolog.Logger
	Now       func() time.Time
	NewID     func() string
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *Service) newID() string {
	if s.NewID != nil {
		return s.NewID()
	}
	return uuid.NewString()
}

// Quote loads the calculator configuration, prices sel and signs the result.
// Publishing is best effort: failures are logged and counted, never returned.
func (s *Service) Quote(ctx context.Context, calculatorID string, sel pricing.Selection) (Quote, error) {
	if s == nil || s.Source == nil {
		return Quote{}, ErrServiceUnavailable
	}
	ctx, span := otel.Tracer("quote.Service").Start(ctx, "QuoteService.Quote")
	defer span.End()

	start := time.Now()
	result := "error"
	var q Quote
	defer func() {
		total, _ := q.Breakdown.Total.Float64()
		span.SetAttributes(
			attribute.String("quote.result", result),
			attribute.Int("quote.line_items", len(q.Breakdown.LineItems)),
			attribute.Float64("quote.duration_ms", obs.DurationMillis(time.Since(start))),
		)
		obs.ObserveQuote(result, time.Since(start), q.Breakdown.Currency, total)
	}()

	id, err := calculator.ParseID(calculatorID)
	if err != nil {
		result = "invalid"
		return Quote{}, err
	}
	span.SetAttributes(attribute.String("calculator.id", id.String()))

	cfg, err := s.Source.PricingConfig(ctx, id.String())
	if err != nil {
		if errors.Is(err, calculator.ErrNotFound) {
			result = "not_found"
		} else {
			span.RecordError(err)
			span.SetStatus(codes.Error, "load config")
		}
		return Quote{}, fmt.Errorf("quote: load config: %w", err)
	}

	q = Quote{
		ID:           s.newID(),
		CalculatorID: id.String(),
		Selection:    sel,
		Breakdown:    pricing.Calculate(cfg, sel),
		CreatedAt:    s.now(),
	}
	if pricing.NormalizePromoCode(sel.PromoCode) != "" && !pricing.IsValidPromoCode(cfg, sel.PromoCode) {
		q.PromoCodeRejected = true
	}

	if s.Signer != nil {
		token, expiresAt, err := s.Signer.Sign(TokenClaims{
			QuoteID:      q.ID,
			CalculatorID: q.CalculatorID,
			Total:        q.Breakdown.Total,
			Currency:     q.Breakdown.Currency,
		}, q.CreatedAt)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "sign quote")
			return Quote{}, err
		}
		q.Token = token
		q.ExpiresAt = expiresAt
	}

	s.publish(ctx, q)
	result = "ok"
	return q, nil
}

func (s *Service) publish(ctx context.Context, q Quote) {
	if s.Publisher == nil {
		return
	}
	if err := s.Publisher.PublishQuote(ctx, q); err != nil {
		obs.IncQuotePublish("error")
		s.Logger.Warn().Err(err).
			Str("quote_id", q.ID).
			Str("calculator_id", q.CalculatorID).
			Msg("quote publish failed")
		return
	}
	obs.IncQuotePublish("ok")
}

// Preview validates an inline configuration and prices sel against it. Nothing is
// signed or published; this backs the configuration editor.
func (s *Service) Preview(ctx context.Context, cfg pricing.PricingConfig, sel pricing.Selection) (pricing.Breakdown, error) {
	_, span := otel.Tracer("quote.Service").Start(ctx, "QuoteService.Preview")
	defer span.End()

	if err := pricing.ValidateConfig(cfg); err != nil {
		span.SetAttributes(attribute.Bool("config.valid", false))
		return pricing.Breakdown{}, err
	}
	return pricing.Calculate(cfg, sel), nil
}

// CheckPromoCode reports whether code is accepted by the calculator.
func (s *Service) CheckPromoCode(ctx context.Context, calculatorID, code string) (bool, error) {
	if s == nil || s.Source == nil {
		return false, ErrServiceUnavailable
	}
	id, err := calculator.ParseID(calculatorID)
	if err != nil {
		return false, err
	}
	cfg, err := s.Source.PricingConfig(ctx, id.String())
	if err != nil {
		return false, fmt.Errorf("quote: load config: %w", err)
	}
	return pricing.IsValidPromoCode(cfg, code), nil
}

// VerifyToken checks a previously issued quote token.
func (s *Service) VerifyToken(_ context.Context, token string) (TokenClaims, error) {
	if s == nil || s.Signer == nil {
		return TokenClaims{}, ErrServiceUnavailable
	}
	return s.Signer.Verify(token, s.now())
}
