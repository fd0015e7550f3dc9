package quote

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/quote-engine/internal/calculator"
	"github.com/noah-isme/quote-engine/internal/obs"
	"github.com/noah-isme/quote-engine/internal/pricing"
)

const carWashID = "3f1c7a52-8d4e-4c1b-9e5a-2b7d6f0a9c31"

var fixedNow = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func carWash() pricing.PricingConfig {
	return pricing.PricingConfig{
		Currency: "EUR",
		Groups: []pricing.OptionGroup{
			{Field: "package", Tiers: []pricing.Tier{
				{Key: "exterior", Label: "Exterior wash", Kind: pricing.KindFlat, Price: d("30")},
				{Key: "ext_int", Label: "Exterior + interior", Kind: pricing.KindFlat, Price: d("50")},
			}},
			{Field: "vehicle", Tiers: []pricing.Tier{
				{Key: "sedan", Kind: pricing.KindFlat, Price: d("0")},
				{Key: "suv", Label: "SUV", Kind: pricing.KindFlat, Price: d("20")},
			}},
		},
		AddOns: []pricing.AddOn{{ID: "wax", Label: "Hand wax", Price: d("35")}},
		Surcharges: []pricing.SurchargeRule{{
			Field:   "urgency",
			Default: "standard",
			Options: []pricing.SurchargeOption{{Key: "rush", Label: "Rush service", Kind: pricing.AdjustFlat, Value: d("25")}},
		}},
		PromoCodes: map[string]pricing.PromoCode{"WASH10": {Kind: pricing.AdjustPercentage, Value: d("10")}},
	}
}

func carWashSelection() pricing.Selection {
	return pricing.Selection{
		Fields:    map[string]string{"package": "ext_int", "vehicle": "suv", "urgency": "rush"},
		AddOns:    []string{"wax"},
		PromoCode: "wash10",
	}
}

type recordingPublisher struct {
	quotes []Quote
	err    error
}

func (p *recordingPublisher) PublishQuote(_ context.Context, q Quote) error {
	p.quotes = append(p.quotes, q)
	return p.err
}

type failingSource struct{ err error }

func (s failingSource) PricingConfig(context.Context, string) (pricing.PricingConfig, error) {
	return pricing.PricingConfig{}, s.err
}

func newTestService(t *testing.T, pub Publisher) *Service {
	t.Helper()
	obs.MustRegisterDomainMetrics("test", prometheus.NewRegistry())
	signer, err := NewSigner(testSecret, "quote-engine", 30*time.Minute)
	require.NoError(t, err)
	return &Service{
		Source:    calculator.StaticSource{carWashID: carWash()},
		Publisher: pub,
		Signer:    signer,
		Now:       func() time.Time { return fixedNow },
		NewID:     func() string { return "quote-1" },
	}
}

func TestServiceQuote(t *testing.T) {
	pub := &recordingPublisher{}
	svc := newTestService(t, pub)
	okBefore := testutil.ToFloat64(obs.QuoteCalculationsTotal.WithLabelValues("ok"))
	publishedBefore := testutil.ToFloat64(obs.QuotePublishTotal.WithLabelValues("ok"))

	q, err := svc.Quote(context.Background(), carWashID, carWashSelection())
	require.NoError(t, err)
	require.Equal(t, "quote-1", q.ID)
	require.Equal(t, carWashID, q.CalculatorID)
	require.Equal(t, fixedNow, q.CreatedAt)
	require.False(t, q.PromoCodeRejected)
	require.True(t, q.Breakdown.Total.Equal(d("117")))
	require.NotEmpty(t, q.Token)
	require.Equal(t, fixedNow.Add(30*time.Minute), q.ExpiresAt)

	require.Len(t, pub.quotes, 1)
	require.Equal(t, q.ID, pub.quotes[0].ID)

	claims, err := svc.VerifyToken(context.Background(), q.Token)
	require.NoError(t, err)
	require.Equal(t, q.ID, claims.QuoteID)
	require.True(t, claims.Total.Equal(d("117")))

	require.Equal(t, okBefore+1, testutil.ToFloat64(obs.QuoteCalculationsTotal.WithLabelValues("ok")))
	require.Equal(t, publishedBefore+1, testutil.ToFloat64(obs.QuotePublishTotal.WithLabelValues("ok")))
}

func TestServiceQuoteFlagsUnknownPromo(t *testing.T) {
	svc := newTestService(t, nil)
	sel := carWashSelection()
	sel.PromoCode = "SPRING"

	q, err := svc.Quote(context.Background(), carWashID, sel)
	require.NoError(t, err)
	require.True(t, q.PromoCodeRejected)
	require.True(t, q.Breakdown.Total.Equal(d("130")))
	require.Empty(t, q.Breakdown.Discounts())
}

func TestServiceQuotePublishFailureIsNotFatal(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	svc := newTestService(t, pub)
	failedBefore := testutil.ToFloat64(obs.QuotePublishTotal.WithLabelValues("error"))

	q, err := svc.Quote(context.Background(), carWashID, carWashSelection())
	require.NoError(t, err)
	require.NotEmpty(t, q.Token)
	require.Len(t, pub.quotes, 1)
	require.Equal(t, failedBefore+1, testutil.ToFloat64(obs.QuotePublishTotal.WithLabelValues("error")))
}

func TestServiceQuoteErrors(t *testing.T) {
	svc := newTestService(t, NopPublisher{})
	ctx := context.Background()

	_, err := svc.Quote(ctx, "car-wash", carWashSelection())
	require.ErrorIs(t, err, calculator.ErrInvalidID)

	notFoundBefore := testutil.ToFloat64(obs.QuoteCalculationsTotal.WithLabelValues("not_found"))
	_, err = svc.Quote(ctx, "9a0e3f4b-1111-4c2d-8e8e-000000000000", carWashSelection())
	require.ErrorIs(t, err, calculator.ErrNotFound)
	require.Equal(t, notFoundBefore+1, testutil.ToFloat64(obs.QuoteCalculationsTotal.WithLabelValues("not_found")))

	boom := errors.New("db down")
	svc.Source = failingSource{err: boom}
	_, err = svc.Quote(ctx, carWashID, carWashSelection())
	require.ErrorIs(t, err, boom)

	var nilSvc *Service
	_, err = nilSvc.Quote(ctx, carWashID, carWashSelection())
	require.ErrorIs(t, err, ErrServiceUnavailable)
}

func TestServiceQuoteWithoutSigner(t *testing.T) {
	svc := newTestService(t, nil)
	svc.Signer = nil
	q, err := svc.Quote(context.Background(), carWashID, carWashSelection())
	require.NoError(t, err)
	require.Empty(t, q.Token)
	require.True(t, q.ExpiresAt.IsZero())

	_, err = svc.VerifyToken(context.Background(), "anything")
	require.ErrorIs(t, err, ErrServiceUnavailable)
}

func TestServicePreview(t *testing.T) {
	svc := &Service{}
	b, err := svc.Preview(context.Background(), carWash(), carWashSelection())
	require.NoError(t, err)
	require.True(t, b.Total.Equal(d("117")))

	invalid := carWash()
	invalid.AddOns = append(invalid.AddOns, pricing.AddOn{ID: "wax", Price: d("1")})
	_, err = svc.Preview(context.Background(), invalid, carWashSelection())
	require.ErrorIs(t, err, pricing.ErrInvalidConfig)
}

func TestServiceCheckPromoCode(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	for _, code := range []string{"WASH10", "wash10", "  Wash10 "} {
		ok, err := svc.CheckPromoCode(ctx, carWashID, code)
		require.NoError(t, err)
		require.True(t, ok, code)
	}
	ok, err := svc.CheckPromoCode(ctx, carWashID, "WASH20")
	require.NoError(t, err)
	require.False(t, ok)

	_, err = svc.CheckPromoCode(ctx, "bad", "WASH10")
	require.ErrorIs(t, err, calculator.ErrInvalidID)
}
