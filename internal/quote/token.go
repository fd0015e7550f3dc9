package quote

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/shopspring/decimal"
)

const (
	claimCalculator = "cid"
	claimTotal      = "total"
	claimCurrency   = "cur"
	defaultTokenTTL = 30 * time.Minute
	minSecretLength = 32
)

var (
	// ErrInvalidToken is returned for tokens that fail signature, expiry or claim checks.
	ErrInvalidToken = errors.New("quote: invalid token")
	// ErrWeakSecret rejects signing secrets shorter than 32 bytes.
	ErrWeakSecret = errors.New("quote: token secret must be at least 32 bytes")
)

// TokenClaims is what a quote token vouches for.
type TokenClaims struct {
	QuoteID      string          `json:"quoteId"`
	CalculatorID string          `json:"calculatorId"`
	Total        decimal.Decimal `json:"total"`
	Currency     string          `json:"currency"`
	IssuedAt     time.Time       `json:"issuedAt"`
	ExpiresAt    time.Time       `json:"expiresAt"`
}

// Signer issues and verifies HS256 quote tokens so downstream checkout can trust a quoted total.
type Signer struct {
	secret    []byte
	issuer    string
	ttl       time.Duration
	clockSkew time.Duration
}

// NewSigner constructs a Signer. A non-positive ttl falls back to 30 minutes.
func NewSigner(secret []byte, issuer string, ttl time.Duration) (*Signer, error) {
	if len(secret) < minSecretLength {
		return nil, ErrWeakSecret
	}
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	return &Signer{secret: secret, issuer: strings.TrimSpace(issuer), ttl: ttl, clockSkew: 30 * time.Second}, nil
}

// Sign issues a token for claims, stamping issue and expiry times from now.
func (s *Signer) Sign(claims TokenClaims, now time.Time) (string, time.Time, error) {
	expiresAt := now.Add(s.ttl)
	builder := jwt.NewBuilder().
		JwtID(claims.QuoteID).
		Subject(claims.QuoteID).
		IssuedAt(now).
		NotBefore(now).
		Expiration(expiresAt).
		Claim(claimCalculator, claims.CalculatorID).
		Claim(claimTotal, claims.Total.String()).
		Claim(claimCurrency, claims.Currency)
	if s.issuer != "" {
		builder = builder.Issuer(s.issuer)
	}
	token, err := builder.Build()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("quote: build token: %w", err)
	}
	signed, err := jwt.Sign(token, jwt.WithKey(jwa.HS256, s.secret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("quote: sign token: %w", err)
	}
	return string(signed), expiresAt, nil
}

// Verify checks the signature and time window of raw and returns its claims.
func (s *Signer) Verify(raw string, now time.Time) (TokenClaims, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return TokenClaims{}, ErrInvalidToken
	}
	tok, err := jwt.ParseString(trimmed, jwt.WithKey(jwa.HS256, s.secret), jwt.WithValidate(false))
	if err != nil {
		return TokenClaims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	options := []jwt.ValidateOption{
		jwt.WithClock(jwt.ClockFunc(func() time.Time { return now })),
		jwt.WithAcceptableSkew(s.clockSkew),
	}
	if s.issuer != "" {
		options = append(options, jwt.WithIssuer(s.issuer))
	}
	if err := jwt.Validate(tok, options...); err != nil {
		return TokenClaims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims := TokenClaims{
		QuoteID:   tok.JwtID(),
		IssuedAt:  tok.IssuedAt(),
		ExpiresAt: tok.Expiration(),
	}
	claims.CalculatorID = stringClaim(tok, claimCalculator)
	claims.Currency = stringClaim(tok, claimCurrency)
	total, err := decimal.NewFromString(stringClaim(tok, claimTotal))
	if err != nil || claims.QuoteID == "" || claims.CalculatorID == "" {
		return TokenClaims{}, fmt.Errorf("%w: missing quote claims", ErrInvalidToken)
	}
	claims.Total = total
	return claims, nil
}

func stringClaim(tok jwt.Token, name string) string {
	v, ok := tok.Get(name)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}
