package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/mkarim-dev/backend-bazar/internal/common"
)

// Service signs and validates customer access tokens. Customer identity
// lives upstream; this service only proves who is calling.
type Service struct {
	secret    []byte
	signer    jwa.SignatureAlgorithm
	validator TokenValidator
	issuer    string
	audience  string
	accessTTL time.Duration
	clockSkew time.Duration
	now       func() time.Time
}

// NewService constructs a token service with HS256 signing.
func NewService(secret, issuer, audience string, accessTTL time.Duration) *Service {
	skew := 30 * time.Second
	return &Service{
		secret: []byte(secret),
		signer: jwa.HS256,
		validator: TokenValidator{
			Issuer:    issuer,
			Audience:  audience,
			ClockSkew: skew,
			Algorithm: jwa.HS256,
		},
		issuer:    issuer,
		audience:  audience,
		accessTTL: accessTTL,
		clockSkew: skew,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithNow overrides the clock, for tests.
func (s *Service) WithNow(now func() time.Time) { s.now = now }

// SignAccessToken issues a token whose subject is the customer id.
func (s *Service) SignAccessToken(userID string) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.accessTTL)
	builder := jwt.NewBuilder().
		Subject(userID).
		Issuer(s.issuer).
		Audience([]string{s.audience}).
		IssuedAt(now).
		NotBefore(now.Add(-s.clockSkew)).
		Expiration(expiresAt)
	token, err := builder.Build()
	if err != nil {
		return "", time.Time{}, err
	}
	signed, err := jwt.Sign(token, jwt.WithKey(s.signer, s.secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return string(signed), expiresAt, nil
}

// ParseAccessToken verifies a token and returns the customer id.
func (s *Service) ParseAccessToken(token string) (string, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return "", common.NewAppError("UNAUTHORIZED", "missing token", http.StatusUnauthorized, nil)
	}
	algorithm, err := extractTokenAlgorithm(trimmed)
	if err != nil {
		return "", common.NewAppError("UNAUTHORIZED", "invalid token", http.StatusUnauthorized, err)
	}
	if s.validator.Algorithm != "" && algorithm != s.validator.Algorithm {
		return "", common.NewAppError("UNAUTHORIZED", "invalid token", http.StatusUnauthorized, fmt.Errorf("unexpected token algorithm %s", algorithm))
	}
	parsed, err := jwt.ParseString(trimmed, jwt.WithKey(algorithm, s.secret))
	if err != nil {
		return "", common.NewAppError("UNAUTHORIZED", "invalid token", http.StatusUnauthorized, err)
	}
	if err := s.validator.Validate(parsed, algorithm, s.now()); err != nil {
		return "", common.NewAppError("UNAUTHORIZED", "invalid token", http.StatusUnauthorized, err)
	}
	return parsed.Subject(), nil
}

// TokenValidator checks issuer, audience, expiry, and signing algorithm
// against the service's expectations.
type TokenValidator struct {
	Issuer    string
	Audience  string
	ClockSkew time.Duration
	Algorithm jwa.SignatureAlgorithm
}

// Validate ensures tok satisfies the validator's constraints at the given time.
func (v TokenValidator) Validate(tok jwt.Token, algorithm jwa.SignatureAlgorithm, now time.Time) error {
	if tok == nil {
		return errors.New("auth: token is nil")
	}
	if algorithm == "" {
		return errors.New("auth: token missing algorithm")
	}
	if v.Algorithm != "" && algorithm != v.Algorithm {
		return fmt.Errorf("auth: unexpected token algorithm %s", algorithm)
	}

	options := []jwt.ValidateOption{
		jwt.WithClock(jwt.ClockFunc(func() time.Time { return now })),
	}
	if v.ClockSkew > 0 {
		options = append(options, jwt.WithAcceptableSkew(v.ClockSkew))
	}
	if v.Issuer != "" {
		options = append(options, jwt.WithIssuer(v.Issuer))
	}
	if v.Audience != "" {
		options = append(options, jwt.WithAudience(v.Audience))
	}
	return jwt.Validate(tok, options...)
}

func extractTokenAlgorithm(token string) (jwa.SignatureAlgorithm, error) {
	message, err := jws.ParseString(token)
	if err != nil {
		return "", err
	}
	signatures := message.Signatures()
	if len(signatures) == 0 {
		return "", errors.New("auth: token contains no signatures")
	}
	var algorithm jwa.SignatureAlgorithm
	for _, sig := range signatures {
		headers := sig.ProtectedHeaders()
		if headers == nil {
			return "", errors.New("auth: token missing protected headers")
		}
		alg := headers.Algorithm()
		if alg == "" {
			return "", errors.New("auth: token missing algorithm")
		}
		if alg == jwa.NoSignature {
			return "", errors.New("auth: token uses none algorithm")
		}
		if algorithm == "" {
			algorithm = alg
		} else if algorithm != alg {
			return "", fmt.Errorf("auth: mixed token algorithms detected")
		}
	}
	return algorithm, nil
}
