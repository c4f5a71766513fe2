// Package auth verifies access tokens minted by the hosted identity provider.
// Sign-up, login and token issuance live with the provider.
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

	"github.com/noah-isme/maison-parfum/internal/common"
)

// RoleAdmin grants access to back-office endpoints.
const RoleAdmin = "admin"

// Claims are the identity facts the API relies on.
type Claims struct {
	UserID string
	Role   string
	Email  string
}

// VerifierConfig configures token verification.
type VerifierConfig struct {
	Secret    string
	Issuer    string
	Audience  string
	ClockSkew time.Duration
	Now       func() time.Time
}

// Verifier checks HS256 access tokens.
type Verifier struct {
	secret []byte
	policy claimPolicy
	now    func() time.Time
}

// claimPolicy holds the registered-claim checks applied after the signature
// has been verified.
type claimPolicy struct {
	issuer    string
	audience  string
	clockSkew time.Duration
}

// check requires a subject and an expiry, then runs the issuer, audience and
// time checks against now. The provider always sets sub and exp.
func (p claimPolicy) check(tok jwt.Token, now time.Time) error {
	if tok.Subject() == "" {
		return errors.New("auth: token missing subject")
	}
	if tok.Expiration().IsZero() {
		return errors.New("auth: token missing expiry")
	}
	opts := []jwt.ValidateOption{
		jwt.WithClock(jwt.ClockFunc(func() time.Time { return now })),
		jwt.WithAcceptableSkew(p.clockSkew),
	}
	if p.issuer != "" {
		opts = append(opts, jwt.WithIssuer(p.issuer))
	}
	if p.audience != "" {
		opts = append(opts, jwt.WithAudience(p.audience))
	}
	return jwt.Validate(tok, opts...)
}

// NewVerifier builds a verifier. An empty secret is a configuration error.
func NewVerifier(cfg VerifierConfig) (*Verifier, error) {
	if strings.TrimSpace(cfg.Secret) == "" {
		return nil, errors.New("auth: jwt secret is required")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Verifier{
		secret: []byte(cfg.Secret),
		policy: claimPolicy{
			issuer:    cfg.Issuer,
			audience:  cfg.Audience,
			clockSkew: cfg.ClockSkew,
		},
		now: now,
	}, nil
}

// Verify parses and validates token, returning its claims.
func (v *Verifier) Verify(token string) (Claims, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return Claims{}, unauthorized("missing token", nil)
	}
	algorithm, err := extractTokenAlgorithm(trimmed)
	if err != nil {
		return Claims{}, unauthorized("invalid token", err)
	}
	if algorithm != jwa.HS256 {
		return Claims{}, unauthorized("invalid token", fmt.Errorf("unexpected token algorithm %s", algorithm))
	}
	parsed, err := jwt.ParseString(trimmed, jwt.WithKey(algorithm, v.secret), jwt.WithValidate(false))
	if err != nil {
		return Claims{}, unauthorized("invalid token", err)
	}
	if err := v.policy.check(parsed, v.now()); err != nil {
		return Claims{}, unauthorized("invalid token", err)
	}
	return Claims{
		UserID: parsed.Subject(),
		Role:   stringClaim(parsed, "role"),
		Email:  stringClaim(parsed, "email"),
	}, nil
}

func stringClaim(tok jwt.Token, name string) string {
	raw, ok := tok.Get(name)
	if !ok {
		return ""
	}
	s, _ := raw.(string)
	return strings.TrimSpace(s)
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
			return "", errors.New("auth: mixed token algorithms detected")
		}
	}
	return algorithm, nil
}

func unauthorized(message string, err error) *common.AppError {
	return common.NewAppError("UNAUTHORIZED", message, http.StatusUnauthorized, err)
}
