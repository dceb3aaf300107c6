package identity

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type Config struct {
	Secret   string        `env:"JWT_SECRET,required"`         // Secret is the HS256 signing key shared with the auth service.
	Issuer   string        `env:"JWT_ISSUER"`                  // Issuer, when set, must match the iss claim.
	Audience string        `env:"JWT_AUDIENCE"`                // Audience, when set, must be present in the aud claim.
	Leeway   time.Duration `env:"JWT_LEEWAY" envDefault:"30s"` // Leeway tolerates clock skew on exp/nbf.
}

// Claims are the token claims the notifier understands.
type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role,omitempty"`
}

// Verifier validates HS256 bearer tokens issued by the auth service.
type Verifier struct {
	key    []byte
	cfg    Config
	parser *jwt.Parser
}

// NewVerifier returns a Verifier for cfg.
func NewVerifier(cfg Config) (*Verifier, error) {
	if cfg.Secret == "" {
		return nil, ErrMissingSigningKey
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(cfg.Leeway),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}

	return &Verifier{
		key:    []byte(cfg.Secret),
		cfg:    cfg,
		parser: jwt.NewParser(opts...),
	}, nil
}

// Parse validates token and returns the identity it asserts.
func (v *Verifier) Parse(token string) (Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Identity{}, ErrMissingToken
	}

	var claims Claims
	_, err := v.parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return v.key, nil
	})
	if err != nil {
		return Identity{}, mapJWTError(err)
	}
	if claims.Subject == "" {
		return Identity{}, ErrMissingSubject
	}

	return Identity{UserID: claims.Subject, AuthToken: token}, nil
}

// Issue signs a token for userID valid for ttl. The notifier never issues
// tokens in production; this serves local tooling and tests.
func (v *Verifier) Issue(userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    v.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role: "authenticated",
	}
	if v.cfg.Audience != "" {
		claims.Audience = jwt.ClaimStrings{v.cfg.Audience}
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.key)
	if err != nil {
		return "", fmt.Errorf("identity: sign token: %w", err)
	}
	return signed, nil
}

func mapJWTError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return errors.Join(ErrExpiredToken, err)
	default:
		return errors.Join(ErrInvalidToken, err)
	}
}
