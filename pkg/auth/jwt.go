package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"chatdesk/pkg/store/keys"
)

type claims struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// JWTGateway verifies HS256 tokens against every configured signing key and
// signs new tokens with the first one, so keys can be rotated by prepending.
type JWTGateway struct {
	keys   [][]byte
	issuer string
	now    func() time.Time
}

func NewJWTGateway(signingKeys []string, issuer string) (*JWTGateway, error) {
	g := &JWTGateway{issuer: issuer, now: time.Now}
	for _, k := range signingKeys {
		if k == "" {
			continue
		}
		g.keys = append(g.keys, []byte(k))
	}
	if len(g.keys) == 0 {
		return nil, errors.New("auth: no signing keys configured")
	}
	return g, nil
}

// WithClock overrides the time source used for expiry checks and issuing.
func (g *JWTGateway) WithClock(now func() time.Time) *JWTGateway {
	g.now = now
	return g
}

func (g *JWTGateway) Authenticate(ctx context.Context, token string) (Identity, error) {
	if err := ctx.Err(); err != nil {
		return Identity{}, err
	}
	if token == "" {
		return Identity{}, ErrInvalidToken
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(g.now),
	}
	if g.issuer != "" {
		opts = append(opts, jwt.WithIssuer(g.issuer))
	}

	var lastErr error
	for _, key := range g.keys {
		var c claims
		_, err := jwt.ParseWithClaims(token, &c, func(*jwt.Token) (any, error) { return key, nil }, opts...)
		if err != nil {
			lastErr = err
			if errors.Is(err, jwt.ErrTokenSignatureInvalid) {
				continue
			}
			break
		}
		if err := keys.ValidateIdentity(c.Subject); err != nil {
			return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
		return Identity{UserID: c.Subject, Name: c.Name, Email: c.Email}, nil
	}
	return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, lastErr)
}

// Issue signs a token for id with the primary key.
func (g *JWTGateway) Issue(id Identity, ttl time.Duration) (string, time.Time, error) {
	if err := keys.ValidateIdentity(id.UserID); err != nil {
		return "", time.Time{}, err
	}
	if ttl <= 0 {
		return "", time.Time{}, fmt.Errorf("auth: token ttl must be positive, got %s", ttl)
	}
	now := g.now()
	exp := now.Add(ttl)
	c := claims{
		Name:  id.Name,
		Email: id.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
			Issuer:    g.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(g.keys[0])
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}
