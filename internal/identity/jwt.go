package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"nifty-go/internal/config"
	"nifty-go/internal/model"
	"nifty-go/internal/registry"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

// JWTProvider issues and verifies HS256 tokens whose subject is the account.
type JWTProvider struct {
	secret []byte
	issuer string
	ttl    time.Duration
	clock  registry.Clock
}

var _ registry.IdentityProvider = (*JWTProvider)(nil)

func NewJWTProvider(cfg config.IdentityConfig, clock registry.Clock) (*JWTProvider, error) {
	if len(cfg.Secret) < config.MinSecretLength {
		return nil, fmt.Errorf("JWT secret must be at least %d characters", config.MinSecretLength)
	}
	if clock == nil {
		clock = registry.RealClock{}
	}
	return &JWTProvider{
		secret: []byte(cfg.Secret),
		issuer: cfg.Issuer,
		ttl:    time.Duration(cfg.TokenTTL),
		clock:  clock,
	}, nil
}

// Issue signs a token for account. A zero TTL issues a token that never expires.
func (p *JWTProvider) Issue(account model.Account) (string, time.Time, error) {
	if !registry.ValidAccount(account) {
		return "", time.Time{}, fmt.Errorf("invalid account %q", account)
	}

	now := p.clock.Now()
	claims := jwt.RegisteredClaims{
		Issuer:   p.issuer,
		Subject:  string(account),
		IssuedAt: jwt.NewNumericDate(now),
	}
	var expiresAt time.Time
	if p.ttl > 0 {
		expiresAt = now.Add(p.ttl)
		claims.ExpiresAt = jwt.NewNumericDate(expiresAt)
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing token: %w", err)
	}
	return signed, expiresAt, nil
}

func (p *JWTProvider) Authenticate(ctx context.Context, credential string) (model.Account, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(credential, &claims, func(token *jwt.Token) (any, error) {
		return p.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(p.issuer),
		jwt.WithTimeFunc(p.clock.Now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", &registry.Error{Kind: registry.KindUnauthorized, Message: "token expired", Err: ErrExpiredToken}
		}
		return "", &registry.Error{Kind: registry.KindUnauthorized, Message: "invalid token", Err: ErrInvalidToken}
	}

	account := model.Account(claims.Subject)
	if !registry.ValidAccount(account) {
		return "", &registry.Error{Kind: registry.KindUnauthorized, Message: "invalid subject", Err: ErrInvalidToken}
	}
	return account, nil
}
