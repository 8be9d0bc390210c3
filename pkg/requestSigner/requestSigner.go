package requestSigner

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v3/jwt"
)

// TokenLifetime is how long a signed request token stays valid.
const TokenLifetime = 55 * time.Second

// RequestClaims are the JWT claims the custody API expects on every call.
type RequestClaims struct {
	Uri       string
	Nonce     string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Subject   string // API key
	BodyHash  string // hex sha256 of the request body
}

// NewRequestClaims builds claims for a single request. uri is the path plus query string.
func NewRequestClaims(apiKey string, uri string, body []byte, now time.Time) *RequestClaims {
	sum := sha256.Sum256(body)
	issuedAt := now.Truncate(time.Second)
	return &RequestClaims{
		Uri:       uri,
		Nonce:     uuid.New().String(),
		IssuedAt:  issuedAt,
		ExpiresAt: issuedAt.Add(TokenLifetime),
		Subject:   apiKey,
		BodyHash:  hex.EncodeToString(sum[:]),
	}
}

// Token builds the unsigned JWT carrying the claims.
func (c *RequestClaims) Token() (jwt.Token, error) {
	token, err := jwt.NewBuilder().
		Subject(c.Subject).
		IssuedAt(c.IssuedAt).
		Expiration(c.ExpiresAt).
		Claim("uri", c.Uri).
		Claim("nonce", c.Nonce).
		Claim("bodyHash", c.BodyHash).
		Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build request token: %w", err)
	}
	return token, nil
}

// IRequestSigner produces the bearer token that authenticates one custody API call.
type IRequestSigner interface {
	SignRequest(ctx context.Context, claims *RequestClaims) (string, error)
}
