package security

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jasonk0/card-count/internal/tokens"
)

// ErrInvalidToken indicates a token is malformed or fails verification.
var ErrInvalidToken = errors.New("invalid token")

// userClaims defines the JWT claims embedded in issued credentials.
type userClaims struct {
	UserID   uint64 `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// JWTCodec signs and decodes HMAC-SHA256 credentials for the token
// lifecycle. The secret is fixed at construction; there is no mutable
// package-level configuration.
type JWTCodec struct {
	secret []byte
}

// NewJWTCodec constructs a codec with the given signing secret.
func NewJWTCodec(secret string) *JWTCodec {
	return &JWTCodec{secret: []byte(secret)}
}

// Sign produces a signed credential carrying the given claims.
func (c *JWTCodec) Sign(claims tokens.Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, userClaims{
		UserID:   claims.UserID,
		Username: claims.Username,
		Role:     claims.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        claims.ID,
			IssuedAt:  jwt.NewNumericDate(claims.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(claims.ExpiresAt),
		},
	})
	return token.SignedString(c.secret)
}

// Decode verifies a credential's signature and structure and returns its
// claims. Expiry is deliberately not validated here: the token lifecycle
// checks it itself so revocation can take precedence over expiry.
func (c *JWTCodec) Decode(tokenString string) (tokens.Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &userClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return c.secret, nil
	}, jwt.WithoutClaimsValidation())
	if err != nil {
		return tokens.Claims{}, ErrInvalidToken
	}
	claims, ok := token.Claims.(*userClaims)
	if !ok {
		return tokens.Claims{}, ErrInvalidToken
	}
	if claims.ExpiresAt == nil {
		return tokens.Claims{}, ErrInvalidToken
	}

	out := tokens.Claims{
		ID:        claims.RegisteredClaims.ID,
		UserID:    claims.UserID,
		Username:  claims.Username,
		Role:      claims.Role,
		ExpiresAt: claims.ExpiresAt.Time,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	return out, nil
}
