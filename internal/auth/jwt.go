package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"marketplace-service/internal/models"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims carries the identity the marketplace front end already knows about the
// user; the service trusts them once the signature checks out.
type Claims struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
	UserRole string `json:"userRole"`
	jwt.RegisteredClaims
}

// Account resolves the claims to a role-specific account.
func (c Claims) Account() (models.Account, error) {
	role, err := models.ParseRole(c.UserRole)
	if err != nil {
		return nil, err
	}
	return models.NewAccount(role, c.UserID, c.UserName)
}

// Verifier issues and validates HS256 tokens.
type Verifier struct {
	secret []byte
	ttl    time.Duration
}

// NewVerifier constructs a Verifier. ttl applies to issued tokens only; zero
// issues tokens without expiry.
func NewVerifier(secret string, ttl time.Duration) *Verifier {
	return &Verifier{secret: []byte(secret), ttl: ttl}
}

// Issue signs a token for account.
func (v *Verifier) Issue(account models.Account) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:   account.AccountID(),
		UserName: account.DisplayName(),
		UserRole: string(account.AccountRole()),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  account.AccountID(),
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if v.ttl != 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(v.ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// ValidateToken verifies the JWT and returns its claims.
func (v *Verifier) ValidateToken(token string) (Claims, error) {
	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !parsed.Valid {
		return Claims{}, ErrInvalidToken
	}
	if claims.UserID == "" {
		claims.UserID = claims.Subject
	}
	if claims.UserID == "" {
		return Claims{}, ErrInvalidToken
	}
	return claims, nil
}

// PeekClaims reads the claims of token without verifying its signature. Clients
// use it to learn their own identity; servers must use ValidateToken.
func PeekClaims(token string) (Claims, error) {
	var claims Claims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return Claims{}, ErrInvalidToken
	}
	if claims.UserID == "" {
		claims.UserID = claims.Subject
	}
	return claims, nil
}
