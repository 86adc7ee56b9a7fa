package api

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AccessChecker decides whether a portal caller may view an invoice.
type AccessChecker interface {
	CanView(ctx context.Context, invoiceID int64, token string) (bool, error)
}

// PortalTokens issues and verifies signed per-invoice view links.
type PortalTokens struct {
	secret []byte
}

func NewPortalTokens(secret string) *PortalTokens {
	return &PortalTokens{secret: []byte(secret)}
}

type portalClaims struct {
	InvoiceID int64 `json:"inv"`
	jwt.RegisteredClaims
}

// Issue signs a token that lets its bearer view one invoice until ttl passes.
func (p *PortalTokens) Issue(invoiceID int64, ttl time.Duration) (string, error) {
	if len(p.secret) == 0 {
		return "", fmt.Errorf("portal tokens need a jwt secret")
	}
	now := time.Now()
	claims := portalClaims{
		InvoiceID: invoiceID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "portal:" + strconv.FormatInt(invoiceID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
}

func (p *PortalTokens) CanView(_ context.Context, invoiceID int64, token string) (bool, error) {
	if token == "" || len(p.secret) == 0 {
		return false, nil
	}
	claims := &portalClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return p.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return false, nil
	}
	return claims.InvoiceID == invoiceID, nil
}
