// Copyright 2025 Leandro Veron
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// BusinessAuth mints and verifies the tokens the sync client presents to
// the backend. Verification is only exercised by the CLI and tests; in
// production the backend validates tokens.
type BusinessAuth struct {
	secret []byte
}

// NewBusinessAuth creates a new authenticator
func NewBusinessAuth(secret string) *BusinessAuth {
	return &BusinessAuth{secret: []byte(secret)}
}

// BusinessClaims carries the business ids the user may sync
type BusinessClaims struct {
	BusinessIDs []string `json:"biz"`
	jwt.RegisteredClaims
}

// GenerateToken generates a token granting access to the given businesses
func (a *BusinessAuth) GenerateToken(userID string, businessIDs []string, expiration time.Duration) (string, error) {
	claims := &BusinessClaims{
		BusinessIDs: businessIDs,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiration)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
			Issuer:    "locus-sync",
			Subject:   userID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

// ValidateToken validates a token and returns the claims
func (a *BusinessAuth) ValidateToken(tokenString string) (*BusinessClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &BusinessClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*BusinessClaims); ok && token.Valid {
		if claims.Subject == "" {
			return nil, fmt.Errorf("missing sub (user ID) in token")
		}
		if len(claims.BusinessIDs) == 0 {
			return nil, fmt.Errorf("missing biz (business IDs) in token")
		}
		return claims, nil
	}

	return nil, fmt.Errorf("invalid token")
}
