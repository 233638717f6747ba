package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	RoleStudent = "student"
	RoleTeacher = "teacher"
	RoleNone    = "none"
)

var ErrInvalidToken = errors.New("invalid_token")

type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// RoleFromAffiliations derives the session role from the identity
// provider's affiliation list. Teacher wins when both are present.
func RoleFromAffiliations(affiliations []string) string {
	for _, affiliation := range affiliations {
		if affiliation == RoleTeacher {
			return RoleTeacher
		}
	}
	for _, affiliation := range affiliations {
		if affiliation == RoleStudent {
			return RoleStudent
		}
	}
	return RoleNone
}

func NewTokenPair(secret, issuer, role, subject string, accessTTL, refreshTTL time.Duration) (TokenPair, error) {
	accessToken, err := NewToken(secret, issuer, role, subject, accessTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refreshToken, err := NewToken(secret, issuer, role, subject, refreshTTL)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: accessToken, RefreshToken: refreshToken}, nil
}

func NewToken(secret, issuer, role, subject string, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    issuer,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func ParseToken(secret, tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Refresh verifies the presented refresh token and mints a fresh pair
// carrying forward its role and subject. The role is trusted here only
// because the signature check already proved it was minted by us.
func Refresh(secret, issuer, refreshToken string, accessTTL, refreshTTL time.Duration) (TokenPair, *Claims, error) {
	claims, err := ParseToken(secret, refreshToken)
	if err != nil {
		return TokenPair{}, nil, err
	}
	pair, err := NewTokenPair(secret, issuer, claims.Role, claims.Subject, accessTTL, refreshTTL)
	if err != nil {
		return TokenPair{}, nil, err
	}
	return pair, claims, nil
}
