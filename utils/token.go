package utils

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dgrijalva/jwt-go"
)

// ServiceClaim identifies an integration acting as a user of one business.
type ServiceClaim struct {
	UserId     int    `json:"uid"`
	BusinessId string `json:"bid"`
	Name       string `json:"name"`
	jwt.StandardClaims
}

var ErrInvalidServiceToken = errors.New("invalid service token")

func getJwtSecret() []byte {
	secret := os.Getenv("API_SECRET")
	if secret == "" {
		return []byte("rentiq-dev-secret")
	}
	return []byte(secret)
}

// JwtGenerate signs an HS256 token for userId valid for ttl. tokenId becomes
// the jti claim so the token can be revoked.
func JwtGenerate(tokenId string, userId int, businessId string, name string, ttl time.Duration) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(ttl)
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, &ServiceClaim{
		UserId:     userId,
		BusinessId: businessId,
		Name:       name,
		StandardClaims: jwt.StandardClaims{
			Id:        tokenId,
			ExpiresAt: expiresAt.Unix(),
			IssuedAt:  now.Unix(),
			Issuer:    "rentiq",
		},
	})
	token, err := t.SignedString(getJwtSecret())
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

// JwtValidate parses token and returns its claims when the signature and expiry check out.
func JwtValidate(token string) (*ServiceClaim, error) {
	parsed, err := jwt.ParseWithClaims(token, &ServiceClaim{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return getJwtSecret(), nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidServiceToken, err)
	}
	claim, ok := parsed.Claims.(*ServiceClaim)
	if !ok || !parsed.Valid || claim.UserId <= 0 || claim.BusinessId == "" {
		return nil, ErrInvalidServiceToken
	}
	return claim, nil
}
