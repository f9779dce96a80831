package helper

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// MerchantDataVersion is the only merchant data layout currently understood.
const MerchantDataVersion = 1

// ErrInvalidMerchantData is returned for MD values that are missing, tampered, expired,
// or of an unknown version.
var ErrInvalidMerchantData = errors.New("invalid merchant data")

type merchantDataClaims struct {
	Version   int    `json:"v"`
	Reference string `json:"ref"`
	jwt.RegisteredClaims
}

// MerchantDataCodec signs the correlation data that travels through the issuer during a
// 3DS challenge and verifies it on the callback.
type MerchantDataCodec struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewMerchantDataCodec(secret string, ttl time.Duration) *MerchantDataCodec {
	return &MerchantDataCodec{secret: []byte(secret), ttl: ttl, now: time.Now}
}

func (c *MerchantDataCodec) Encode(reference string) (string, error) {
	if reference == "" {
		return "", fmt.Errorf("%w: empty reference", ErrInvalidMerchantData)
	}
	now := c.now()
	claims := merchantDataClaims{
		Version:   MerchantDataVersion,
		Reference: reference,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if c.ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(c.ttl))
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign merchant data: %w", err)
	}
	return signed, nil
}

// Decode returns the reference carried by merchant data produced by Encode.
func (c *MerchantDataCodec) Decode(md string) (string, error) {
	if md == "" {
		return "", fmt.Errorf("%w: empty value", ErrInvalidMerchantData)
	}

	var claims merchantDataClaims
	_, err := jwt.ParseWithClaims(md, &claims, func(t *jwt.Token) (interface{}, error) {
		return c.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(c.now))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidMerchantData, err)
	}
	if claims.Version != MerchantDataVersion {
		return "", fmt.Errorf("%w: unsupported version %d", ErrInvalidMerchantData, claims.Version)
	}
	if claims.Reference == "" {
		return "", fmt.Errorf("%w: reference missing", ErrInvalidMerchantData)
	}
	return claims.Reference, nil
}
