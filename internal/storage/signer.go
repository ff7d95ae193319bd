package storage

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// objectClaims scopes a token to a single object.
type objectClaims struct {
	Bucket string `json:"bkt"`
	Key    string `json:"key"`
	Name   string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// LinkSigner issues and checks HS256 tokens for object download links.
type LinkSigner struct {
	secret []byte
	now    func() time.Time
}

// NewLinkSigner creates a signer using secret.
func NewLinkSigner(secret string) *LinkSigner {
	return &LinkSigner{secret: []byte(secret), now: time.Now}
}

// Sign returns a token for bucket/key valid for ttl. name, when set, is
// the file name the object is served as.
func (s *LinkSigner) Sign(bucket, key, name string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		return "", fmt.Errorf("%w: ttl must be positive", ErrInvalidInput)
	}
	if len(s.secret) == 0 {
		return "", fmt.Errorf("%w: empty signing secret", ErrInvalidInput)
	}

	now := s.now()
	claims := objectClaims{
		Bucket: bucket,
		Key:    key,
		Name:   name,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Verify checks that token is valid, unexpired and issued for bucket/key,
// and returns the download name it carries.
func (s *LinkSigner) Verify(token, bucket, key string) (string, error) {
	claims := &objectClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpired
		}
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid || claims.Bucket != bucket || claims.Key != key {
		return "", ErrInvalidToken
	}
	return claims.Name, nil
}
