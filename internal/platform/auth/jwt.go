package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	firebaseauth "firebase.google.com/go/v4/auth"
	"github.com/golang-jwt/jwt/v5"
)

// SharedSecretVerifier verifies HS256 tokens signed with a shared secret. It backs
// deployments without Firebase, such as local development.
type SharedSecretVerifier struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewSharedSecretVerifier constructs a verifier. A non-empty issuer is enforced.
func NewSharedSecretVerifier(secret, issuer string) (*SharedSecretVerifier, error) {
	if len(secret) < 32 {
		return nil, errors.New("auth: shared secret must be at least 32 bytes")
	}
	return &SharedSecretVerifier{secret: []byte(secret), issuer: issuer, now: time.Now}, nil
}

// VerifyIDToken implements TokenVerifier. The subject claim becomes the identity UID.
func (v *SharedSecretVerifier) VerifyIDToken(_ context.Context, raw string) (*firebaseauth.Token, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, fmt.Errorf("%w: %v", ErrTokenExpired, err)
	case err != nil:
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	subject, err := claims.GetSubject()
	if err != nil || subject == "" {
		return nil, fmt.Errorf("%w: subject claim missing", ErrTokenInvalid)
	}
	token := &firebaseauth.Token{
		UID:     subject,
		Subject: subject,
		Claims:  map[string]any(claims),
	}
	if iss, err := claims.GetIssuer(); err == nil {
		token.Issuer = iss
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		token.Expires = exp.Unix()
	}
	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		token.IssuedAt = iat.Unix()
	}
	return token, nil
}

// Sign issues an HS256 token for uid with roles, valid for ttl. Used by tooling and tests.
func (v *SharedSecretVerifier) Sign(uid string, roles []string, ttl time.Duration) (string, error) {
	now := v.now()
	claims := jwt.MapClaims{
		"sub":   uid,
		"roles": roles,
		"iat":   now.Unix(),
		"exp":   now.Add(ttl).Unix(),
	}
	if v.issuer != "" {
		claims["iss"] = v.issuer
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
