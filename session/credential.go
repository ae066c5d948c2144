package session

import (
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"

	apperrors "github.com/seatwise/dashboard/internal/errors"
)

// Credential is the signed session token issued by the remote API after a
// one-time login token exchange, together with the claims decoded from it.
type Credential struct {
	Token        string    `json:"token"`
	TenantID     string    `json:"tenantId"`
	SubjectEmail string    `json:"subjectEmail"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// DecodeCredential extracts the expiry and identity claims from a raw
// credential without verifying its signature. The decoded expiry is only a
// client-side estimate; the remote API remains the authority on validity,
// so verification here would add nothing. A token that cannot be decoded is
// treated the same as an expired one.
func DecodeCredential(raw string) (*Credential, error) {
	if raw == "" {
		return nil, apperrors.ErrNoCredential
	}

	unverified, _, err := jwtlib.NewParser().ParseUnverified(raw, jwtlib.MapClaims{})
	if err != nil {
		return nil, errors.Wrap(apperrors.ErrInvalidCredential, err.Error())
	}

	claims, ok := unverified.Claims.(jwtlib.MapClaims)
	if !ok {
		return nil, errors.Wrap(apperrors.ErrInvalidCredential, "error extracting claims")
	}

	exp, ok := claims["exp"].(float64)
	if !ok {
		return nil, errors.Wrap(apperrors.ErrInvalidCredential, "missing exp claim")
	}

	tenantID, _ := claims["tenantId"].(string)
	email, _ := claims["email"].(string)

	return &Credential{
		Token:        raw,
		TenantID:     tenantID,
		SubjectEmail: email,
		ExpiresAt:    time.Unix(int64(exp), 0),
	}, nil
}

// Valid reports whether the credential's estimated expiry is still in the
// future at the given instant.
func (c *Credential) Valid(now time.Time) bool {
	return c != nil && c.Token != "" && c.ExpiresAt.After(now)
}
