package identity

import "errors"

var (
	ErrMissingToken      = errors.New("identity: missing token")
	ErrInvalidToken      = errors.New("identity: invalid token")
	ErrExpiredToken      = errors.New("identity: token is expired")
	ErrMissingSubject    = errors.New("identity: token has no subject")
	ErrMissingSigningKey = errors.New("identity: missing signing key")
)
