package jwttoken

import (
	authmw "timekeep/pkg/platform/middleware/auth"
)

// MiddlewareAdapter exposes a Verifier to the auth middleware.
type MiddlewareAdapter struct {
	verifier *Verifier
}

func NewMiddlewareAdapter(verifier *Verifier) *MiddlewareAdapter {
	return &MiddlewareAdapter{verifier: verifier}
}

func (a *MiddlewareAdapter) VerifyToken(tokenString string) (*authmw.Principal, error) {
	p, err := a.verifier.Verify(tokenString)
	if err != nil {
		return nil, err
	}
	return &authmw.Principal{TenantID: p.TenantID, Actor: p.Actor}, nil
}
