// Package jwt signs and validates the RS256 bearer tokens presented by
// presence clients.
//
// The presence server only needs the public key. The private key is used by
// local tooling that mints tokens:
//
//	svc, err := jwt.NewService(jwt.Config{
//	    PublicKeyPath:  "./keys/public.pem",
//	    Issuer:         "saga.forgo.software",
//	    ExpirationMins: 15,
//	})
//
//	claims, err := svc.Validate(token)
//	accountID := claims.AccountID()
//
// Parse failures are collapsed onto a small set of sentinel errors
// (ErrInvalidToken, ErrTokenExpired, ErrTokenNotYetValid, ErrInvalidSignature)
// so callers never depend on the underlying library's error types.
package jwt
