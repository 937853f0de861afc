package authz

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"

	"github.com/golang-jwt/jwt/v5"

	vsserrors "vssbroker/internal/shared/errors"
)

// Claims are the bearer-token payload fields this broker understands, per
// spec.md §6: a standard `exp`, an optional `kuksa-vss` path-pattern scope
// map, and an optional `modifyTree` flag.
type Claims struct {
	Scope      map[string]string `json:"kuksa-vss"`
	ModifyTree bool              `json:"modifyTree"`
	jwt.RegisteredClaims
}

// TokenVerifier verifies RS256-signed bearer tokens against a configured
// public key, grounded on the teacher's auth.JWTService.Verify generalized
// from HS256/user claims to RS256/kuksa-vss scope claims.
type TokenVerifier struct {
	publicKey *rsa.PublicKey
}

// NewTokenVerifier builds a TokenVerifier from a PEM-encoded RSA public key.
func NewTokenVerifier(publicKeyPEM []byte) (*TokenVerifier, error) {
	block, _ := pem.Decode(publicKeyPEM)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found in public key")
	}

	if pub, err := x509.ParsePKIXPublicKey(block.Bytes); err == nil {
		rsaPub, ok := pub.(*rsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("public key is not an RSA key")
		}
		return &TokenVerifier{publicKey: rsaPub}, nil
	}

	cert, err := x509.ParseCertificate(block.Bytes)
	if err == nil {
		rsaPub, ok := cert.PublicKey.(*rsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("certificate public key is not an RSA key")
		}
		return &TokenVerifier{publicKey: rsaPub}, nil
	}

	return nil, fmt.Errorf("failed to parse RSA public key: %w", err)
}

// LoadTokenVerifier reads a PEM-encoded RSA public key from path and
// builds a TokenVerifier. A missing or unreadable key file is a fatal
// startup event per spec.md §7.
func LoadTokenVerifier(path string) (*TokenVerifier, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read JWT public key %s: %w", path, err)
	}
	return NewTokenVerifier(data)
}

// Verify parses and validates tokenString, rejecting tokens with a bad
// signature, unsupported algorithm, or an `exp` in the past.
func (v *TokenVerifier) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.publicKey, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, vsserrors.NewTokenExpiredErrorVSS("token exp has passed")
		}
		return nil, vsserrors.NewTokenInvalidErrorVSS(err.Error())
	}
	if !token.Valid {
		return nil, vsserrors.NewTokenInvalidErrorVSS("token failed validation")
	}
	return claims, nil
}
