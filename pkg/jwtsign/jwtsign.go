// Package jwtsign builds the RS256-signed JSON Web Token Zello's "logon"
// control message requires for authenticated channel connections.
package jwtsign

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/openfne/zello-gateway/pkg/gatewayerr"
)

// Signer issues short-lived RS256 tokens for a fixed Zello issuer/key pair.
type Signer struct {
	key    *rsa.PrivateKey
	issuer string
	ttl    time.Duration
}

// NewFromPEM builds a Signer from a PKCS#1 or PKCS#8 RSA private key in PEM
// form, the Zello issuer string assigned to the API client, and the token
// lifetime to stamp into each issued JWT.
func NewFromPEM(pemData []byte, issuer string, ttl time.Duration) (*Signer, error) {
	block, _ := pem.Decode(pemData)
	if block == nil {
		return nil, gatewayerr.AuthErr("jwtsign.NewFromPEM", errNoPEMBlock)
	}

	key, err := parseRSAKey(block.Bytes)
	if err != nil {
		return nil, gatewayerr.AuthErr("jwtsign.NewFromPEM", err)
	}

	if ttl <= 0 {
		ttl = 60 * time.Second
	}

	return &Signer{key: key, issuer: issuer, ttl: ttl}, nil
}

func parseRSAKey(der []byte) (*rsa.PrivateKey, error) {
	if key, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return key, nil
	}
	keyAny, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, err
	}
	rsaKey, ok := keyAny.(*rsa.PrivateKey)
	if !ok {
		return nil, errNotRSAKey
	}
	return rsaKey, nil
}

// Sign issues a fresh token authorizing the given Zello username, with "iat"
// and "exp" claims set relative to now.
func (s *Signer) Sign(username string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"iss": s.issuer,
		"iat": now.Unix(),
		"exp": now.Add(s.ttl).Unix(),
	}
	if username != "" {
		claims["sub"] = username
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signed, err := token.SignedString(s.key)
	if err != nil {
		return "", gatewayerr.AuthErr("jwtsign.Sign", err)
	}
	return signed, nil
}

type signError string

func (e signError) Error() string { return string(e) }

const (
	errNoPEMBlock signError = "jwtsign: no PEM block found in key data"
	errNotRSAKey  signError = "jwtsign: key is not an RSA private key"
)
