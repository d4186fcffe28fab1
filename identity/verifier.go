// Package identity verifies externally issued ID tokens and maps them onto
// local user records.
package identity

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"teamcollab/config"
)

var (
	ErrMissingEmail = errors.New("token has no email claim")
	ErrUnknownKey   = errors.New("token signed with an unknown key")
)

// Identity is what the identity provider vouches for.
type Identity struct {
	Subject string
	Email   string
	Name    string
}

// Verifier checks a bearer credential with the identity provider.
type Verifier interface {
	Verify(ctx context.Context, token string) (*Identity, error)
}

type tokenClaims struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Metadata struct {
		FullName string `json:"full_name"`
		Name     string `json:"name"`
	} `json:"user_metadata"`
	jwt.RegisteredClaims
}

func (c *tokenClaims) displayName() string {
	for _, n := range []string{c.Name, c.Metadata.FullName, c.Metadata.Name} {
		if n = strings.TrimSpace(n); n != "" {
			return n
		}
	}
	return ""
}

// JWTVerifier validates ID tokens signed either with a shared HS256 secret or
// with RS256 keys selected by the kid header.
type JWTVerifier struct {
	secret []byte
	keys   map[string]*rsa.PublicKey
	parser *jwt.Parser
}

// NewJWTVerifier builds a verifier from the identity configuration. When a
// public keys file is configured RS256 is expected, otherwise HS256.
func NewJWTVerifier(cfg config.IdentityConfig) (*JWTVerifier, error) {
	v := &JWTVerifier{}
	methods := []string{jwt.SigningMethodHS256.Alg()}

	if cfg.PublicKeysFile != "" {
		keys, err := LoadPublicKeys(cfg.PublicKeysFile)
		if err != nil {
			return nil, err
		}
		v.keys = keys
		methods = []string{jwt.SigningMethodRS256.Alg()}
	} else if cfg.JWTSecret != "" {
		v.secret = []byte(cfg.JWTSecret)
	} else {
		return nil, errors.New("identity: no secret or public keys configured")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods(methods),
		jwt.WithExpirationRequired(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	v.parser = jwt.NewParser(opts...)
	return v, nil
}

// LoadPublicKeys reads a JSON object mapping key ids to PEM encoded RSA
// public keys or X.509 certificates.
func LoadPublicKeys(path string) (map[string]*rsa.PublicKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("identity: read public keys: %w", err)
	}
	var pems map[string]string
	if err := json.Unmarshal(raw, &pems); err != nil {
		return nil, fmt.Errorf("identity: decode public keys: %w", err)
	}
	if len(pems) == 0 {
		return nil, errors.New("identity: public keys file is empty")
	}

	keys := make(map[string]*rsa.PublicKey, len(pems))
	for kid, p := range pems {
		key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(p))
		if err != nil {
			return nil, fmt.Errorf("identity: key %s: %w", kid, err)
		}
		keys[kid] = key
	}
	return keys, nil
}

func (v *JWTVerifier) keyFunc(token *jwt.Token) (interface{}, error) {
	if v.keys == nil {
		return v.secret, nil
	}
	kid, _ := token.Header["kid"].(string)
	if key, ok := v.keys[kid]; ok {
		return key, nil
	}
	if kid == "" && len(v.keys) == 1 {
		for _, key := range v.keys {
			return key, nil
		}
	}
	return nil, ErrUnknownKey
}

// Verify parses and validates token. The email claim is required.
func (v *JWTVerifier) Verify(_ context.Context, token string) (*Identity, error) {
	claims := &tokenClaims{}
	if _, err := v.parser.ParseWithClaims(token, claims, v.keyFunc); err != nil {
		return nil, err
	}

	email := strings.ToLower(strings.TrimSpace(claims.Email))
	if email == "" {
		return nil, ErrMissingEmail
	}
	return &Identity{
		Subject: claims.Subject,
		Email:   email,
		Name:    claims.displayName(),
	}, nil
}
