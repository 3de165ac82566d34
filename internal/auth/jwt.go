package auth

import (
	"crypto/subtle"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Role decides which routes a token may call.
type Role string

const (
	// RoleOperator manages the roster, enrollment and attendance.
	RoleOperator Role = "operator"
	// RoleDevice is a classroom camera; it may only submit recognitions.
	RoleDevice Role = "device"
)

var (
	ErrInvalidCredentials = errors.New("invalid client credentials")
	ErrInvalidToken       = errors.New("invalid token")
)

// Token is a signed access token.
type Token struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
	Role        Role      `json:"role"`
}

// Claims represents JWT payload.
type Claims struct {
	Role Role `json:"role"`
	jwt.RegisteredClaims
}

// Issue signs an access token for subject with role.
func Issue(subject string, role Role, issuer, key string, ttl time.Duration) (Token, error) {
	now := time.Now()
	exp := now.Add(ttl)
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
	if err != nil {
		return Token{}, err
	}
	return Token{AccessToken: signed, ExpiresAt: exp, Role: role}, nil
}

// Parse validates a token and returns claims.
func Parse(tokenStr, key, issuer string) (Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return []byte(key), nil
	}, opts...)
	if err != nil {
		return Claims{}, errors.Join(ErrInvalidToken, err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Claims{}, ErrInvalidToken
	}
	return *claims, nil
}

// Issuer exchanges a shared client secret for a role token.
type Issuer struct {
	Name    string
	Key     string
	TTL     time.Duration
	secrets map[Role]string
}

// NewIssuer configures the secrets per role. Roles with an empty secret
// cannot obtain tokens.
func NewIssuer(name, key string, ttl time.Duration, operatorSecret, deviceSecret string) *Issuer {
	return &Issuer{
		Name: name,
		Key:  key,
		TTL:  ttl,
		secrets: map[Role]string{
			RoleOperator: operatorSecret,
			RoleDevice:   deviceSecret,
		},
	}
}

// Exchange checks secret against the role's configured secret.
func (i *Issuer) Exchange(clientID string, role Role, secret string) (Token, error) {
	want, ok := i.secrets[role]
	if !ok || want == "" || clientID == "" {
		return Token{}, ErrInvalidCredentials
	}
	if subtle.ConstantTimeCompare([]byte(want), []byte(secret)) != 1 {
		return Token{}, ErrInvalidCredentials
	}
	return Issue(clientID, role, i.Name, i.Key, i.TTL)
}
