package auth

import (
	"fmt"
	"time"
)

// dummyHash is verified when the username is unknown so that a failed
// login takes the same time either way.
const dummyHash = "$argon2id$v=19$m=65536,t=3,p=1$cmFpbGxvZ2ljLWR1bW15$Qd3mKj5u7xNwq5zWJq6bqT2ytF3w9rXnq3l8bB0QeZI"

// Authenticator checks operator credentials and issues access tokens.
type Authenticator struct {
	operators map[string]Operator
	secret    string
	ttl       time.Duration
	now       func() time.Time
}

// NewAuthenticator creates an authenticator for a fixed set of operators.
//
// Returns:
//   - ErrNoSecret if secret is empty
//   - ErrInvalidOperator for a bad username, an unknown role or a duplicate
func NewAuthenticator(operators []Operator, secret string, ttl time.Duration) (*Authenticator, error) {
	if secret == "" {
		return nil, ErrNoSecret
	}
	a := &Authenticator{
		operators: make(map[string]Operator, len(operators)),
		secret:    secret,
		ttl:       ttl,
		now:       time.Now,
	}
	for _, op := range operators {
		if !IsValidUsername(op.Username) {
			return nil, fmt.Errorf("%w: username %q", ErrInvalidOperator, op.Username)
		}
		if !IsValidRole(op.Role) {
			return nil, fmt.Errorf("%w: %s has role %q", ErrInvalidOperator, op.Username, op.Role)
		}
		if _, dup := a.operators[op.Username]; dup {
			return nil, fmt.Errorf("%w: duplicate %s", ErrInvalidOperator, op.Username)
		}
		a.operators[op.Username] = op
	}
	return a, nil
}

// Login verifies a username and password and returns a signed access
// token together with its expiry.
func (a *Authenticator) Login(username, password string) (string, time.Time, Operator, error) {
	op, known := a.operators[username]
	hash := op.PasswordHash
	if !known {
		hash = dummyHash
	}

	ok, err := VerifyPassword(password, hash)
	if err != nil || !ok || !known {
		return "", time.Time{}, Operator{}, ErrInvalidCredentials
	}

	now := a.now()
	token, err := GenerateAccessToken(op, a.secret, a.ttl, now)
	if err != nil {
		return "", time.Time{}, Operator{}, err
	}
	return token, now.Add(a.effectiveTTL()), op, nil
}

// Verify parses an access token issued by Login. A token whose subject
// is no longer configured is rejected.
func (a *Authenticator) Verify(token string) (*CustomClaims, error) {
	claims, err := ParseToken(token, a.secret)
	if err != nil {
		return nil, err
	}
	op, ok := a.operators[claims.Subject]
	if !ok {
		return nil, fmt.Errorf("%w: unknown operator %s", ErrTokenInvalid, claims.Subject)
	}
	// Role changes in config take effect on the next request.
	claims.Role = op.Role
	return claims, nil
}

func (a *Authenticator) effectiveTTL() time.Duration {
	if a.ttl <= 0 {
		return defaultTokenTTL
	}
	return a.ttl
}
