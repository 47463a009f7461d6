// Copyright © 2024 CloudSpan <oss@cloudspan.dev>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

// Package auth issues and validates the credentials guarding the control
// plane. Credentials are bcrypt-hashed at rest; bearer tokens are HS256 JWTs
// carrying the principal id and role with an absolute expiry.
package auth

import (
	"crypto/rand"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/cloudspan/cloudspan/common"
	"github.com/cloudspan/cloudspan/store"
)

// Principal is the authenticated identity a validated token resolves to.
type Principal struct {
	ID   string
	Role common.Role
}

type Config struct {
	TokenTTL       time.Duration
	SigningKeyFile string // empty means an ephemeral key; tokens die with the process
}

type Service struct {
	principals store.PrincipalStore
	key        []byte
	ttl        time.Duration
	now        func() time.Time
}

func NewService(principals store.PrincipalStore, cfg Config) (*Service, error) {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 24 * time.Hour
	}
	key, err := signingKey(cfg.SigningKeyFile)
	if err != nil {
		return nil, err
	}
	return &Service{principals: principals, key: key, ttl: cfg.TokenTTL, now: time.Now}, nil
}

// WithClock pins the service's idea of "now"; tests use it to mint expired tokens.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// AnyPrincipals reports whether at least one principal exists. The registration
// endpoint uses it to allow exactly one bootstrap admin on an empty store.
func (s *Service) AnyPrincipals() (bool, error) {
	recs, err := s.principals.ListPrincipals()
	if err != nil {
		return false, err
	}
	return len(recs) > 0, nil
}

func signingKey(path string) ([]byte, error) {
	if path == "" {
		key := make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, common.WrapCloudError(common.EErrorCode.Internal(), "signing_key", err)
		}
		return key, nil
	}
	key, err := os.ReadFile(path)
	if err != nil {
		return nil, common.WrapCloudError(common.EErrorCode.InvalidArgument(), "signing_key", err)
	}
	if len(key) < 32 {
		return nil, common.NewCloudError(common.EErrorCode.InvalidArgument(), "signing_key",
			"signing key must be at least 32 bytes")
	}
	return key, nil
}

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

// Register stores a new principal with a bcrypt hash of the credential. The
// plaintext credential is never stored, logged, or echoed back. Registering an
// existing id fails with CONFLICT.
func (s *Service) Register(id, credential string, role common.Role) (store.PrincipalRecord, error) {
	if strings.TrimSpace(id) == "" {
		return store.PrincipalRecord{}, common.NewCloudError(common.EErrorCode.InvalidArgument(),
			"register", "principal id must not be empty")
	}
	if len(credential) < 8 {
		return store.PrincipalRecord{}, common.NewCloudError(common.EErrorCode.InvalidArgument(),
			"register", "credential must be at least 8 characters")
	}
	if _, err := s.principals.GetPrincipal(id); err == nil {
		return store.PrincipalRecord{}, common.NewCloudError(common.EErrorCode.Conflict(),
			"register", "principal already exists")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(credential), bcrypt.DefaultCost)
	if err != nil {
		return store.PrincipalRecord{}, common.WrapCloudError(common.EErrorCode.Internal(), "register", err)
	}
	rec := store.PrincipalRecord{
		ID:               id,
		Role:             role,
		HashedCredential: string(hash),
		CreatedAt:        s.now().UTC(),
	}
	if err := s.principals.PutPrincipal(rec); err != nil {
		return store.PrincipalRecord{}, err
	}
	return rec, nil
}

// Login verifies the credential against the stored hash and mints a bearer
// token. A wrong credential and an unknown principal are indistinguishable to
// the caller.
func (s *Service) Login(id, credential string) (token string, expires time.Time, role common.Role, err error) {
	fail := func() (string, time.Time, common.Role, error) {
		return "", time.Time{}, common.ERole.Viewer(), common.NewCloudError(
			common.EErrorCode.Unauthenticated(), "login", "unknown principal or wrong credential")
	}
	rec, getErr := s.principals.GetPrincipal(id)
	if getErr != nil {
		return fail()
	}
	if bcrypt.CompareHashAndPassword([]byte(rec.HashedCredential), []byte(credential)) != nil {
		return fail()
	}

	now := s.now().UTC()
	expires = now.Add(s.ttl)
	claims := jwt.MapClaims{
		"sub":  rec.ID,
		"role": strings.ToLower(rec.Role.String()),
		"iat":  now.Unix(),
		"exp":  expires.Unix(),
		"iss":  "cloudspan",
	}
	token, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", time.Time{}, common.ERole.Viewer(),
			common.WrapCloudError(common.EErrorCode.Internal(), "login", err)
	}
	return token, expires, rec.Role, nil
}

// Validate parses the bearer token and returns the principal it proves.
// Expired, malformed, and mis-signed tokens all come back UNAUTHENTICATED.
func (s *Service) Validate(token string) (Principal, error) {
	unauthenticated := func(msg string) (Principal, error) {
		return Principal{}, common.NewCloudError(common.EErrorCode.Unauthenticated(), "validate", msg)
	}
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, common.NewCloudError(common.EErrorCode.Unauthenticated(), "validate",
				"unexpected signing method")
		}
		return s.key, nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithTimeFunc(s.now))
	if err != nil || !parsed.Valid {
		return unauthenticated("invalid or expired token")
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return unauthenticated("malformed claims")
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return unauthenticated("token has no subject")
	}
	roleStr, _ := claims["role"].(string)
	var role common.Role
	if err := role.Parse(roleStr); err != nil {
		return unauthenticated("token has no usable role")
	}
	return Principal{ID: sub, Role: role}, nil
}

// Require gates one control-plane operation: the principal must hold at least
// min. FORBIDDEN, not UNAUTHENTICATED, because the identity itself was fine.
func Require(p Principal, min common.Role) error {
	if !p.Role.AtLeast(min) {
		return common.NewCloudError(common.EErrorCode.Forbidden(), "require",
			"operation requires the "+strings.ToLower(min.String())+" role")
	}
	return nil
}
