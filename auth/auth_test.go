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

package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudspan/cloudspan/common"
	"github.com/cloudspan/cloudspan/store"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	_, principals, err := store.NewStores(store.Config{Kind: "file", Location: t.TempDir()})
	require.NoError(t, err)
	svc, err := NewService(principals, Config{TokenTTL: time.Hour})
	require.NoError(t, err)
	return svc
}

func TestRegisterLoginValidateRoundTrip(t *testing.T) {
	a := assert.New(t)
	svc := newTestService(t)

	rec, err := svc.Register("alice", "correct horse battery", common.ERole.User())
	a.NoError(err)
	a.Equal("alice", rec.ID)
	a.NotContains(rec.HashedCredential, "correct horse") // never plaintext
	a.True(strings.HasPrefix(rec.HashedCredential, "$2"))

	token, expires, role, err := svc.Login("alice", "correct horse battery")
	a.NoError(err)
	a.Equal(common.ERole.User(), role)
	a.True(expires.After(time.Now()))

	p, err := svc.Validate(token)
	a.NoError(err)
	a.Equal(Principal{ID: "alice", Role: common.ERole.User()}, p)
}

func TestReRegisterConflicts(t *testing.T) {
	a := assert.New(t)
	svc := newTestService(t)

	_, err := svc.Register("alice", "password123", common.ERole.User())
	a.NoError(err)
	_, err = svc.Register("alice", "password123", common.ERole.User())
	a.Equal(common.EErrorCode.Conflict(), common.CodeOf(err))
}

func TestRegisterValidation(t *testing.T) {
	a := assert.New(t)
	svc := newTestService(t)

	_, err := svc.Register("  ", "password123", common.ERole.User())
	a.Equal(common.EErrorCode.InvalidArgument(), common.CodeOf(err))
	_, err = svc.Register("bob", "short", common.ERole.User())
	a.Equal(common.EErrorCode.InvalidArgument(), common.CodeOf(err))
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	a := assert.New(t)
	svc := newTestService(t)
	_, err := svc.Register("alice", "password123", common.ERole.User())
	a.NoError(err)

	_, _, _, errWrongCred := svc.Login("alice", "not the password")
	_, _, _, errNoUser := svc.Login("mallory", "password123")
	a.Equal(common.EErrorCode.Unauthenticated(), common.CodeOf(errWrongCred))
	a.Equal(common.EErrorCode.Unauthenticated(), common.CodeOf(errNoUser))
	a.Equal(errWrongCred.Error(), errNoUser.Error())
}

func TestValidateRejectsGarbageAndForeignSignature(t *testing.T) {
	a := assert.New(t)
	svc := newTestService(t)
	other := newTestService(t) // different ephemeral key

	_, err := svc.Validate("not.a.jwt")
	a.Equal(common.EErrorCode.Unauthenticated(), common.CodeOf(err))

	_, err = other.Register("alice", "password123", common.ERole.Admin())
	a.NoError(err)
	foreign, _, _, err := other.Login("alice", "password123")
	a.NoError(err)
	_, err = svc.Validate(foreign)
	a.Equal(common.EErrorCode.Unauthenticated(), common.CodeOf(err))
}

func TestValidateRejectsExpiredToken(t *testing.T) {
	a := assert.New(t)
	svc := newTestService(t)
	_, err := svc.Register("alice", "password123", common.ERole.User())
	a.NoError(err)

	past := time.Now().Add(-48 * time.Hour)
	svc.WithClock(func() time.Time { return past })
	token, _, _, err := svc.Login("alice", "password123")
	a.NoError(err)

	svc.WithClock(time.Now)
	_, err = svc.Validate(token)
	a.Equal(common.EErrorCode.Unauthenticated(), common.CodeOf(err))
}

func TestRequireGatesByRoleOrder(t *testing.T) {
	a := assert.New(t)

	viewer := Principal{ID: "v", Role: common.ERole.Viewer()}
	user := Principal{ID: "u", Role: common.ERole.User()}
	admin := Principal{ID: "a", Role: common.ERole.Admin()}

	a.NoError(Require(viewer, common.ERole.Viewer()))
	a.Equal(common.EErrorCode.Forbidden(), common.CodeOf(Require(viewer, common.ERole.User())))
	a.NoError(Require(user, common.ERole.User()))
	a.Equal(common.EErrorCode.Forbidden(), common.CodeOf(Require(user, common.ERole.Admin())))
	a.NoError(Require(admin, common.ERole.Admin()))
}
