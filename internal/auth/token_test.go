package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validClaims(exp time.Time) Claims {
	return Claims{
		Sub:   "usr_1",
		Name:  "Avery",
		Email: "avery@moai.test",
		JTI:   "jti-1",
		Exp:   exp.Unix(),
	}
}

func TestIssueAndParseToken(t *testing.T) {
	secret := []byte("secret")
	issued, err := IssueToken(secret, validClaims(time.Now().Add(time.Hour)))
	require.NoError(t, err)

	claims, err := ParseToken(secret, issued)
	require.NoError(t, err)
	assert.Equal(t, "usr_1", claims.Sub)
	assert.Equal(t, "avery@moai.test", claims.Email)
}

func TestParseTokenRejectsExpired(t *testing.T) {
	secret := []byte("secret")
	issued, err := IssueToken(secret, validClaims(time.Now().Add(-time.Minute)))
	require.NoError(t, err)

	_, err = ParseToken(secret, issued)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestParseTokenRejectsTampering(t *testing.T) {
	issued, err := IssueToken([]byte("secret"), validClaims(time.Now().Add(time.Hour)))
	require.NoError(t, err)

	_, err = ParseToken([]byte("other"), issued)
	assert.ErrorIs(t, err, ErrInvalidToken)

	parts := strings.Split(issued, ".")
	require.Len(t, parts, 3)
	_, err = ParseToken([]byte("secret"), parts[0]+"."+parts[1]+"x."+parts[2])
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = ParseToken([]byte("secret"), "garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseTokenRejectsMissingSubject(t *testing.T) {
	claims := validClaims(time.Now().Add(time.Hour))
	claims.Sub = ""
	issued, err := IssueToken([]byte("secret"), claims)
	require.NoError(t, err)

	_, err = ParseToken([]byte("secret"), issued)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestHashTokenIsStable(t *testing.T) {
	assert.Equal(t, HashToken("abc"), HashToken("abc"))
	assert.Len(t, HashToken("abc"), 64)
}
