package token

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndVerify(t *testing.T) {
	m := NewJWTManager("secret", time.Hour)
	raw, err := m.GenerateToken("hr-1", "HR Admin", "hr@acme.test", "acme")
	require.NoError(t, err)

	claims, err := m.VerifyToken(raw)
	require.NoError(t, err)
	require.Equal(t, "hr-1", claims.UserID)
	require.Equal(t, "acme", claims.CompanyID)
	require.Equal(t, "HR Admin", claims.Name)
}

func TestVerifyRejectsBadTokens(t *testing.T) {
	m := NewJWTManager("secret", time.Hour)

	other, err := NewJWTManager("other", time.Hour).GenerateToken("hr-1", "", "", "acme")
	require.NoError(t, err)
	_, err = m.VerifyToken(other)
	require.Error(t, err)

	expired, err := NewJWTManager("secret", -time.Minute).GenerateToken("hr-1", "", "", "acme")
	require.NoError(t, err)
	_, err = m.VerifyToken(expired)
	require.Error(t, err)

	noTenant, err := m.GenerateToken("hr-1", "", "", "")
	require.NoError(t, err)
	_, err = m.VerifyToken(noTenant)
	require.Error(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, CustomClaims{UserID: "hr-1", CompanyID: "acme"}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = m.VerifyToken(none)
	require.Error(t, err)
}
