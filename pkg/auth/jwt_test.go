package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
)

func TestGenerateAndValidate(t *testing.T) {
	m := NewTokenManager("service-secret", time.Hour)

	token, err := m.Generate("ops-dashboard", RoleAdmin)
	assert.NoError(t, err)
	assert.NotEmpty(t, token)

	claims, err := m.Validate(token)
	assert.NoError(t, err)
	assert.Equal(t, "ops-dashboard", claims.Subject)
	assert.Equal(t, RoleAdmin, claims.Role)
	assert.Equal(t, "notify-api", claims.Issuer)
}

func TestValidateWrongSecret(t *testing.T) {
	issued := NewTokenManager("service-secret", time.Hour)
	other := NewTokenManager("different-secret", time.Hour)

	token, err := issued.Generate("ops-dashboard", RoleViewer)
	assert.NoError(t, err)

	_, err = other.Validate(token)
	assert.Error(t, err)
}

func TestValidateExpiredToken(t *testing.T) {
	m := NewTokenManager("service-secret", time.Nanosecond)

	token, err := m.Generate("ops-dashboard", RoleViewer)
	assert.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	_, err = m.Validate(token)
	assert.Error(t, err)
}

func TestValidateWrongIssuer(t *testing.T) {
	m := NewTokenManager("service-secret", time.Hour)

	// Same secret, foreign issuer.
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "ops-dashboard",
			Issuer:    "some-other-service",
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Role: RoleAdmin,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("service-secret"))
	assert.NoError(t, err)

	_, err = m.Validate(token)
	assert.Error(t, err)
}

func TestValidateGarbageToken(t *testing.T) {
	m := NewTokenManager("service-secret", time.Hour)

	_, err := m.Validate("not.a.token")
	assert.Error(t, err)
}

func TestNewTokenManagerDefaultExpiry(t *testing.T) {
	m := NewTokenManager("service-secret", 0)
	assert.Equal(t, 24*time.Hour, m.expiry)
}
