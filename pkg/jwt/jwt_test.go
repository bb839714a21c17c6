package jwt

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-access-secret-key-for-testing-purposes"

func TestNewService(t *testing.T) {
	service := NewService(testSecret, time.Hour)

	assert.NotNil(t, service)
	assert.Equal(t, testSecret, service.secret)
	assert.Equal(t, time.Hour, service.accessTokenExpiry)
}

func TestGenerateAndValidateAccessToken(t *testing.T) {
	service := NewService(testSecret, time.Hour)
	userID := uuid.New()
	roles := []string{"passenger", "admin"}

	token, err := service.GenerateAccessToken(userID, roles)
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	claims, err := service.ValidateAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, roles, claims.Roles)
	assert.Equal(t, AccessToken, claims.TokenType)
	assert.Equal(t, "smarttransit-ticketing", claims.Issuer)
	assert.Equal(t, userID.String(), claims.Subject)
	assert.True(t, claims.HasRole("admin"))
	assert.False(t, claims.HasRole("operator"))

	_, err = service.ValidateAccessToken("invalid.token.here")
	assert.Error(t, err)

	_, err = NewService("wrong-secret", time.Hour).ValidateAccessToken(token)
	assert.Error(t, err)
}

func TestExpiredToken(t *testing.T) {
	service := NewService(testSecret, -time.Hour)

	token, err := service.GenerateAccessToken(uuid.New(), []string{"passenger"})
	require.NoError(t, err)

	_, err = service.ValidateAccessToken(token)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestTokenTypeMismatch(t *testing.T) {
	service := NewService(testSecret, time.Hour)
	now := time.Now()
	claims := Claims{
		UserID:    uuid.New(),
		TokenType: "refresh",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = service.ValidateAccessToken(token)
	assert.ErrorContains(t, err, "invalid token type")
}

func TestTokenSigningMethod(t *testing.T) {
	service := NewService(testSecret, time.Hour)
	claims := Claims{UserID: uuid.New(), TokenType: AccessToken}
	claims.Issuer = issuer

	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = service.ValidateAccessToken(token)
	assert.Error(t, err)
}

func TestConcurrentTokenGeneration(t *testing.T) {
	service := NewService(testSecret, time.Hour)

	done := make(chan bool)
	errs := make(chan error, 100)

	for i := 0; i < 100; i++ {
		go func() {
			defer func() { done <- true }()
			token, err := service.GenerateAccessToken(uuid.New(), []string{"passenger"})
			if err != nil {
				errs <- err
				return
			}
			if _, err := service.ValidateAccessToken(token); err != nil {
				errs <- err
			}
		}()
	}

	for i := 0; i < 100; i++ {
		<-done
	}
	close(errs)

	for err := range errs {
		t.Errorf("Unexpected error: %v", err)
	}
}
