package util

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-for-jwt-testing"

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return token
}

func TestInspectToken(t *testing.T) {
	exp := time.Now().Add(15 * time.Minute).Truncate(time.Second)

	tests := []struct {
		name    string
		claims  jwt.MapClaims
		subject string
		role    string
	}{
		{
			name:    "Subject claim",
			claims:  jwt.MapClaims{"sub": "user-1", "email": "test@example.com", "role": "user", "exp": exp.Unix()},
			subject: "user-1",
			role:    "user",
		},
		{
			name:    "Legacy user_id claim",
			claims:  jwt.MapClaims{"user_id": 42, "role": "admin", "exp": exp.Unix()},
			subject: "42",
			role:    "admin",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := InspectToken(signToken(t, tt.claims))
			require.NoError(t, err)
			assert.Equal(t, tt.subject, claims.Subject)
			assert.Equal(t, tt.role, claims.Role)
			assert.True(t, exp.Equal(claims.ExpiresAt))
		})
	}
}

func TestInspectToken_Malformed(t *testing.T) {
	_, err := InspectToken("invalid.jwt.token")
	assert.ErrorIs(t, err, ErrMalformedToken)

	_, err = InspectToken("")
	assert.ErrorIs(t, err, ErrMalformedToken)
}

func TestTokenExpired(t *testing.T) {
	now := time.Now()

	live := signToken(t, jwt.MapClaims{"sub": "u", "exp": now.Add(time.Hour).Unix()})
	assert.False(t, TokenExpired(live, now))

	expired := signToken(t, jwt.MapClaims{"sub": "u", "exp": now.Add(-time.Hour).Unix()})
	assert.True(t, TokenExpired(expired, now))

	noExp := signToken(t, jwt.MapClaims{"sub": "u"})
	assert.False(t, TokenExpired(noExp, now))

	// opaque tokens are left to the storefront
	assert.False(t, TokenExpired("opaque-session-token", now))
}

func TestSessionID(t *testing.T) {
	id := NewSessionID()
	assert.True(t, ValidSessionID(id))
	assert.NotEqual(t, id, NewSessionID())
	assert.False(t, ValidSessionID("not-a-session"))
	assert.False(t, ValidSessionID(""))
}
