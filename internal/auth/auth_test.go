package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func signClaims(t *testing.T, secret string, claims Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func mustToken(t *testing.T, v *JWTVerifier, claims Claims) string {
	t.Helper()
	token, _, err := v.GenerateToken(claims)
	require.NoError(t, err)
	return token
}

func TestJWTVerifier(t *testing.T) {
	v := NewJWTVerifier(testSecret, time.Hour)

	t.Run("round_trip", func(t *testing.T) {
		token, expiresAt, err := v.GenerateToken(Claims{UserID: "u1", Role: "user"})
		require.NoError(t, err)
		assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, time.Minute)

		claims, err := v.Verify(token)
		require.NoError(t, err)
		assert.Equal(t, "u1", claims.UserID)
		assert.Equal(t, "user", claims.Role)
	})

	t.Run("bearer_prefix", func(t *testing.T) {
		token := mustToken(t, v, Claims{NodeID: "n1"})
		claims, err := v.Verify("Bearer " + token)
		require.NoError(t, err)
		assert.Equal(t, "n1", claims.NodeID)
	})

	t.Run("wrong_secret", func(t *testing.T) {
		token := signClaims(t, "other-secret", Claims{
			UserID:           "u1",
			RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
		})
		_, err := v.Verify(token)
		assert.Error(t, err)
	})

	t.Run("expired", func(t *testing.T) {
		token := signClaims(t, testSecret, Claims{
			UserID:           "u1",
			RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute))},
		})
		_, err := v.Verify(token)
		assert.ErrorIs(t, err, jwt.ErrTokenExpired)
	})

	t.Run("missing_expiry", func(t *testing.T) {
		token := signClaims(t, testSecret, Claims{UserID: "u1"})
		_, err := v.Verify(token)
		assert.Error(t, err)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := v.Verify("not-a-token")
		assert.Error(t, err)
	})

	t.Run("empty", func(t *testing.T) {
		_, err := v.Verify("")
		assert.Error(t, err)
	})

	t.Run("generate_requires_subject", func(t *testing.T) {
		_, _, err := v.GenerateToken(Claims{Role: "admin"})
		assert.Error(t, err)
	})
}

func TestGateAuthenticate(t *testing.T) {
	v := NewJWTVerifier(testSecret, time.Hour)
	gate := NewGate(v, []string{"admin", "operator"})

	userToken := mustToken(t, v, Claims{UserID: "u1"})
	nodeToken := mustToken(t, v, Claims{NodeID: "n1"})
	adminToken := mustToken(t, v, Claims{UserID: "ops", Role: "operator"})
	noRoleToken := mustToken(t, v, Claims{UserID: "u2"})

	tests := []struct {
		name      string
		token     string
		kind      string
		want      *Identity
		wantError error
	}{
		{
			name:  "user",
			token: userToken,
			kind:  "user",
			want:  &Identity{Kind: KindUser, SubjectID: "u1", Role: "user"},
		},
		{
			name:  "node",
			token: nodeToken,
			kind:  "node",
			want:  &Identity{Kind: KindNode, SubjectID: "n1", Role: "node"},
		},
		{
			name:  "admin via configured role",
			token: adminToken,
			kind:  "admin",
			want:  &Identity{Kind: KindAdmin, SubjectID: "ops", Role: RoleAdmin},
		},
		{
			name:  "user with admin role keeps user kind",
			token: adminToken,
			kind:  "user",
			want:  &Identity{Kind: KindUser, SubjectID: "ops", Role: RoleAdmin},
		},
		{
			name:      "user kind without userId",
			token:     nodeToken,
			kind:      "user",
			wantError: ErrTokenInvalid,
		},
		{
			name:      "node kind without nodeId",
			token:     userToken,
			kind:      "node",
			wantError: ErrTokenInvalid,
		},
		{
			name:      "admin without role claim",
			token:     noRoleToken,
			kind:      "admin",
			wantError: ErrInsufficientPermissions,
		},
		{
			name:      "invalid token",
			token:     "garbage",
			kind:      "user",
			wantError: ErrTokenInvalid,
		},
		{
			name:      "empty token",
			token:     "",
			kind:      "user",
			wantError: ErrTokenInvalid,
		},
		{
			name:      "unsupported kind",
			token:     userToken,
			kind:      "anonymous",
			wantError: ErrTokenInvalid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := gate.Authenticate(tt.token, tt.kind)
			if tt.wantError != nil {
				assert.ErrorIs(t, err, tt.wantError)
				assert.Nil(t, id)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, id)
		})
	}
}

func TestIdentity(t *testing.T) {
	assert.Equal(t, KindAnonymous, Anonymous().Kind)
	assert.False(t, Anonymous().IsAdmin())

	user := &Identity{Kind: KindUser, SubjectID: "u1", Role: "user"}
	assert.True(t, user.Owns(KindUser, "u1"))
	assert.False(t, user.Owns(KindUser, "u2"))
	assert.False(t, user.Owns(KindNode, "u1"))
	assert.False(t, user.Owns(KindUser, ""))

	assert.True(t, (&Identity{Kind: KindAdmin}).IsAdmin())
	assert.True(t, (&Identity{Kind: KindUser, Role: RoleAdmin}).IsAdmin())

	var nilID *Identity
	assert.False(t, nilID.IsAdmin())
}

func TestParseKind(t *testing.T) {
	k, ok := ParseKind(" Admin ")
	assert.True(t, ok)
	assert.Equal(t, KindAdmin, k)

	_, ok = ParseKind("anonymous")
	assert.False(t, ok)
}
