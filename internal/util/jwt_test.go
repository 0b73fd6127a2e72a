package util

import (
	"course_eval_backend/internal/model"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "unit-test-secret"

func TestJWTRoundTrip(t *testing.T) {
	user := &model.User{Email: "t@example.edu", Role: model.RoleTeacher}
	user.ID = 7

	token, err := GenerateJWT(user, testSecret, time.Hour)
	require.NoError(t, err)

	claims, err := ParseJWT(token, testSecret)
	require.NoError(t, err)
	assert.Equal(t, uint(7), claims.UserID)
	assert.Equal(t, model.RoleTeacher, claims.Role)
	assert.Equal(t, "t@example.edu", claims.Email)

	_, err = ParseJWT(token, "other-secret")
	assert.Error(t, err)
}

func TestParseJWTRejects(t *testing.T) {
	user := &model.User{Role: model.RoleStudent}
	user.ID = 1

	expired, err := GenerateJWT(user, testSecret, -time.Minute)
	require.NoError(t, err)
	_, err = ParseJWT(expired, testSecret)
	assert.Error(t, err)

	// 未知角色
	forged := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		UserID:           1,
		Role:             model.Role("root"),
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	})
	signed, err := forged.SignedString([]byte(testSecret))
	require.NoError(t, err)
	_, err = ParseJWT(signed, testSecret)
	assert.EqualError(t, err, "invalid role claim")

	// 非 HS256 签名
	none := jwt.NewWithClaims(jwt.SigningMethodHS512, &Claims{UserID: 1, Role: model.RoleStudent})
	signed, err = none.SignedString([]byte(testSecret))
	require.NoError(t, err)
	_, err = ParseJWT(signed, testSecret)
	assert.Error(t, err)
}

func TestPrincipalIs(t *testing.T) {
	p := &Principal{UserID: 1, Role: model.RoleTeacher}
	assert.True(t, p.Is(model.RoleStudent, model.RoleTeacher))
	assert.False(t, p.Is(model.RoleAdmin))
}
