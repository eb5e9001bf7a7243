package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clippy-oss/homie/convo-engine/internal/apperr"
	"github.com/clippy-oss/homie/convo-engine/internal/auth"
)

func TestIssueAndVerify(t *testing.T) {
	a := auth.New("s3cret", time.Hour)

	token, err := a.Issue("alice")
	require.NoError(t, err)

	userID, err := a.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", userID)

	userID, err = a.Verify("Bearer " + token)
	require.NoError(t, err)
	assert.Equal(t, "alice", userID)
}

func TestVerifyRejects(t *testing.T) {
	a := auth.New("s3cret", time.Hour)
	other, err := auth.New("different", time.Hour).Issue("alice")
	require.NoError(t, err)
	expired, err := auth.New("s3cret", time.Nanosecond).Issue("alice")
	require.NoError(t, err)
	time.Sleep(time.Millisecond)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Subject: "alice"})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not-a-token"},
		{"wrong secret", other},
		{"expired", expired},
		{"unsigned", unsigned},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := a.Verify(tt.token)
			require.Error(t, err)
			assert.True(t, apperr.Is(err, apperr.CodeUnauthorized))
		})
	}
}

func TestIssueRequiresUser(t *testing.T) {
	_, err := auth.New("s3cret", time.Hour).Issue("")
	assert.True(t, apperr.Is(err, apperr.CodeInvalidArgument))
}

func TestContext(t *testing.T) {
	_, ok := auth.UserFrom(context.Background())
	assert.False(t, ok)

	userID, ok := auth.UserFrom(auth.WithUser(context.Background(), "bob"))
	assert.True(t, ok)
	assert.Equal(t, "bob", userID)
}
