package crypto

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHMAC_RoundTrip(t *testing.T) {
	svc := NewJWTService("s3cret")
	ctx := context.Background()

	token, err := svc.GenerateTokenHMAC(ctx, "HS256", map[string]interface{}{"job_id": "abc"})
	require.NoError(t, err)

	ok, err := svc.VerifyTokenHMAC(ctx, token, "HS256")
	require.NoError(t, err)
	assert.True(t, ok)

	claims, err := svc.DecodeTokenPayload(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "abc", claims["job_id"])
	assert.Contains(t, claims, "exp")
}

func TestHMAC_WrongSecret(t *testing.T) {
	ctx := context.Background()
	token, err := NewJWTService("one").GenerateTokenHMAC(ctx, "HS256", map[string]interface{}{})
	require.NoError(t, err)

	ok, err := NewJWTService("two").VerifyTokenHMAC(ctx, token, "HS256")
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestHMAC_Expired(t *testing.T) {
	svc := NewJWTService("s3cret")
	ctx := context.Background()
	token, err := svc.GenerateTokenHMAC(ctx, "HS256", map[string]interface{}{
		"exp": time.Now().Add(-time.Minute).Unix(),
	})
	require.NoError(t, err)

	ok, err := svc.VerifyTokenHMAC(ctx, token, "HS256")
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestGenerate_RejectsNonHMAC(t *testing.T) {
	_, err := NewJWTService("x").GenerateTokenHMAC(context.Background(), "RS256", nil)
	assert.Error(t, err)

	_, err = NewJWTService("x").DecodeTokenPayload(context.Background(), "not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
