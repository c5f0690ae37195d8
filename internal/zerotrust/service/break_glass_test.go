package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/allisson/keyvault/internal/errors"
	"github.com/allisson/keyvault/internal/settings"
	"github.com/allisson/keyvault/internal/storage/memory"
)

func TestBreakGlassService(t *testing.T) {
	ctx := context.Background()

	t.Run("Success_OneTimeUse", func(t *testing.T) {
		svc := NewBreakGlassService(settings.NewStore(memory.NewStore()))

		issued, err := svc.Issue(ctx, "admin", time.Hour)
		require.NoError(t, err)
		assert.Len(t, issued.Code, breakGlassLength)

		n, err := svc.Outstanding(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		ok, err := svc.Consume(ctx, "WRONGCODE")
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = svc.Consume(ctx, issued.Code)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = svc.Consume(ctx, issued.Code)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Success_ExpiredCodeRejected", func(t *testing.T) {
		svc := NewBreakGlassService(settings.NewStore(memory.NewStore()))
		clock := time.Now().UTC()
		svc.now = func() time.Time { return clock }

		issued, err := svc.Issue(ctx, "admin", time.Minute)
		require.NoError(t, err)

		clock = clock.Add(2 * time.Minute)
		ok, err := svc.Consume(ctx, issued.Code)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Error_InvalidRequest", func(t *testing.T) {
		svc := NewBreakGlassService(settings.NewStore(memory.NewStore()))

		_, err := svc.Issue(ctx, "", time.Hour)
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
		_, err = svc.Issue(ctx, "admin", 0)
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	})
}
