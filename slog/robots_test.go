package slog_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/fwojciec/crawlkit/mock"
	crawlslog "github.com/fwojciec/crawlkit/slog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggingRobotsChecker_CanFetch(t *testing.T) {
	t.Parallel()

	newChecker := func(allowed bool, buf *bytes.Buffer) *crawlslog.LoggingRobotsChecker {
		inner := &mock.RobotsChecker{
			CanFetchFn: func(ctx context.Context, url, userAgent string) (bool, error) {
				return allowed, nil
			},
		}
		return crawlslog.NewLoggingRobotsChecker(inner, slog.New(slog.NewTextHandler(buf, nil)))
	}

	t.Run("logs denials at info level", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		ok, err := newChecker(false, &buf).CanFetch(context.Background(), "https://example.com/private", "bot")

		require.NoError(t, err)
		assert.False(t, ok)
		assert.Contains(t, buf.String(), "robots check")
		assert.Contains(t, buf.String(), "allowed=false")
		assert.Contains(t, buf.String(), "user_agent=bot")
	})

	t.Run("keeps allowed checks at debug level", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		ok, err := newChecker(true, &buf).CanFetch(context.Background(), "https://example.com/docs", "bot")

		require.NoError(t, err)
		assert.True(t, ok)
		assert.Empty(t, buf.String())
	})
}
