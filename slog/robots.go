package slog

import (
	"context"
	"log/slog"
	"time"

	"github.com/fwojciec/crawlkit"
)

// Ensure LoggingRobotsChecker implements crawlkit.RobotsChecker.
var _ crawlkit.RobotsChecker = (*LoggingRobotsChecker)(nil)

// LoggingRobotsChecker wraps a RobotsChecker with logging.
type LoggingRobotsChecker struct {
	next   crawlkit.RobotsChecker
	logger *slog.Logger
}

// NewLoggingRobotsChecker creates a new LoggingRobotsChecker.
func NewLoggingRobotsChecker(next crawlkit.RobotsChecker, logger *slog.Logger) *LoggingRobotsChecker {
	return &LoggingRobotsChecker{next: next, logger: logger}
}

// CanFetch delegates to the wrapped checker. Denials are logged at info
// level, everything else at debug.
func (r *LoggingRobotsChecker) CanFetch(ctx context.Context, url, userAgent string) (allowed bool, err error) {
	defer func(begin time.Time) {
		level := slog.LevelDebug
		if !allowed || err != nil {
			level = slog.LevelInfo
		}
		r.logger.Log(ctx, level, "robots check",
			"url", url,
			"user_agent", userAgent,
			"allowed", allowed,
			"duration", time.Since(begin),
			"err", err,
		)
	}(time.Now())
	return r.next.CanFetch(ctx, url, userAgent)
}
