package platform

import (
	"log/slog"

	"github.com/openclaw/ringcentral-bridge/internal/logger"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Config{Level: slog.LevelError, Format: "text"})
}
