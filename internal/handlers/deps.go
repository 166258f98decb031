package handlers

import (
	"log/slog"

	"github.com/GregMSThompson/skiploss-console/internal/response"
)

type Deps struct {
	Log             *slog.Logger
	ResponseHandler response.ResponseHandler
	ConsoleSvc      ConsoleService
	SessionSvc      SessionService
	Events          EventSubscriber
	AllowedOrigins  []string
}
