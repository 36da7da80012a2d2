package http

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/example/forum-auth/config"
	v1 "github.com/example/forum-auth/internal/adapters/http/api/v1"
	internalhttp "github.com/example/forum-auth/internal/adapters/http/internal"
	pkglog "github.com/example/forum-auth/pkg/log"
)

type Router struct {
	cfg       *config.Config
	logger    pkglog.Logger
	apiRouter *v1.Router
}

func NewRouter(cfg *config.Config, logger pkglog.Logger, apiRouter *v1.Router) *Router {
	return &Router{cfg: cfg, logger: logger, apiRouter: apiRouter}
}

func (r *Router) Setup(e *echo.Echo) {
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURIPath:   true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			event := r.logger.Info()
			if v.Error != nil {
				event = r.logger.Error().Err(v.Error)
			}
			event.
				Str("trace_id", v.RequestID).
				Str("method", v.Method).
				Str("path", v.URIPath).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Msg("request")
			return nil
		},
	}))

	internalhttp.Register(e)
	apiGroup := e.Group(r.cfg.HTTPBasePath)
	r.apiRouter.Register(apiGroup)
}
