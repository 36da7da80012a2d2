package v1

import (
	"github.com/labstack/echo/v4"

	"github.com/example/forum-auth/internal/adapters/http/api/v1/handlers"
)

type Router struct {
	handlers *handlers.AuthHandler
	authMW   echo.MiddlewareFunc
}

func NewRouter(h *handlers.AuthHandler, authMW echo.MiddlewareFunc) *Router {
	return &Router{handlers: h, authMW: authMW}
}

func (r *Router) Register(g *echo.Group) {
	auth := g.Group("/auth")
	auth.POST("/registration", r.handlers.Register)
	auth.GET("/email/verify", r.handlers.VerifyEmail)
	auth.POST("/login", r.handlers.Login)
	auth.POST("/registration/kakao", r.handlers.RegisterKakao)
	auth.POST("/login/kakao", r.handlers.LoginKakao)
	auth.POST("/token/refresh", r.handlers.Refresh)
	auth.GET("/kakao/authorize", r.handlers.KakaoAuthorize)
	auth.GET("/kakao/callback", r.handlers.KakaoCallback)

	protected := auth.Group("", r.authMW)
	protected.GET("/me", r.handlers.GetMe)
}
