package router

import (
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/Bruno7kp/gestor-de-obras-sub001/internal/handler"
	notificationHandler "github.com/Bruno7kp/gestor-de-obras-sub001/internal/handler/notification"
	preferenceHandler "github.com/Bruno7kp/gestor-de-obras-sub001/internal/handler/preference"
	"github.com/Bruno7kp/gestor-de-obras-sub001/internal/middleware"
)

type Router struct {
	engine        *gin.Engine
	auth          *middleware.AuthMiddleware
	notifications *notificationHandler.Handler
	preferences   *preferenceHandler.Handler
	db            *sqlx.DB
	logger        *zerolog.Logger
}

func NewRouter(
	auth *middleware.AuthMiddleware,
	notifications *notificationHandler.Handler,
	preferences *preferenceHandler.Handler,
	db *sqlx.DB,
	logger *zerolog.Logger,
) *Router {
	return &Router{
		engine:        gin.New(),
		auth:          auth,
		notifications: notifications,
		preferences:   preferences,
		db:            db,
		logger:        logger,
	}
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}

func (r *Router) Setup() {
	r.engine.Use(middleware.RequestID())
	r.engine.Use(middleware.RequestLogger(r.logger))
	r.engine.Use(middleware.Recovery(r.logger))
	r.engine.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	r.engine.Use(middleware.NewRateLimiter(50, 100).Middleware())

	r.engine.GET("/health", handler.Health(r.db))
	r.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.engine.Group("/api/v1")
	api.Use(r.auth.Authenticate())

	r.notifications.RegisterRoutes(api)
	r.preferences.RegisterRoutes(api)
}
