package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/watch-party/relay/api/handlers"
	"github.com/watch-party/relay/internal/session"
	"github.com/watch-party/relay/internal/ws"
)

type routerDeps struct {
	sessions       *session.Manager
	service        *ws.Service
	events         handlers.EventLister
	allowedOrigins []string
	logger         zerolog.Logger
}

func newRouter(deps routerDeps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(handlers.RequestLogger(deps.logger))
	r.Use(handlers.CORS(deps.allowedOrigins))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
		})
	})

	r.GET("/stats", func(c *gin.Context) {
		active, connections := deps.service.Registry().Stats()
		c.JSON(http.StatusOK, gin.H{
			"sessions":        deps.sessions.Count(),
			"active_sessions": active,
			"connections":     connections,
		})
	})

	sessionHandler := handlers.NewSessionHandler(deps.sessions, deps.service.Registry(), deps.events, deps.logger)
	wsHandler := handlers.NewWebSocketHandler(deps.sessions, deps.service.Handler(), deps.logger)

	root := r.Group("")
	sessionHandler.RegisterRoutes(root)
	wsHandler.RegisterRoutes(root)

	return r
}
