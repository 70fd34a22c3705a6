// Package http exposes the signalling websocket and the read-only REST
// surface the client uses for backlog and member lists.
package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Parley/internal/adapters/api"
	"github.com/dkeye/Parley/internal/adapters/signal"
	"github.com/dkeye/Parley/internal/app"
	"github.com/dkeye/Parley/internal/app/orch"
	"github.com/dkeye/Parley/internal/config"
)

const (
	sessionName = "ParleySessions"
	tokenKey    = "token"
	maxBacklog  = 500
)

// AuthMiddleware resolves the bearer token, or the one remembered in the
// session cookie, to a domain.User stored under signal.UserKey.
func AuthMiddleware(auth app.Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" {
			token, _ = session.Get(tokenKey).(string)
		}

		user, err := auth.Authenticate(token)
		if err != nil {
			log.Warn().Str("module", "adapters.http").Str("path", c.FullPath()).Msg("unauthorized")
			c.AbortWithStatusJSON(http.StatusUnauthorized, api.ErrorResponse{Error: "unauthorized"})
			return
		}

		if stored, _ := session.Get(tokenKey).(string); stored != token {
			session.Set(tokenKey, token)
			if err := session.Save(); err != nil {
				log.Error().Err(err).Str("module", "adapters.http").Msg("session save")
			}
		}
		c.Set(signal.UserKey, user)
		c.Next()
	}
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}

func SetupRouter(ctx context.Context, cfg *config.Config, o *orch.Orchestrator, auth app.Authenticator) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions(sessionName, store))

	var limiter *signal.RoomRateLimiter
	if cfg.RateLimit.Burst > 0 && cfg.RateLimit.Interval > 0 {
		limiter = signal.NewRoomRateLimiter(cfg.RateLimit.Burst, cfg.RateLimit.Interval, nil)
	}
	ctrl := signal.NewSignalWSController(o, limiter, signal.Config{
		ReadLimit:  cfg.ReadLimit,
		PingPeriod: cfg.PingPeriod,
	})

	g := r.Group("/api", AuthMiddleware(auth))

	g.GET("/ws", func(c *gin.Context) {
		log.Info().Str("module", "adapters.http").Msg("ws signal endpoint hit")
		ctrl.HandleSignal(ctx, c)
	})
	g.GET("/channels/:id/messages", channelMessages(o))
	g.GET("/servers/:id/members", serverMembers(o))
	g.GET("/rooms", listRooms(o))

	log.Info().Str("module", "adapters.http").Str("mode", cfg.Mode).Msg("router setup")
	return r
}
