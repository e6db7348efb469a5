package main

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"callkit/internal/core/domain"
	"callkit/internal/core/services"
	callerrors "callkit/pkg/errors"
	"callkit/pkg/validation"
)

type channelRequest struct {
	ChannelID string `json:"channel_id" binding:"required"`
}

type tierRequest struct {
	Tier string `json:"tier" binding:"required"`
}

// newRouter builds the local control API: a loopback HTTP surface that
// drives the call session manager from scripts and host applications.
func newRouter(manager *services.CallSessionManager, log *zap.SugaredLogger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	call := router.Group("/call")
	{
		call.POST("/start", beginHandler(manager.Start, log))
		call.POST("/join", beginHandler(manager.Join, log))

		call.POST("/leave", func(c *gin.Context) {
			if err := manager.Leave(); err != nil {
				respondError(c, err)
				return
			}
			c.JSON(http.StatusOK, gin.H{"status": "left"})
		})

		call.POST("/end", func(c *gin.Context) {
			if err := manager.End(c.Request.Context()); err != nil {
				respondError(c, err)
				return
			}
			c.JSON(http.StatusOK, gin.H{"status": "ended"})
		})

		call.POST("/toggle/:kind", func(c *gin.Context) {
			var err error
			switch c.Param("kind") {
			case "audio":
				err = manager.ToggleAudio(c.Request.Context())
			case "video":
				err = manager.ToggleVideo(c.Request.Context())
			case "screen":
				err = manager.ToggleScreenShare(c.Request.Context())
			default:
				c.JSON(http.StatusBadRequest, gin.H{"error": "kind must be audio, video or screen"})
				return
			}
			if err != nil {
				respondError(c, err)
				return
			}
			c.JSON(http.StatusOK, manager.Snapshot())
		})

		call.POST("/quality", func(c *gin.Context) {
			var req tierRequest
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			if err := manager.SetPreferredTier(domain.NetworkTier(req.Tier)); err != nil {
				respondError(c, err)
				return
			}
			c.JSON(http.StatusOK, gin.H{"tier": req.Tier})
		})

		call.GET("/state", func(c *gin.Context) {
			c.JSON(http.StatusOK, manager.Snapshot())
		})
	}

	return router
}

func beginHandler(begin func(ctx context.Context, channelID domain.ChannelID) error, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req channelRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := validation.ValidateChannelID(req.ChannelID); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := begin(c.Request.Context(), domain.ChannelID(req.ChannelID)); err != nil {
			log.Warnw("failed to begin session", "channel_id", req.ChannelID, "error", err)
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"channel_id": req.ChannelID})
	}
}

func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrSessionActive), errors.Is(err, domain.ErrNoActiveSession):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		if ce := callerrors.GetCallError(err); ce != nil && ce.Code == callerrors.CodeProtocolViolation {
			c.JSON(http.StatusBadRequest, gin.H{"error": ce.Message})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
