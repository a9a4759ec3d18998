package httptransport

import (
	"log/slog"

	"github.com/coriolis-sched/coriolis/internal/transport/http/handler"
	"github.com/coriolis-sched/coriolis/internal/transport/http/middleware"
	sloggin "github.com/samber/slog-gin"

	"github.com/gin-gonic/gin"
)

// NewRouter wires the admin surface: no authentication layer, since this
// is an internal operator tool rather than a multi-tenant product surface.
func NewRouter(admin *handler.AdminHandler, healthH *handler.HealthHandler, logger *slog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(sloggin.New(logger))
	r.Use(middleware.Metrics())

	r.GET("/healthz", healthH.Liveness)
	r.GET("/readyz", healthH.Readiness)

	r.GET("/trigger-groups/:group/state", admin.GroupTriggerKeys)
	r.POST("/trigger-groups/pause", admin.PauseTriggerGroup)
	r.POST("/trigger-groups/resume", admin.ResumeTriggerGroup)

	r.GET("/jobs/:group/:name", admin.GetJob)
	r.POST("/jobs/fire-now", admin.FireNow)

	r.GET("/calendars", admin.ListCalendars)

	return r
}
