package http

import (
	"github.com/amankumarsingh77/backdrop/internal/jobs"
	"github.com/labstack/echo/v4"
)

func MapJobsRoutes(jobsGroup *echo.Group, h jobs.Handler) {
	jobsGroup.POST("", h.SubmitJob())
	jobsGroup.GET("/:job_id", h.GetStatus())
	jobsGroup.GET("/:job_id/ws", h.WatchStatus())
}

func MapOutputRoutes(v1 *echo.Group, h jobs.Handler) {
	v1.POST("/preview", h.Preview())
	v1.GET("/outputs/*", h.DownloadOutput())
}

// MapLegacyRoutes serves the single-call upload and download endpoints.
func MapLegacyRoutes(e *echo.Echo, h jobs.Handler) {
	e.POST("/remove-background", h.RemoveBackground())
	e.GET("/download/*", h.DownloadByName())
}
