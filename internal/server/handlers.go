package server

import (
	"net/http"

	jobsHttp "github.com/amankumarsingh77/backdrop/internal/jobs/delivery/http"
	jobsUsecase "github.com/amankumarsingh77/backdrop/internal/jobs/usecase"
	"github.com/amankumarsingh77/backdrop/internal/matting"
	"github.com/amankumarsingh77/backdrop/internal/media"
	"github.com/amankumarsingh77/backdrop/internal/mux"
	"github.com/amankumarsingh77/backdrop/internal/pipeline"
	"github.com/amankumarsingh77/backdrop/pkg/utils"
	"github.com/labstack/echo/v4"
)

func (s *Server) MapHandlers(e *echo.Echo) error {
	tracker, err := s.newTracker()
	if err != nil {
		return err
	}
	artifacts, err := s.newArtifacts()
	if err != nil {
		return err
	}

	prober := &media.Prober{Path: s.cfg.Media.FFprobePath, Timeout: s.cfg.Media.ProbeTimeout}
	backend := media.NewFFmpeg(s.cfg.Media.FFmpegPath, s.caps.Codec(), prober)
	finalizer := mux.NewFinalizer(s.caps, s.cfg.Media, s.cfg.Storage.ScratchDir, s.logger)
	pl := pipeline.NewPipeline(s.cfg.Pipeline, s.logger)

	jobsUC := jobsUsecase.NewJobsUseCase(s.cfg, tracker, artifacts, backend, s.oracleFactory(), pl, finalizer, s.pool, s.logger)
	jobsHandlers := jobsHttp.NewJobsHandler(jobsUC, s.logger)

	v1 := e.Group("/api/v1")
	health := v1.Group("/health")
	jobsGroup := v1.Group("/jobs")

	jobsHttp.MapJobsRoutes(jobsGroup, jobsHandlers)
	jobsHttp.MapOutputRoutes(v1, jobsHandlers)
	jobsHttp.MapLegacyRoutes(e, jobsHandlers)
	health.GET("", func(c echo.Context) error {
		s.logger.Infof("Health check RequestID: %s", utils.GetRequestID(c))
		return c.JSON(http.StatusOK, map[string]interface{}{
			"status":          "OK",
			"codec":           s.caps.Codec(),
			"audio_supported": s.caps.AudioSupported(),
		})
	})
	return nil
}

// oracleFactory starts the configured matting worker per job. Without a
// command every pixel is treated as foreground.
func (s *Server) oracleFactory() matting.Factory {
	if s.cfg.Oracle.Command == "" {
		s.logger.Warn("oracle.command is empty, frames pass through unchanged")
		return matting.ConstantFactory(1, nil)
	}
	return matting.ProcessFactory(s.cfg.Oracle)
}
