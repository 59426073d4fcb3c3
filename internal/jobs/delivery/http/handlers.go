package http

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"path"
	"strconv"
	"time"

	"github.com/amankumarsingh77/backdrop/internal/jobs"
	"github.com/amankumarsingh77/backdrop/internal/models"
	"github.com/amankumarsingh77/backdrop/internal/pipeline"
	"github.com/amankumarsingh77/backdrop/internal/worker"
	"github.com/amankumarsingh77/backdrop/pkg/logger"
	"github.com/amankumarsingh77/backdrop/pkg/utils"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

const (
	outputsPath  = "/api/v1/outputs/"
	downloadPath = "/download/"
)

type jobsHandler struct {
	jobsUC       jobs.UseCase
	logger       logger.Logger
	upgrader     websocket.Upgrader
	pollInterval time.Duration
}

func NewJobsHandler(jobsUC jobs.UseCase, logger logger.Logger) jobs.Handler {
	return &jobsHandler{
		jobsUC: jobsUC,
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		pollInterval: 500 * time.Millisecond,
	}
}

type formFile struct {
	upload models.Upload
	file   multipart.File
}

func openFormFile(c echo.Context, field string) (*formFile, error) {
	fh, err := c.FormFile(field)
	if err != nil {
		return nil, err
	}
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	return &formFile{upload: models.Upload{Name: fh.Filename, Reader: f}, file: f}, nil
}

// bindSubmit reads the multipart job form. Callers must run the returned
// cleanup once the uploads have been consumed.
func bindSubmit(c echo.Context) (*models.SubmitInput, models.Upload, *models.Upload, func(), error) {
	noop := func() {}
	input := &models.SubmitInput{
		JobID:     c.FormValue("job_id"),
		OutputDir: c.FormValue("output_dir"),
	}
	var err error
	ints := []struct {
		name string
		dst  *int
		def  int
	}{
		{"color_r", &input.ColorR, models.DefaultColor[0]},
		{"color_g", &input.ColorG, models.DefaultColor[1]},
		{"color_b", &input.ColorB, models.DefaultColor[2]},
		{"blur_radius", &input.BlurRadius, 0},
	}
	for _, f := range ints {
		if *f.dst, err = utils.FormInt(c, f.name, f.def); err != nil {
			return nil, models.Upload{}, nil, noop, fieldError(f.name)
		}
	}
	if input.LightingStrength, err = utils.FormFloat(c, "lighting_strength", 0); err != nil {
		return nil, models.Upload{}, nil, noop, fieldError("lighting_strength")
	}

	video, err := openFormFile(c, "video")
	if err != nil {
		return nil, models.Upload{}, nil, noop, fieldError("video")
	}
	cleanup := func() { video.file.Close() }

	var background *models.Upload
	if bg, err := openFormFile(c, "background"); err == nil {
		background = &bg.upload
		cleanup = func() {
			video.file.Close()
			bg.file.Close()
		}
	}
	return input, video.upload, background, cleanup, nil
}

func fieldError(name string) error {
	return &fieldErr{name: name}
}

type fieldErr struct{ name string }

func (e *fieldErr) Error() string { return "invalid or missing field: " + e.name }

func (e *fieldErr) Unwrap() error { return jobs.ErrInvalidInput }

// respondError maps domain errors to status codes. Unexpected errors are
// reported without detail.
func (h *jobsHandler) respondError(c echo.Context, err error) error {
	var invalidSource *pipeline.InvalidSourceError
	switch {
	case errors.Is(err, jobs.ErrInvalidInput):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.As(err, &invalidSource):
		return c.JSON(http.StatusUnprocessableEntity, map[string]string{"error": invalidSource.Error()})
	case errors.Is(err, worker.ErrQueueFull), errors.Is(err, worker.ErrPoolStopped):
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "server is busy, try again later"})
	case errors.Is(err, jobs.ErrArtifactNotFound):
		return c.JSON(http.StatusNotFound, map[string]string{"error": "output not found"})
	}
	h.logger.Errorf("request %s failed: %v", utils.GetRequestID(c), err)
	return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal server error"})
}

func (h *jobsHandler) SubmitJob() echo.HandlerFunc {
	return func(c echo.Context) error {
		input, video, background, cleanup, err := bindSubmit(c)
		if err != nil {
			return h.respondError(c, err)
		}
		defer cleanup()

		resp, err := h.jobsUC.Submit(c.Request().Context(), input, video, background)
		if err != nil {
			return h.respondError(c, err)
		}
		if resp.Cached {
			return c.JSON(http.StatusOK, resp)
		}
		return c.JSON(http.StatusAccepted, resp)
	}
}

func withDownloadURL(status *models.StatusResponse) *models.StatusResponse {
	if status.Status == models.JobStatusCompleted && status.OutputRef != "" {
		status.DownloadURL = outputsPath + status.OutputRef
	}
	return status
}

func (h *jobsHandler) GetStatus() echo.HandlerFunc {
	return func(c echo.Context) error {
		status, err := h.jobsUC.Status(c.Request().Context(), c.Param("job_id"))
		if err != nil {
			return h.respondError(c, err)
		}
		return c.JSON(http.StatusOK, withDownloadURL(status))
	}
}

// WatchStatus pushes a status snapshot whenever it changes until the job is
// terminal or unknown.
func (h *jobsHandler) WatchStatus() echo.HandlerFunc {
	return func(c echo.Context) error {
		jobID := c.Param("job_id")
		conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
		if err != nil {
			h.logger.Warnf("WatchStatus - upgrade failed: %v", err)
			return nil
		}
		defer conn.Close()

		gone := make(chan struct{})
		go func() {
			defer close(gone)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		ctx := c.Request().Context()
		ticker := time.NewTicker(h.pollInterval)
		defer ticker.Stop()

		var last models.StatusResponse
		first := true
		for {
			status, err := h.jobsUC.Status(ctx, jobID)
			if err != nil {
				h.logger.Errorf("WatchStatus - job %s: %v", jobID, err)
				return nil
			}
			status = withDownloadURL(status)
			if first || status.Status != last.Status || status.Progress != last.Progress {
				if err := conn.WriteJSON(status); err != nil {
					return nil
				}
				first = false
				last = *status
			}
			if status.Status.Terminal() || status.Status == models.JobStatusNotFound {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(status.Status)))
				return nil
			}
			select {
			case <-ticker.C:
			case <-gone:
				return nil
			case <-ctx.Done():
				return nil
			}
		}
	}
}

func (h *jobsHandler) Preview() echo.HandlerFunc {
	return func(c echo.Context) error {
		input, video, background, cleanup, err := bindSubmit(c)
		if err != nil {
			return h.respondError(c, err)
		}
		defer cleanup()

		resp, err := h.jobsUC.Preview(c.Request().Context(), input, video, background)
		if err != nil {
			return h.respondError(c, err)
		}
		return c.JSON(http.StatusOK, resp)
	}
}

func (h *jobsHandler) streamOutput(c echo.Context, ref string) error {
	rc, size, err := h.jobsUC.OpenOutput(c.Request().Context(), ref)
	if err != nil {
		return h.respondError(c, err)
	}
	defer rc.Close()
	c.Response().Header().Set(echo.HeaderContentLength, strconv.FormatInt(size, 10))
	c.Response().Header().Set(echo.HeaderContentDisposition, "attachment; filename=\""+path.Base(ref)+"\"")
	c.Response().Header().Set(echo.HeaderContentType, "video/mp4")
	c.Response().WriteHeader(http.StatusOK)
	_, err = io.Copy(c.Response(), rc)
	return err
}

func (h *jobsHandler) DownloadOutput() echo.HandlerFunc {
	return func(c echo.Context) error {
		return h.streamOutput(c, c.Param("*"))
	}
}

// DownloadByName serves the legacy /download/<name> route. Names may carry
// an output directory.
func (h *jobsHandler) DownloadByName() echo.HandlerFunc {
	return func(c echo.Context) error {
		return h.streamOutput(c, c.Param("*"))
	}
}

// RemoveBackground is the legacy single-call endpoint. It submits the job
// and answers with the URL the output will be served from.
func (h *jobsHandler) RemoveBackground() echo.HandlerFunc {
	return func(c echo.Context) error {
		input, video, background, cleanup, err := bindSubmit(c)
		if err != nil {
			return h.respondError(c, err)
		}
		defer cleanup()

		resp, err := h.jobsUC.Submit(c.Request().Context(), input, video, background)
		if err != nil {
			return h.respondError(c, err)
		}
		return c.JSON(http.StatusOK, map[string]interface{}{
			"job_id":           resp.JobID,
			"status":           resp.Status,
			"cached":           resp.Cached,
			"output_video_url": downloadPath + resp.OutputName,
		})
	}
}
