package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/amankumarsingh77/backdrop/internal/jobs"
	"github.com/amankumarsingh77/backdrop/internal/models"
	"github.com/amankumarsingh77/backdrop/internal/pipeline"
	"github.com/amankumarsingh77/backdrop/internal/worker"
	"github.com/amankumarsingh77/backdrop/pkg/logger"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUseCase struct {
	mu         sync.Mutex
	input      *models.SubmitInput
	videoData  string
	hasBG      bool
	submitResp *models.SubmitResponse
	submitErr  error
	statuses   []*models.StatusResponse
	previewErr error
	outputs    map[string]string
}

func (f *fakeUseCase) Submit(_ context.Context, input *models.SubmitInput, video models.Upload, background *models.Upload) (*models.SubmitResponse, error) {
	data, _ := io.ReadAll(video.Reader)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.input = input
	f.videoData = string(data)
	f.hasBG = background != nil
	return f.submitResp, f.submitErr
}

// Status pops queued snapshots and repeats the last one.
func (f *fakeUseCase) Status(_ context.Context, jobID string) (*models.StatusResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.statuses) == 0 {
		return models.NewStatusResponse(jobID, nil), nil
	}
	s := *f.statuses[0]
	if len(f.statuses) > 1 {
		f.statuses = f.statuses[1:]
	}
	return &s, nil
}

func (f *fakeUseCase) Preview(_ context.Context, input *models.SubmitInput, _ models.Upload, _ *models.Upload) (*models.PreviewResponse, error) {
	if f.previewErr != nil {
		return nil, f.previewErr
	}
	return &models.PreviewResponse{Image: "data:image/jpeg;base64,AAAA", Width: 4, Height: 2}, nil
}

func (f *fakeUseCase) OpenOutput(_ context.Context, ref string) (io.ReadCloser, int64, error) {
	data, ok := f.outputs[ref]
	if !ok {
		return nil, 0, jobs.ErrArtifactNotFound
	}
	return io.NopCloser(strings.NewReader(data)), int64(len(data)), nil
}

func newServer(uc *fakeUseCase) *echo.Echo {
	e := echo.New()
	h := NewJobsHandler(uc, logger.NewNop()).(*jobsHandler)
	h.pollInterval = 5 * time.Millisecond
	v1 := e.Group("/api/v1")
	MapJobsRoutes(v1.Group("/jobs"), h)
	MapOutputRoutes(v1, h)
	MapLegacyRoutes(e, h)
	return e
}

func multipartBody(t *testing.T, fields map[string]string, files map[string]string) (*bytes.Buffer, string) {
	body := new(bytes.Buffer)
	w := multipart.NewWriter(body)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	for field, content := range files {
		part, err := w.CreateFormFile(field, field+".bin")
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return body, w.FormDataContentType()
}

func do(t *testing.T, e *echo.Echo, method, target string, fields, files map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if fields != nil || files != nil {
		body, ct := multipartBody(t, fields, files)
		req = httptest.NewRequest(method, target, body)
		req.Header.Set(echo.HeaderContentType, ct)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestSubmitJobDefaults(t *testing.T) {
	uc := &fakeUseCase{submitResp: &models.SubmitResponse{JobID: "j1", Status: models.JobStatusProcessing}}
	rec := do(t, newServer(uc), http.MethodPost, "/api/v1/jobs", map[string]string{}, map[string]string{"video": "payload"})

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, 0, uc.input.ColorR)
	assert.Equal(t, 255, uc.input.ColorG)
	assert.Equal(t, 0, uc.input.ColorB)
	assert.Equal(t, 0, uc.input.BlurRadius)
	assert.Equal(t, "payload", uc.videoData)
	assert.False(t, uc.hasBG)

	var resp models.SubmitResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "j1", resp.JobID)
}

func TestSubmitJobParsesFields(t *testing.T) {
	uc := &fakeUseCase{submitResp: &models.SubmitResponse{JobID: "mine", Status: models.JobStatusCompleted, Cached: true}}
	rec := do(t, newServer(uc), http.MethodPost, "/api/v1/jobs", map[string]string{
		"job_id":            "mine",
		"color_r":           "12",
		"color_g":           "34",
		"color_b":           "56",
		"blur_radius":       "7",
		"lighting_strength": "0.5",
		"output_dir":        "renders",
	}, map[string]string{"video": "v", "background": "b"})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "mine", uc.input.JobID)
	assert.Equal(t, [3]int{12, 34, 56}, [3]int{uc.input.ColorR, uc.input.ColorG, uc.input.ColorB})
	assert.Equal(t, 7, uc.input.BlurRadius)
	assert.Equal(t, 0.5, uc.input.LightingStrength)
	assert.Equal(t, "renders", uc.input.OutputDir)
	assert.True(t, uc.hasBG)
}

func TestSubmitJobBadRequests(t *testing.T) {
	uc := &fakeUseCase{}
	e := newServer(uc)

	rec := do(t, e, http.MethodPost, "/api/v1/jobs", map[string]string{"color_r": "red"}, map[string]string{"video": "v"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "color_r")

	rec = do(t, e, http.MethodPost, "/api/v1/jobs", map[string]string{"color_r": "1"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "video")
}

func TestSubmitJobErrors(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{fmt.Errorf("wrapped: %w", worker.ErrQueueFull), http.StatusServiceUnavailable},
		{fmt.Errorf("blur: %w", jobs.ErrInvalidInput), http.StatusBadRequest},
		{fmt.Errorf("disk on fire"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		uc := &fakeUseCase{submitErr: tc.err}
		rec := do(t, newServer(uc), http.MethodPost, "/api/v1/jobs", map[string]string{}, map[string]string{"video": "v"})
		assert.Equal(t, tc.code, rec.Code, tc.err.Error())
		assert.NotContains(t, rec.Body.String(), "disk on fire")
	}
}

func TestGetStatus(t *testing.T) {
	uc := &fakeUseCase{statuses: []*models.StatusResponse{{
		JobID: "j1", Status: models.JobStatusCompleted, Progress: 100, OutputRef: "out_j1_clip.mp4",
	}}}
	rec := do(t, newServer(uc), http.MethodGet, "/api/v1/jobs/j1", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp models.StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "/api/v1/outputs/out_j1_clip.mp4", resp.DownloadURL)
}

func TestGetStatusUnknown(t *testing.T) {
	rec := do(t, newServer(&fakeUseCase{}), http.MethodGet, "/api/v1/jobs/ghost", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"not_found"`)
}

func TestDownloadOutput(t *testing.T) {
	uc := &fakeUseCase{outputs: map[string]string{"renders/out_a.mp4": "mp4 bytes"}}
	e := newServer(uc)

	rec := do(t, e, http.MethodGet, "/api/v1/outputs/renders/out_a.mp4", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "mp4 bytes", rec.Body.String())
	assert.Equal(t, "9", rec.Header().Get(echo.HeaderContentLength))
	assert.Contains(t, rec.Header().Get(echo.HeaderContentDisposition), "out_a.mp4")

	rec = do(t, e, http.MethodGet, "/download/missing.mp4", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRemoveBackgroundAlias(t *testing.T) {
	uc := &fakeUseCase{submitResp: &models.SubmitResponse{
		JobID: "j9", Status: models.JobStatusProcessing, OutputName: "out_j9_clip.mp4",
	}}
	rec := do(t, newServer(uc), http.MethodPost, "/remove-background", map[string]string{}, map[string]string{"video": "v"})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "/download/out_j9_clip.mp4", resp["output_video_url"])
	assert.Equal(t, "j9", resp["job_id"])
}

func TestRemoveBackgroundURLWithOutputDir(t *testing.T) {
	uc := &fakeUseCase{
		submitResp: &models.SubmitResponse{
			JobID: "j7", Status: models.JobStatusCompleted, Cached: true, OutputName: "renders/out_j7_clip.mp4",
		},
		outputs: map[string]string{"renders/out_j7_clip.mp4": "nested"},
	}
	e := newServer(uc)
	rec := do(t, e, http.MethodPost, "/remove-background", map[string]string{"output_dir": "renders"}, map[string]string{"video": "v"})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	url, _ := resp["output_video_url"].(string)
	require.Equal(t, "/download/renders/out_j7_clip.mp4", url)

	// the returned URL resolves through the legacy route
	rec = do(t, e, http.MethodGet, url, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "nested", rec.Body.String())
	assert.Contains(t, rec.Header().Get(echo.HeaderContentDisposition), "out_j7_clip.mp4")
}

func TestPreview(t *testing.T) {
	uc := &fakeUseCase{}
	e := newServer(uc)
	rec := do(t, e, http.MethodPost, "/api/v1/preview", map[string]string{}, map[string]string{"video": "v"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "data:image/jpeg;base64,")

	uc.previewErr = &pipeline.InvalidSourceError{Reason: "no frames"}
	rec = do(t, e, http.MethodPost, "/api/v1/preview", map[string]string{}, map[string]string{"video": "v"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestWatchStatusStreamsUntilTerminal(t *testing.T) {
	uc := &fakeUseCase{statuses: []*models.StatusResponse{
		{JobID: "j1", Status: models.JobStatusProcessing, Progress: 10},
		{JobID: "j1", Status: models.JobStatusProcessing, Progress: 10},
		{JobID: "j1", Status: models.JobStatusProcessing, Progress: 60},
		{JobID: "j1", Status: models.JobStatusCompleted, Progress: 100, OutputRef: "out_j1_clip.mp4"},
	}}
	srv := httptest.NewServer(newServer(uc))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/jobs/j1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	var got []models.StatusResponse
	for {
		var s models.StatusResponse
		if err := conn.ReadJSON(&s); err != nil {
			assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure))
			break
		}
		got = append(got, s)
	}
	require.Len(t, got, 3)
	assert.Equal(t, []int{10, 60, 100}, []int{got[0].Progress, got[1].Progress, got[2].Progress})
	assert.Equal(t, "/api/v1/outputs/out_j1_clip.mp4", got[2].DownloadURL)
}
