package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"PortfolioHistory/internal/domain/models"
	"PortfolioHistory/internal/services/aggregation"
	"PortfolioHistory/internal/usecase"
	"PortfolioHistory/pkg/calendar"
	xhttp "PortfolioHistory/pkg/http"
	xlogger "PortfolioHistory/pkg/logger"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHistory struct {
	dim     models.Dimension
	query   models.HistoryQuery
	cadence calendar.Cadence
	windows []aggregation.Window
	err     error
}

func (f *fakeHistory) Read(_ context.Context, dim models.Dimension, q models.HistoryQuery, cadence calendar.Cadence) (*usecase.HistoryView, error) {
	f.dim, f.query, f.cadence = dim, q, cadence
	if f.err != nil {
		return nil, f.err
	}
	return &usecase.HistoryView{Dimension: dim, State: models.StateStale, Stale: true, Cadence: cadence}, nil
}

func (f *fakeHistory) Stats(_ context.Context, dim models.Dimension, q models.HistoryQuery, _ float64) (map[string]aggregation.SymbolStats, error) {
	f.dim, f.query = dim, q
	return map[string]aggregation.SymbolStats{}, f.err
}

func (f *fakeHistory) Milestones(_ context.Context, dim models.Dimension, _ string, _ *time.Time, windows []aggregation.Window) ([]aggregation.Milestone, error) {
	f.dim, f.windows = dim, windows
	return []aggregation.Milestone{}, f.err
}

type fakeSync struct {
	err       error
	overwrite bool
}

func (f *fakeSync) Check(_ context.Context, dim models.Dimension) (usecase.Status, error) {
	return usecase.Status{Dimension: dim, State: models.StateFresh}, nil
}

func (f *fakeSync) CheckAll(context.Context) ([]usecase.Status, error) {
	return []usecase.Status{{State: models.StateFresh}}, nil
}

func (f *fakeSync) Sync(_ context.Context, dim models.Dimension, overwrite bool) usecase.SyncResult {
	f.overwrite = overwrite
	return usecase.SyncResult{Dimension: dim, Err: f.err}
}

func (f *fakeSync) SyncAll(ctx context.Context, overwrite bool) []usecase.SyncResult {
	return []usecase.SyncResult{f.Sync(ctx, models.DimensionAsset, overwrite), f.Sync(ctx, models.DimensionSector, overwrite)}
}

func (f *fakeSync) Rebuild(_ context.Context, dim models.Dimension, _ *time.Time) usecase.SyncResult {
	return usecase.SyncResult{Dimension: dim, Err: f.err}
}

func (f *fakeSync) RebuildAll(context.Context, *time.Time) []usecase.SyncResult { return nil }

type fakePositions struct{ symbols []string }

func (f *fakePositions) Summaries(_ context.Context, symbols []string, _ bool) (*usecase.PositionsReport, error) {
	f.symbols = symbols
	return &usecase.PositionsReport{Positions: []models.PositionSummary{}}, nil
}

type fakeQueue struct {
	msgType string
	payload interface{}
}

func (q *fakeQueue) PublishMessage(_ context.Context, msgType string, payload interface{}) (string, error) {
	q.msgType, q.payload = msgType, payload
	return "job-42", nil
}

type fixture struct {
	e         *echo.Echo
	history   *fakeHistory
	sync      *fakeSync
	positions *fakePositions
	queue     *fakeQueue
}

func newFixture() *fixture {
	f := &fixture{history: &fakeHistory{}, sync: &fakeSync{}, positions: &fakePositions{}, queue: &fakeQueue{}}
	f.e = echo.New()
	NewHistoryEchoHandler(xlogger.Nop(), f.history, f.sync, f.positions, f.queue).RegisterRoutes(f.e)
	return f
}

func (f *fixture) do(method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)
	return rec
}

func TestHistoryRead(t *testing.T) {
	f := newFixture()

	rec := f.do(http.MethodGet, "/api/history/asset?keys=AAA,%20BBB&cadence=weekly&from=2024-03-08&to=2024-03-01", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, models.DimensionAsset, f.history.dim)
	assert.Equal(t, []string{"AAA", "BBB"}, f.history.query.Keys)
	assert.Equal(t, calendar.Weekly, f.history.cadence)
	require.NotNil(t, f.history.query.From)
	assert.Equal(t, calendar.Date(2024, time.March, 1), *f.history.query.From)
	assert.Equal(t, "stale", rec.Header().Get("X-History-State"))
}

func TestHistoryReadDefaultsToDaily(t *testing.T) {
	f := newFixture()

	rec := f.do(http.MethodGet, "/api/history/sector", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, calendar.Daily, f.history.cadence)
}

func TestHistoryRejectsBadInput(t *testing.T) {
	f := newFixture()

	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/api/history/planets", "").Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/api/history/asset?cadence=hourly", "").Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/api/history/asset/milestones", "").Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/api/history/asset/milestones?key=AAA&windows=2W", "").Code)
}

func TestMilestonesWindows(t *testing.T) {
	f := newFixture()

	rec := f.do(http.MethodGet, "/api/history/portfolio/milestones?key=portfolio&windows=1y,ytd", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []aggregation.Window{aggregation.Window1Y, aggregation.WindowYTD}, f.history.windows)
}

func TestHistorySourceUnavailable(t *testing.T) {
	f := newFixture()
	f.history.err = &models.SourceError{Source: "clickhouse", Err: errors.New("dial tcp")}

	rec := f.do(http.MethodGet, "/api/history/asset", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body xhttp.APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, http.StatusServiceUnavailable, body.Status)
}

func TestSyncSingleDimensionConflict(t *testing.T) {
	f := newFixture()
	f.sync.err = models.ErrUpdateInProgress

	rec := f.do(http.MethodPost, "/api/sync", `{"dimensions":["asset"]}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestSyncAllReportsPerDimensionErrors(t *testing.T) {
	f := newFixture()
	f.sync.err = models.ErrUpdateInProgress

	rec := f.do(http.MethodPost, "/api/sync", `{"overwrite":true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, f.sync.overwrite)
	assert.Contains(t, rec.Body.String(), "update in progress")
}

func TestRebuildQueuesJob(t *testing.T) {
	f := newFixture()

	rec := f.do(http.MethodPost, "/api/rebuild", `{"dimensions":["sector"],"from":"2024-03-01"}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "job-42")
	assert.Equal(t, usecase.HistoryJobType, f.queue.msgType)

	req, ok := f.queue.payload.(usecase.HistoryJobRequest)
	require.True(t, ok)
	assert.Equal(t, usecase.JobModeRebuild, req.Mode)
	assert.Equal(t, []string{"sector"}, req.Dimensions)
	assert.Equal(t, calendar.Date(2024, time.March, 1), *req.From)
}

func TestRebuildRejectsBadDate(t *testing.T) {
	f := newFixture()

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/api/rebuild", `{"from":"March"}`).Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodPost, "/api/rebuild", `{"dimensions":["x"]}`).Code)
	assert.Empty(t, f.queue.msgType)
}

func TestPositionsUppercasesSymbols(t *testing.T) {
	f := newFixture()

	rec := f.do(http.MethodGet, "/api/positions?symbols=aapl,msft", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"AAPL", "MSFT"}, f.positions.symbols)
}

func TestStatusRoutes(t *testing.T) {
	f := newFixture()

	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/status", "").Code)
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/status/geography", "").Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/api/status/nope", "").Code)
}

func TestToAppError(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{models.ErrUpdateInProgress, http.StatusConflict},
		{models.ErrRateLimited, http.StatusTooManyRequests},
		{&models.WriteError{Dimension: models.DimensionAsset, Err: errors.New("x")}, http.StatusInternalServerError},
		{&models.OversellError{Symbol: "AAA"}, http.StatusUnprocessableEntity},
		{errors.New("boom"), http.StatusInternalServerError},
		{xhttp.BadRequestError("bad"), http.StatusBadRequest},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.status, toAppError(tt.err).Status, tt.err.Error())
	}
}
