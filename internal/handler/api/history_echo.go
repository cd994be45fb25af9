package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"PortfolioHistory/internal/domain/models"
	"PortfolioHistory/internal/services/aggregation"
	"PortfolioHistory/internal/usecase"
	"PortfolioHistory/pkg/calendar"
	xhttp "PortfolioHistory/pkg/http"
	xlogger "PortfolioHistory/pkg/logger"
	"PortfolioHistory/pkg/queue"
	"PortfolioHistory/pkg/util"

	"github.com/labstack/echo/v4"
)

type HistoryService interface {
	Read(ctx context.Context, dim models.Dimension, q models.HistoryQuery, cadence calendar.Cadence) (*usecase.HistoryView, error)
	Stats(ctx context.Context, dim models.Dimension, q models.HistoryQuery, riskFreeRate float64) (map[string]aggregation.SymbolStats, error)
	Milestones(ctx context.Context, dim models.Dimension, key string, asOf *time.Time, windows []aggregation.Window) ([]aggregation.Milestone, error)
}

type SyncService interface {
	Check(ctx context.Context, dim models.Dimension) (usecase.Status, error)
	CheckAll(ctx context.Context) ([]usecase.Status, error)
	usecase.HistoryRunner
}

type PositionsService interface {
	Summaries(ctx context.Context, symbols []string, includeClosed bool) (*usecase.PositionsReport, error)
}

// HistoryEchoHandler serves history reads, freshness, sync triggers and
// position summaries.
type HistoryEchoHandler struct {
	logger    *xlogger.Logger
	history   HistoryService
	sync      SyncService
	positions PositionsService
	queue     queue.QueueService
}

func NewHistoryEchoHandler(logger *xlogger.Logger, history HistoryService, sync SyncService, positions PositionsService, q queue.QueueService) *HistoryEchoHandler {
	return &HistoryEchoHandler{logger: logger, history: history, sync: sync, positions: positions, queue: q}
}

func (h *HistoryEchoHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)

	g := e.Group("/api")
	g.GET("/history/:dimension", h.History)
	g.GET("/history/:dimension/stats", h.Stats)
	g.GET("/history/:dimension/milestones", h.Milestones)
	g.GET("/status", h.Status)
	g.GET("/status/:dimension", h.Status)
	g.POST("/sync", h.Sync)
	g.POST("/rebuild", h.Rebuild)
	g.GET("/positions", h.Positions)
}

func (h *HistoryEchoHandler) Health(c echo.Context) error {
	return xhttp.SuccessResponse(c, map[string]string{"status": "ok"})
}

func (h *HistoryEchoHandler) History(c echo.Context) error {
	req := &models.HistoryRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	dim, err := models.ParseDimension(req.Dimension)
	if err != nil {
		return h.fail(c, "history", err)
	}

	view, err := h.history.Read(c.Request().Context(), dim, historyQuery(req.From, req.To, req.Keys), calendar.NormalizeCadence(req.Cadence))
	if err != nil {
		return h.fail(c, "history", err)
	}
	if view.Stale {
		c.Response().Header().Set(xhttp.HeaderHistoryState, view.State.String())
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=60")
	return xhttp.SuccessResponse(c, view)
}

func (h *HistoryEchoHandler) Stats(c echo.Context) error {
	req := &models.StatsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	dim, err := models.ParseDimension(req.Dimension)
	if err != nil {
		return h.fail(c, "stats", err)
	}

	res, err := h.history.Stats(c.Request().Context(), dim, historyQuery(req.From, req.To, req.Keys), req.RiskFreeRate)
	if err != nil {
		return h.fail(c, "stats", err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *HistoryEchoHandler) Milestones(c echo.Context) error {
	req := &models.MilestonesRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	dim, err := models.ParseDimension(req.Dimension)
	if err != nil {
		return h.fail(c, "milestones", err)
	}
	windows, err := parseWindows(req.Windows)
	if err != nil {
		return xhttp.AppErrorResponse(c, err)
	}

	res, err := h.history.Milestones(c.Request().Context(), dim, req.Key, util.ParseDayPtr(req.AsOf), windows)
	if err != nil {
		return h.fail(c, "milestones", err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *HistoryEchoHandler) Status(c echo.Context) error {
	req := &models.StatusRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	ctx := c.Request().Context()

	if req.Dimension == "" {
		res, err := h.sync.CheckAll(ctx)
		if err != nil {
			return h.fail(c, "status", err)
		}
		return xhttp.SuccessResponse(c, res)
	}
	dim, err := models.ParseDimension(req.Dimension)
	if err != nil {
		return h.fail(c, "status", err)
	}
	res, err := h.sync.Check(ctx, dim)
	if err != nil {
		return h.fail(c, "status", err)
	}
	return xhttp.SuccessResponse(c, res)
}

// syncResultView exposes the run error, which SyncResult keeps out of JSON.
type syncResultView struct {
	usecase.SyncResult
	Error string `json:"error,omitempty"`
}

// Sync runs a sync inline. A single-dimension request answers with the
// mapped error status when it fails.
func (h *HistoryEchoHandler) Sync(c echo.Context) error {
	req := &models.SyncRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	var results []usecase.SyncResult
	var err error
	if req.Overwrite {
		results, err = h.overwrite(c.Request().Context(), req.Dimensions)
	} else {
		results, err = usecase.Run(c.Request().Context(), h.sync, usecase.HistoryJobRequest{
			Mode:       usecase.JobModeSync,
			Dimensions: req.Dimensions,
		})
	}
	if err != nil {
		return h.fail(c, "sync", err)
	}
	if len(results) == 1 && results[0].Err != nil {
		return h.fail(c, "sync", results[0].Err)
	}

	out := make([]syncResultView, 0, len(results))
	for _, r := range results {
		v := syncResultView{SyncResult: r}
		if r.Err != nil {
			v.Error = r.Err.Error()
		}
		out = append(out, v)
	}
	return xhttp.SuccessResponse(c, out)
}

// overwrite re-syncs with overwrite semantics; Run only drives plain syncs.
func (h *HistoryEchoHandler) overwrite(ctx context.Context, names []string) ([]usecase.SyncResult, error) {
	if len(names) == 0 {
		return h.sync.SyncAll(ctx, true), nil
	}
	out := make([]usecase.SyncResult, 0, len(names))
	for _, name := range names {
		dim, err := models.ParseDimension(name)
		if err != nil {
			return nil, err
		}
		out = append(out, h.sync.Sync(ctx, dim, true))
	}
	return out, nil
}

// Rebuild queues a rebuild and answers 202 with the job id.
func (h *HistoryEchoHandler) Rebuild(c echo.Context) error {
	req := &models.RebuildRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	for _, name := range req.Dimensions {
		if _, err := models.ParseDimension(name); err != nil {
			return h.fail(c, "rebuild", err)
		}
	}
	var from *time.Time
	if req.From != "" {
		if from = util.ParseDayPtr(req.From); from == nil {
			return xhttp.AppErrorResponse(c, xhttp.BadRequestError("from must be a YYYY-MM-DD date").WithParam("field", "from"))
		}
	}

	id, err := h.queue.PublishMessage(c.Request().Context(), usecase.HistoryJobType, usecase.HistoryJobRequest{
		Mode:       usecase.JobModeRebuild,
		Dimensions: req.Dimensions,
		From:       from,
		Reason:     "api",
	})
	if err != nil {
		return h.fail(c, "rebuild", err)
	}
	return xhttp.AcceptedResponse(c, map[string]string{"job_id": id})
}

func (h *HistoryEchoHandler) Positions(c echo.Context) error {
	req := &models.PositionsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	res, err := h.positions.Summaries(c.Request().Context(), splitList(req.Symbols, strings.ToUpper), req.IncludeClosed)
	if err != nil {
		return h.fail(c, "positions", err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *HistoryEchoHandler) fail(c echo.Context, op string, err error) error {
	appErr := toAppError(err)
	if appErr.Status >= http.StatusInternalServerError {
		h.logger.Error(op+" request failed", xlogger.Error(err))
	} else {
		h.logger.Debug(op+" request rejected", xlogger.Error(err))
	}
	return xhttp.AppErrorResponse(c, appErr)
}

func historyQuery(from, to, keys string) models.HistoryQuery {
	f, t := util.OrderRange(util.ParseDayPtr(from), util.ParseDayPtr(to))
	return models.HistoryQuery{Keys: splitList(keys, nil), From: f, To: t}
}

func splitList(s string, norm func(string) string) []string {
	out := util.SplitList(s)
	if norm != nil {
		for i := range out {
			out[i] = norm(out[i])
		}
	}
	return out
}

func parseWindows(s string) ([]aggregation.Window, error) {
	var out []aggregation.Window
	for _, part := range splitList(s, strings.ToUpper) {
		w := aggregation.Window(part)
		if !knownWindow(w) {
			return nil, xhttp.BadRequestErrorf("unknown window %q", part).WithParam("options", aggregation.DefaultWindows)
		}
		out = append(out, w)
	}
	return out, nil
}

func knownWindow(w aggregation.Window) bool {
	for _, k := range aggregation.DefaultWindows {
		if k == w {
			return true
		}
	}
	return false
}
