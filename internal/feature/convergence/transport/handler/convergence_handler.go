// Package handler はconvergenceフィーチャーのHTTPハンドラーを提供します。
package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"signal_backend/internal/feature/convergence/domain"
	"signal_backend/internal/feature/convergence/domain/entity"
	"signal_backend/internal/feature/convergence/transport/http/dto"
)

// Runner, Lister and Diagnoser are the usecases the handler drives.
// Goの慣例に従い、インターフェースは利用者（handler）側で定義します。
type Runner interface {
	Run(ctx context.Context, pair entity.Pair) (entity.RunReport, error)
}

type Lister interface {
	List(ctx context.Context, pair entity.Pair, limit int) ([]entity.ScoredSignal, error)
}

type Diagnoser interface {
	Diagnose(ctx context.Context, pair entity.Pair, tolerance int) (entity.DiagnosticReport, error)
}

// ConvergenceHandler はシグナル検出・参照・診断のHTTPリクエストを処理します。
type ConvergenceHandler struct {
	runner     Runner
	lister     Lister
	diagnoser  Diagnoser
	runTimeout time.Duration
	tolerance  int
}

// NewConvergenceHandler creates the handler. runTimeout bounds one triggered run;
// tolerance is used by diagnostics when the request does not give one.
func NewConvergenceHandler(runner Runner, lister Lister, diagnoser Diagnoser, runTimeout time.Duration, tolerance int) *ConvergenceHandler {
	return &ConvergenceHandler{
		runner:     runner,
		lister:     lister,
		diagnoser:  diagnoser,
		runTimeout: runTimeout,
		tolerance:  tolerance,
	}
}

func pairParam(c *gin.Context) entity.Pair {
	return entity.Pair{Symbol: c.Param("symbol"), Timeframe: c.Param("timeframe")}
}

// RunHandler は指定ペアの検出を実行し、保存済みシグナルを置き換えます。
//
// エンドポイント例:
// POST /signals/BTCUSDT/1h/run
func (h *ConvergenceHandler) RunHandler(c *gin.Context) {
	ctx := c.Request.Context()
	if h.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.runTimeout)
		defer cancel()
	}

	report, err := h.runner.Run(ctx, pairParam(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.FromRunReport(report))
}

// ListHandler は保存済みシグナルを candle_index 順に返します。
//
// エンドポイント例:
// GET /signals/BTCUSDT/1h?limit=100
func (h *ConvergenceHandler) ListHandler(c *gin.Context) {
	limit := 0
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "limit must be a non-negative integer"})
			return
		}
		limit = n
	}

	signals, err := h.lister.List(c.Request.Context(), pairParam(c), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.FromSignals(signals))
}

// DiagnosticsHandler は一致件数が少ない理由を診断します。書き込みは行いません。
//
// エンドポイント例:
// GET /diagnostics/BTCUSDT/1h?tolerance=5
func (h *ConvergenceHandler) DiagnosticsHandler(c *gin.Context) {
	tolerance := h.tolerance
	if s := c.Query("tolerance"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "tolerance must be a non-negative integer"})
			return
		}
		tolerance = n
	}

	report, err := h.diagnoser.Diagnose(c.Request.Context(), pairParam(c), tolerance)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.FromDiagnosticReport(report))
}

// StatusFor maps a usecase error to its HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidPair):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrDataIntegrity):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrRunInProgress):
		return http.StatusConflict
	case errors.Is(err, domain.ErrSink):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	_ = c.Error(err)
	c.JSON(StatusFor(err), dto.ErrorResponse{Error: err.Error()})
}
