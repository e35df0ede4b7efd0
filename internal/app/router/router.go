package router

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	convergencehandler "signal_backend/internal/feature/convergence/transport/handler"
	"signal_backend/internal/platform/http/handler"
	jwtmw "signal_backend/internal/platform/jwt"
	"signal_backend/internal/platform/logger"
)

// Options carries what the router needs besides the feature handler.
type Options struct {
	Log            zerolog.Logger
	JWTSecret      string
	AllowedOrigins []string        // CORS is enabled only when non-empty
	Metrics        http.Handler    // served on /metrics when set
	Ready          gin.HandlerFunc // served on /readyz when set
}

func NewRouter(conv *convergencehandler.ConvergenceHandler, opts Options) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), logger.GinMiddleware(opts.Log))
	if len(opts.AllowedOrigins) > 0 {
		corsConfig := cors.DefaultConfig()
		corsConfig.AllowOrigins = opts.AllowedOrigins
		corsConfig.AllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodOptions}
		corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
		r.Use(cors.New(corsConfig))
	}

	// 認証不要
	// 導通確認用
	r.GET("/healthz", handler.Health)
	r.HEAD("/healthz", handler.Health)
	if opts.Ready != nil {
		r.GET("/readyz", opts.Ready)
	}
	if opts.Metrics != nil {
		r.GET("/metrics", gin.WrapH(opts.Metrics))
	}

	// 参照系
	r.GET("/signals/:symbol/:timeframe", conv.ListHandler)
	r.GET("/diagnostics/:symbol/:timeframe", conv.DiagnosticsHandler)

	// 検出の実行はオペレーターのみ
	ops := r.Group("/")
	ops.Use(jwtmw.AuthRequired(opts.JWTSecret))
	{
		ops.POST("/signals/:symbol/:timeframe/run", conv.RunHandler)
	}

	return r
}
