package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/timmy/cloudnet/internal/api/handler"
	"github.com/timmy/cloudnet/internal/api/middleware"
	"github.com/timmy/cloudnet/internal/logger"
)

// Dependencies are the services the HTTP routes call.
type Dependencies struct {
	Submitter handler.Submitter
	Products  handler.ProductLookup
	Raws      handler.RawLookup
	Importer  handler.Importer
	DB        handler.Pinger
	// Gatherer is served on /metrics; nil serves the default registry.
	Gatherer prometheus.Gatherer
	Logger   *logger.Logger
}

// Options configure router behaviour.
type Options struct {
	Mode        string
	MaxUploadMB int64
	CORSOrigins []string
	StagingDir  string
}

// SetupRouter configures the Gin router with all routes
func SetupRouter(deps Dependencies, opts Options) *gin.Engine {
	switch opts.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware(deps.Logger))
	r.Use(middleware.CORS(middleware.NewCORSConfig(opts.CORSOrigins)))

	healthHandler := handler.NewHealthHandler(deps.DB)
	uploadHandler := handler.NewUploadHandler(deps.Submitter, opts.MaxUploadMB)
	filesHandler := handler.NewFilesHandler(deps.Products, deps.Raws)

	r.GET("/health", healthHandler.Health)
	r.GET("/metrics", gin.WrapH(metricsHandler(deps.Gatherer)))

	v1 := r.Group("/api/v1")
	{
		v1.POST("/upload/data/:checksum", uploadHandler.UploadData)

		v1.GET("/files", filesHandler.ListFiles)
		v1.GET("/files/:uuid", filesHandler.GetFile)
		v1.GET("/raw-files", filesHandler.ListRawFiles)

		if deps.Importer != nil {
			adminHandler := handler.NewAdminHandler(deps.Importer, opts.StagingDir)
			admin := v1.Group("/admin")
			admin.GET("/sources", adminHandler.ListSources)
			admin.POST("/import", adminHandler.TriggerImport)
			admin.GET("/import/status", adminHandler.GetImportStatus)
		}
	}

	return r
}

func metricsHandler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
