package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"pdf_compactor/pdf"
	"pdf_compactor/pipeline"
	"pdf_compactor/split"
)

// Config holds the server configuration and the shared processing components.
type Config struct {
	MaxFileSize int64
	// RunsDir holds the inputs and outputs of every request.
	RunsDir string
	// RunTTL is how long results stay downloadable.
	RunTTL time.Duration

	// Defaults is the pipeline configuration used when a request does not
	// override mode, level or budget. OutputDir and TempDir are ignored.
	Defaults pipeline.Config
	Probe    split.Probe

	Compressor pipeline.Compressor
	Renderer   pdf.Renderer
	// BackendAvailable reports whether an external compressor is installed.
	BackendAvailable func() bool

	Logger zerolog.Logger
}

func SetupRoutes(r *gin.Engine, config *Config) {
	r.Use(RequestLogger(config.Logger))

	apiGroup := r.Group("/api/pdf")
	{
		apiGroup.POST("/process", func(c *gin.Context) { HandleProcess(c, config) })
		apiGroup.GET("/runs/:run/:name", func(c *gin.Context) { HandleDownload(c, config) })
		apiGroup.POST("/compress", func(c *gin.Context) { HandleCompress(c, config) })
		apiGroup.POST("/analyze", func(c *gin.Context) { HandleAnalyze(c, config) })
	}

	r.GET("/health", func(c *gin.Context) {
		backend := config.BackendAvailable != nil && config.BackendAvailable()
		c.JSON(http.StatusOK, gin.H{
			"status":      "healthy",
			"service":     "pdf_compactor",
			"ghostscript": backend,
		})
	})
}
