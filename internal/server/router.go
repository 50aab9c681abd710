package server

import (
	"embed"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

//go:embed static/index.html
var static embed.FS

// RouterOptions configures the cross-cutting middleware.
type RouterOptions struct {
	CORSOrigins []string
	// RateLimiter applies to /api routes when set.
	RateLimiter *RateLimiter
}

// NewRouter wires the handlers behind request id, logging, recovery and CORS middleware.
// AccessLog sits outside Recovery so panicked requests still get their 500 line.
func NewRouter(h *Handler, opts RouterOptions, log *zap.Logger) *gin.Engine {
	if log == nil {
		log = zap.NewNop()
	}
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(RequestID(), AccessLog(log), Recovery(log), cors.New(corsConfig(opts.CORSOrigins)))

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, errorBody(msgNotFound))
	})
	r.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, errorBody(msgMethodNotAllowed))
	})

	r.GET("/", landingPage)
	r.GET("/health", h.Health)

	api := r.Group("/api")
	if opts.RateLimiter != nil {
		api.Use(opts.RateLimiter.Middleware())
	}
	api.POST("/ask", h.Ask)
	api.POST("/retrieve", h.Retrieve)
	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", requestIDHeader},
		ExposeHeaders: []string{requestIDHeader},
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}

func landingPage(c *gin.Context) {
	page, err := static.ReadFile("static/index.html")
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorBody(msgInternal))
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", page)
}
