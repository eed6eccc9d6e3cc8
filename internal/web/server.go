// Package web gin server
package web

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Laisky/errors/v2"
	gmw "github.com/Laisky/gin-middlewares/v7"
	logSDK "github.com/Laisky/go-utils/v6/log"
	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/Laisky/synset-tree/internal/records"
	"github.com/Laisky/synset-tree/library/log"
	"github.com/Laisky/synset-tree/library/throttle"
)

const (
	// HeaderRequestID carries the per-request id.
	HeaderRequestID = "X-Request-Id"

	shutdownTimeout = 10 * time.Second
)

// Options configures the HTTP server.
type Options struct {
	Addr  string
	Debug bool
	// AllowedOrigins lists domains whose browsers may call the API cross-origin.
	// Each entry also admits its subdomains. "*" admits every origin.
	AllowedOrigins []string
	// FrontendDist is the built client directory. Empty means ./public.
	FrontendDist  string
	Records       *records.HTTPHandler
	Logger        logSDK.Logger
	DisableMetric bool
	// Throttle limits /api requests per client ip. Nil disables limiting.
	Throttle *throttle.Throttle
}

// NewEngine builds the gin engine with every route mounted.
func NewEngine(opt Options) (*gin.Engine, error) {
	logger := opt.Logger
	if logger == nil {
		logger = log.Logger.Named("web")
	}
	if !opt.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(
		gin.Recovery(),
		requestID,
		gmw.NewLoggerMiddleware(
			gmw.WithLoggerMwColored(),
			gmw.WithLevel(logger.Level().String()),
			gmw.WithLogger(logger.Named("gin")),
		),
		allowCORS(opt.AllowedOrigins),
	)
	if opt.Throttle != nil {
		engine.Use(rateLimit(opt.Throttle))
	}

	if !opt.DisableMetric {
		if err := gmw.EnableMetric(engine); err != nil {
			return nil, errors.Wrap(err, "enable metric server")
		}
	}

	engine.Any("/health", func(ctx *gin.Context) {
		ctx.String(http.StatusOK, "hello, world")
	})

	if opt.Records != nil {
		opt.Records.Register(engine)
	}

	site, err := newFrontend(opt.FrontendDist, logger.Named("frontend"))
	if err != nil {
		logger.Warn("frontend disabled", zap.Error(err))
	}
	engine.NoRoute(func(ctx *gin.Context) {
		if site == nil || strings.HasPrefix(ctx.Request.URL.Path, "/api/") {
			ctx.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		site.serve(ctx)
	})

	return engine, nil
}

// RunServer serves until ctx is done, then drains in-flight requests.
func RunServer(ctx context.Context, opt Options) error {
	engine, err := NewEngine(opt)
	if err != nil {
		return errors.Wrap(err, "build engine")
	}

	logger := opt.Logger
	if logger == nil {
		logger = log.Logger.Named("web")
	}

	srv := &http.Server{
		Addr:              opt.Addr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening on http", zap.String("addr", opt.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "http server exit")
	case <-ctx.Done():
	}

	logger.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "shutdown http server")
	}

	return nil
}

// requestID propagates or assigns the X-Request-Id header.
func requestID(ctx *gin.Context) {
	id := strings.TrimSpace(ctx.GetHeader(HeaderRequestID))
	if id == "" {
		id = uuid.NewString()
	}

	ctx.Set(HeaderRequestID, id)
	ctx.Header(HeaderRequestID, id)
	ctx.Next()
}

// originAllowed reports whether origin's host equals or is a subdomain of one of domains.
func originAllowed(origin string, domains []string) bool {
	parsed, err := url.Parse(origin)
	if err != nil {
		return false
	}
	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return false
	}

	for _, domain := range domains {
		domain = strings.ToLower(strings.TrimSpace(domain))
		switch {
		case domain == "":
		case domain == "*":
			return true
		case host == domain, strings.HasSuffix(host, "."+domain):
			return true
		}
	}

	return false
}

func allowCORS(domains []string) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		origin := ctx.Request.Header.Get("Origin")
		allowedOrigin := ""
		if origin != "" && originAllowed(origin, domains) {
			allowedOrigin = origin
		}

		if allowedOrigin != "" {
			ctx.Header("Access-Control-Allow-Origin", allowedOrigin)
			ctx.Header("Access-Control-Allow-Credentials", "true")
			ctx.Header("Access-Control-Allow-Methods", "GET, OPTIONS, HEAD")
			ctx.Header("Access-Control-Allow-Headers", "Content-Type, Accept, Origin, X-Requested-With, "+HeaderRequestID)
			ctx.Header("Access-Control-Max-Age", "86400") // 24 hours
			ctx.Header("Vary", "Origin")

			if ctx.Request.Method == http.MethodOptions {
				ctx.AbortWithStatus(http.StatusNoContent)
				return
			}
		} else if origin != "" && ctx.Request.Method == http.MethodOptions {
			// deny preflight from origins outside the allow-list
			ctx.AbortWithStatus(http.StatusForbidden)
			return
		}

		ctx.Next()
	}
}

// rateLimit rejects /api requests once the caller's budget is spent.
func rateLimit(t *throttle.Throttle) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if !strings.HasPrefix(ctx.Request.URL.Path, "/api/") {
			ctx.Next()
			return
		}

		if !t.Allow(ctx.ClientIP()) {
			if logger := gmw.GetLogger(ctx); logger != nil {
				logger.Debug("rate limited", zap.String("client", ctx.ClientIP()))
			}
			ctx.Header("Retry-After", "1")
			ctx.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}

		ctx.Next()
	}
}
