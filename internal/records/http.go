package records

import (
	"context"
	"net/http"
	"time"

	gmw "github.com/Laisky/gin-middlewares/v7"
	logSDK "github.com/Laisky/go-utils/v6/log"
	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"

	"github.com/Laisky/synset-tree/library/log"
)

const (
	// QueryParamSearch carries the substring search term.
	QueryParamSearch = "search"
	// QueryParamParent carries the parent path whose children are listed.
	QueryParamParent = "parentName"
)

// Querier answers a records intent.
type Querier interface {
	Query(ctx context.Context, intent Intent) ([]*Node, error)
}

// HTTPHandler exposes the records query over GET /api/records.
type HTTPHandler struct {
	service Querier
	timeout time.Duration
	logger  logSDK.Logger
}

// NewHTTPHandler builds the handler. A non-positive timeout falls back to DefaultQueryTimeout.
func NewHTTPHandler(service Querier, timeout time.Duration, logger logSDK.Logger) *HTTPHandler {
	if timeout <= 0 {
		timeout = DefaultQueryTimeout
	}
	if logger == nil {
		logger = log.Logger.Named("records_http")
	}

	return &HTTPHandler{service: service, timeout: timeout, logger: logger}
}

// Register mounts the records routes.
func (h *HTTPHandler) Register(r gin.IRoutes) {
	r.GET("/api/records", h.List)
}

// List handles `GET /api/records?search=...&parentName=...`.
func (h *HTTPHandler) List(c *gin.Context) {
	if h.service == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "records service unavailable"})
		return
	}

	intent := ParseIntent(c.Query(QueryParamSearch), c.Query(QueryParamParent))

	ctx, cancel := context.WithTimeout(c, h.timeout)
	defer cancel()

	nodes, err := h.service.Query(ctx, intent)
	if err != nil {
		h.log(c).Error("query records",
			zap.Error(err),
			zap.String("intent", intent.Kind.String()),
			zap.String("search", intent.Term),
			zap.String("parent", intent.Parent))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load records"})
		return
	}

	c.JSON(http.StatusOK, nodes)
}

func (h *HTTPHandler) log(c *gin.Context) logSDK.Logger {
	if logger := gmw.GetLogger(c); logger != nil {
		return logger
	}

	return h.logger
}
