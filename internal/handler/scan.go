// Package handler exposes the scan, lookup and exposure services over HTTP.
package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/exposechain/exposechain/internal/identity"
	"github.com/exposechain/exposechain/internal/model"
	"github.com/exposechain/exposechain/internal/service"
	"github.com/exposechain/exposechain/internal/store"
)

// ScanHandler handles target scans, scan history and dedicated lookups.
type ScanHandler struct {
	scans   *service.ScanService
	lookups *service.LookupService
	tokens  *identity.TokenIssuer // nil = open mode
	logger  *zap.Logger
}

// NewScanHandler creates a ScanHandler. tokens may be nil to disable auth.
func NewScanHandler(scans *service.ScanService, lookups *service.LookupService, tokens *identity.TokenIssuer, logger *zap.Logger) *ScanHandler {
	return &ScanHandler{scans: scans, lookups: lookups, tokens: tokens, logger: logger}
}

// Register mounts the scan routes on rg.
func (h *ScanHandler) Register(rg *gin.RouterGroup) {
	rg.POST("/scan", identity.RequireToken(h.tokens, identity.ScopeScan), h.Scan)
	rg.GET("/scans", h.ListScans)
	rg.GET("/scans/:id", h.GetScan)

	rg.GET("/dns/:target", h.DNS)
	rg.GET("/whois/:domain", h.Whois)
	rg.GET("/geo/:ip", h.Geo)
	rg.GET("/ssl/:domain", h.SSL)
}

// Scan handles POST /scan.
func (h *ScanHandler) Scan(c *gin.Context) {
	var req model.ScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := h.scans.Scan(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// ListScans handles GET /scans?kind=&target=&limit=&offset=.
func (h *ScanHandler) ListScans(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	scans, err := h.scans.ListScans(c.Request.Context(), model.ScanFilter{
		Kind:   model.ScanKind(c.Query("kind")),
		Target: c.Query("target"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"scans": scans, "count": len(scans)})
}

// GetScan handles GET /scans/:id.
func (h *ScanHandler) GetScan(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	rec, err := h.scans.GetScan(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// DNS handles GET /dns/:target.
func (h *ScanHandler) DNS(c *gin.Context) {
	res, err := h.lookups.DNS(c.Request.Context(), c.Param("target"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Whois handles GET /whois/:domain.
func (h *ScanHandler) Whois(c *gin.Context) {
	res, err := h.lookups.Whois(c.Request.Context(), c.Param("domain"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Geo handles GET /geo/:ip.
func (h *ScanHandler) Geo(c *gin.Context) {
	res, err := h.lookups.Geo(c.Request.Context(), c.Param("ip"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// SSL handles GET /ssl/:domain.
func (h *ScanHandler) SSL(c *gin.Context) {
	res, err := h.lookups.SSL(c.Request.Context(), c.Param("domain"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *ScanHandler) writeError(c *gin.Context, err error) {
	writeError(c, h.logger, err)
}

// writeError maps service errors onto HTTP status codes.
func writeError(c *gin.Context, logger *zap.Logger, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidRequest):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		logger.Error("handler: request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid scan id"})
		return uuid.Nil, false
	}
	return id, true
}
