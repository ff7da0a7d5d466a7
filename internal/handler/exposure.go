package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/exposechain/exposechain/internal/identity"
	"github.com/exposechain/exposechain/internal/model"
	"github.com/exposechain/exposechain/internal/risk"
	"github.com/exposechain/exposechain/internal/service"
)

// ExposureHandler handles discovery runs, risk scoring and chain mapping.
type ExposureHandler struct {
	svc    *service.ExposureService
	tokens *identity.TokenIssuer
	logger *zap.Logger
}

// NewExposureHandler creates an ExposureHandler. tokens may be nil to disable auth.
func NewExposureHandler(svc *service.ExposureService, tokens *identity.TokenIssuer, logger *zap.Logger) *ExposureHandler {
	return &ExposureHandler{svc: svc, tokens: tokens, logger: logger}
}

// Register mounts the exposure routes on rg.
func (h *ExposureHandler) Register(rg *gin.RouterGroup) {
	exposures := rg.Group("/exposures")
	{
		exposures.POST("/scan", identity.RequireToken(h.tokens, identity.ScopeDiscover), h.Discover)
		exposures.POST("/score", h.Score)
	}
	rg.POST("/chains", h.BuildChains)
	rg.GET("/scans/:id/exposures", h.ListExposures)
	rg.GET("/scans/:id/chains", h.ScanChains)
	rg.GET("/risk/summary", h.RiskSummary)
}

// Discover handles POST /exposures/scan.
func (h *ExposureHandler) Discover(c *gin.Context) {
	var req model.DiscoverRequest
	// An empty body runs every configured source.
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	rec, err := h.svc.Discover(c.Request.Context(), req.Sources)
	if err != nil {
		if rec != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "scan": rec})
			return
		}
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// Score handles POST /exposures/score.
func (h *ExposureHandler) Score(c *gin.Context) {
	var e risk.Exposure
	if err := c.ShouldBindJSON(&e); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res := h.svc.Score(e)
	c.JSON(http.StatusOK, gin.H{
		"risk_score":   res.Score,
		"severity":     res.Severity(),
		"risk_factors": res.Factors,
		"details":      res.Details,
	})
}

// BuildChains handles POST /chains.
func (h *ExposureHandler) BuildChains(c *gin.Context) {
	var req model.BuildChainsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, service.BuildChains(req.Records, req.Domain))
}

// ListExposures handles GET /scans/:id/exposures.
func (h *ExposureHandler) ListExposures(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	exposures, err := h.svc.Exposures(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"exposures": exposures, "count": len(exposures)})
}

// ScanChains handles GET /scans/:id/chains?domain=.
func (h *ExposureHandler) ScanChains(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	res, err := h.svc.ChainsForScan(c.Request.Context(), id, c.Query("domain"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// RiskSummary handles GET /risk/summary.
func (h *ExposureHandler) RiskSummary(c *gin.Context) {
	summary, err := h.svc.RiskSummary(c.Request.Context())
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}
