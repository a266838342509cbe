package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"verifytx_gateway/internal/metrics"
	"verifytx_gateway/internal/model"
	"verifytx_gateway/internal/service"
	"verifytx_gateway/internal/verifytx"
)

// Directory is the part of the API client exposed without orchestration.
type Directory interface {
	ListPayers(ctx context.Context, search string, limit int) (json.RawMessage, error)
	TestConnection(ctx context.Context) error
}

// VerifyRequest is the body of POST /api/v1/verifications.
type VerifyRequest struct {
	FormID      int64             `json:"form_id"`
	EntryID     int64             `json:"entry_id"`
	FieldValues map[string]string `json:"field_values" binding:"required"`
}

type VerifyResponse struct {
	Result  *model.VerificationResult `json:"result"`
	Display *model.Display            `json:"display"`
}

type ConnectionResponse struct {
	Connected bool   `json:"connected"`
	Error     string `json:"error,omitempty"`
}

// Handler exposes the verification service to the host over HTTP.
type Handler struct {
	service   service.VerificationService
	directory Directory
	logger    *zap.Logger
}

func NewHandler(svc service.VerificationService, directory Directory, logger *zap.Logger) *Handler {
	return &Handler{
		service:   svc,
		directory: directory,
		logger:    logger,
	}
}

// NewRouter builds the engine with health, metrics and the versioned API.
func NewRouter(h *Handler) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	h.RegisterRoutes(router.Group("/api/v1"))
	return router
}

func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	router.POST("/verifications", h.verify)
	router.GET("/entries/:entry_id/verifications", h.entryHistory)
	router.GET("/stats", h.stats)
	router.GET("/payers", h.payers)
	router.GET("/connection", h.connection)
}

// verify handles POST /api/v1/verifications. Verification failures are part
// of the result, so only a malformed body is rejected.
func (h *Handler) verify(c *gin.Context) {
	var req VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result := h.service.Verify(c.Request.Context(), req.FieldValues, req.FormID, req.EntryID)
	c.JSON(http.StatusOK, VerifyResponse{
		Result:  result,
		Display: h.service.FormatForDisplay(result),
	})
}

// entryHistory handles GET /api/v1/entries/:entry_id/verifications
func (h *Handler) entryHistory(c *gin.Context) {
	entryID, err := strconv.ParseInt(c.Param("entry_id"), 10, 64)
	if err != nil || entryID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid entry id"})
		return
	}

	records, err := h.service.GetEntryVerificationHistory(c.Request.Context(), entryID)
	if err != nil {
		h.logger.Error("Failed to get verification history", zap.Int64("entry_id", entryID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if records == nil {
		records = []*model.HistoryRecord{}
	}

	c.JSON(http.StatusOK, records)
}

// stats handles GET /api/v1/stats
func (h *Handler) stats(c *gin.Context) {
	var formID *int64
	if raw := c.Query("form_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid form id"})
			return
		}
		formID = &id
	}

	stats, err := h.service.GetVerificationStats(c.Request.Context(), formID, model.ParsePeriod(c.Query("period")))
	if err != nil {
		h.logger.Error("Failed to get verification stats", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, stats)
}

// payers handles GET /api/v1/payers
func (h *Handler) payers(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}

	payers, err := h.directory.ListPayers(c.Request.Context(), c.Query("q"), limit)
	if err != nil {
		h.logger.Error("Failed to list payers", zap.Error(err))
		h.upstreamError(c, err)
		return
	}

	c.Data(http.StatusOK, "application/json; charset=utf-8", payers)
}

// connection handles GET /api/v1/connection
func (h *Handler) connection(c *gin.Context) {
	if err := h.directory.TestConnection(c.Request.Context()); err != nil {
		msg := err.Error()
		if apiErr, ok := verifytx.AsError(err); ok {
			msg = apiErr.Message
		}
		c.JSON(http.StatusOK, ConnectionResponse{Connected: false, Error: msg})
		return
	}

	c.JSON(http.StatusOK, ConnectionResponse{Connected: true})
}

func (h *Handler) upstreamError(c *gin.Context, err error) {
	apiErr, ok := verifytx.AsError(err)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	body := gin.H{"error": apiErr.Message, "code": apiErr.Code}
	if apiErr.Ref != "" {
		body["error_ref"] = apiErr.Ref
	}
	c.JSON(http.StatusBadGateway, body)
}
