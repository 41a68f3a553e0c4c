package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"watermarkd/internal/domain"
	"watermarkd/internal/service"
	"watermarkd/internal/watermark"
	"watermarkd/pkg/multipart"
)

const imageFieldName = "image"

// maxUploadBytes caps how much of a request body the upload handler reads.
const maxUploadBytes = 20 * 1024 * 1024

type Handler struct {
	embed      service.EmbedService
	worker     *service.VerificationWorker
	ledger     LedgerReader
	domainName string
	log        *zap.Logger
}

// LedgerReader is the read-only slice of the ledger the poll endpoint needs.
type LedgerReader interface {
	Get(ctx context.Context, id string) (*domain.VerificationRecord, error)
}

func NewHandler(
	embed service.EmbedService,
	worker *service.VerificationWorker,
	ledger LedgerReader,
	domainName string,
	log *zap.Logger,
) *Handler {
	return &Handler{
		embed:      embed,
		worker:     worker,
		ledger:     ledger,
		domainName: domainName,
		log:        log,
	}
}

// CORS mirrors the permissive headers the public verify endpoints carry.
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// VerifyWatermark accepts a multipart image upload, creates a verification
// job, and returns the id to poll. The object store is never touched on a bad
// upload.
func (h *Handler) VerifyWatermark(c *gin.Context) {
	contentType := c.GetHeader("Content-Type")

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxUploadBytes))
	if err != nil {
		h.log.Error("Failed to read upload body", zap.Error(err))
		h.fail(c, http.StatusBadRequest, domain.ErrMalformedMultipart, "could not read request body")
		return
	}

	image, err := multipart.Extract(body, contentType, imageFieldName)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			h.fail(c, http.StatusBadRequest, err, "no image field in upload")
		case errors.Is(err, domain.ErrMalformedMultipart):
			h.fail(c, http.StatusBadRequest, err, "malformed multipart body")
		default:
			h.fail(c, http.StatusInternalServerError, err, "failed to parse upload")
		}
		return
	}

	id, err := h.worker.Submit(c.Request.Context(), image)
	if err != nil {
		h.log.Error("Failed to submit verification job", zap.Error(err))
		h.fail(c, http.StatusInternalServerError, err, "failed to start verification")
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"verification_id": id,
		"status":          string(domain.StatusProcessing),
		"message":         "watermark verification started",
		"check_url":       fmt.Sprintf("https://%s/check-result?id=%s", h.domainName, id),
	})
}

// CheckResult returns the verification record for a poll. Expired or unknown
// ids read as not found.
func (h *Handler) CheckResult(c *gin.Context) {
	id := c.Query("id")
	if id == "" {
		h.fail(c, http.StatusBadRequest, domain.ErrNotFound, "missing id parameter")
		return
	}

	record, err := h.ledger.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			h.fail(c, http.StatusNotFound, err, "verification result not found or expired")
			return
		}
		h.log.Error("Failed to read verification record", zap.String("id", id), zap.Error(err))
		h.fail(c, http.StatusInternalServerError, err, "failed to read verification result")
		return
	}

	c.JSON(http.StatusOK, record)
}

// Watermark handles the embed/extract action API.
func (h *Handler) Watermark(c *gin.Context) {
	var req domain.WatermarkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "invalid JSON in request body",
			"code":  "INVALID_REQUEST",
		})
		return
	}

	if req.Action == "" || req.BucketName == "" || req.Key == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "missing required parameters: action, bucketName, key",
			"code":  "INVALID_REQUEST",
		})
		return
	}

	switch req.Action {
	case "embed":
		h.handleEmbed(c, &req)
	case "extract":
		h.handleExtract(c, &req)
	default:
		c.JSON(http.StatusBadRequest, gin.H{
			"error": `invalid action, use "embed" or "extract"`,
			"code":  "INVALID_REQUEST",
		})
	}
}

func (h *Handler) handleEmbed(c *gin.Context, req *domain.WatermarkRequest) {
	if req.WatermarkData == nil || req.WatermarkData.PostID == "" {
		h.fail(c, http.StatusBadRequest, domain.ErrPayloadMissing, "missing required parameter: watermarkData.postId")
		return
	}

	result, err := h.embed.Embed(c.Request.Context(), req.BucketName, req.Key, req.WatermarkData.PostID)
	if err != nil {
		h.log.Error("Embed pipeline failed",
			zap.String("bucket", req.BucketName),
			zap.String("key", req.Key),
			zap.Error(err))
		h.fail(c, embedStatus(err), err, "failed to embed watermark")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "watermark embedded and verified successfully",
		"method":  watermark.Method,
		"size":    result.Size,
		"verificationResult": gin.H{
			"extractedId": result.ExtractedID,
			"confidence":  result.Confidence,
			"verified":    result.Verified,
		},
	})
}

func (h *Handler) handleExtract(c *gin.Context, req *domain.WatermarkRequest) {
	decoded, err := h.embed.Extract(c.Request.Context(), req.BucketName, req.Key)
	if err != nil {
		h.log.Error("Extraction failed",
			zap.String("bucket", req.BucketName),
			zap.String("key", req.Key),
			zap.Error(err))
		h.fail(c, embedStatus(err), err, "failed to extract watermark")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "watermark extraction completed",
		"result": gin.H{
			"extractedId": decoded.Payload,
			"present":     decoded.Present,
			"confidence":  decoded.Confidence,
			"method":      watermark.Method,
		},
	})
}

func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "OK"})
}

// fail writes the structured error body with the stable machine-readable
// code.
func (h *Handler) fail(c *gin.Context, status int, err error, message string) {
	c.JSON(status, gin.H{
		"error": message,
		"code":  domain.ReasonCode(err),
	})
}

// embedStatus maps pipeline sentinels to HTTP statuses.
func embedStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrNoSource):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrPayloadMissing),
		errors.Is(err, domain.ErrPayloadTooLong):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrExceedsBudget):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrCodecUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, domain.ErrVerificationFailed):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}
