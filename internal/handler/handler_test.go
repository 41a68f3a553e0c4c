package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"watermarkd/internal/domain"
	"watermarkd/internal/service"
	"watermarkd/internal/watermark"
)

type fakeEmbedService struct {
	embedResult *domain.EmbedResult
	embedErr    error
	decoded     *watermark.Decoded
	decodeErr   error
	embedCalls  int
}

func (f *fakeEmbedService) Embed(ctx context.Context, bucket, key, payload string) (*domain.EmbedResult, error) {
	f.embedCalls++
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	return f.embedResult, nil
}

func (f *fakeEmbedService) Extract(ctx context.Context, bucket, key string) (*watermark.Decoded, error) {
	if f.decodeErr != nil {
		return nil, f.decodeErr
	}
	return f.decoded, nil
}

type fakeExtractService struct {
	result *domain.VerifyResult
	err    error
}

func (f *fakeExtractService) Verify(ctx context.Context, image []byte) (*domain.VerifyResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type memLedger struct {
	mu      sync.Mutex
	records map[string]*domain.VerificationRecord
}

func newMemLedger() *memLedger {
	return &memLedger{records: map[string]*domain.VerificationRecord{}}
}

func (m *memLedger) Put(ctx context.Context, record *domain.VerificationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *record
	m.records[record.VerificationID] = &cp
	return nil
}

func (m *memLedger) Get(ctx context.Context, id string) (*domain.VerificationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.records[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}
	cp := *record
	return &cp, nil
}

func (m *memLedger) Close() error { return nil }

func newRouter(t *testing.T, embed *fakeEmbedService, extract *fakeExtractService, ledger *memLedger) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	worker := service.NewVerificationWorker(extract, ledger, 24*time.Hour, 8, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	worker.Start(ctx)
	t.Cleanup(cancel)

	h := NewHandler(embed, worker, ledger, "example.app", zap.NewNop())

	router := gin.New()
	router.Use(CORS())
	router.GET("/health", h.HealthCheck)
	api := router.Group("/api")
	api.POST("/verify-watermark", h.VerifyWatermark)
	api.GET("/check-result", h.CheckResult)
	api.POST("/watermark", h.Watermark)
	return router
}

func multipartBody(field, contentType, content string) (body []byte, header string) {
	const boundary = "testboundary1234"
	var buf bytes.Buffer
	buf.WriteString("--" + boundary + "\r\n")
	buf.WriteString(`Content-Disposition: form-data; name="` + field + `"; filename="f.png"` + "\r\n")
	buf.WriteString("Content-Type: " + contentType + "\r\n\r\n")
	buf.WriteString(content + "\r\n")
	buf.WriteString("--" + boundary + "--\r\n")
	return buf.Bytes(), "multipart/form-data; boundary=" + boundary
}

func TestVerifyWatermark_AcceptsUploadAndReturnsJobID(t *testing.T) {
	extract := &fakeExtractService{result: &domain.VerifyResult{HasWatermark: false}}
	ledger := newMemLedger()
	router := newRouter(t, &fakeEmbedService{}, extract, ledger)

	body, contentType := multipartBody("image", "image/png", "PNGDATA")
	req := httptest.NewRequest(http.MethodPost, "/api/verify-watermark", bytes.NewReader(body))
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusAccepted, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	id, _ := resp["verification_id"].(string)
	assert.NotEmpty(t, id)
	assert.Contains(t, resp["check_url"], id)

	// The started record is already pollable.
	record, err := ledger.Get(context.Background(), id)
	require.NoError(t, err)
	assert.NotEmpty(t, record.Status)
}

func TestVerifyWatermark_MissingImageFieldIs400(t *testing.T) {
	router := newRouter(t, &fakeEmbedService{}, &fakeExtractService{}, newMemLedger())

	body, contentType := multipartBody("avatar", "image/png", "PNGDATA")
	req := httptest.NewRequest(http.MethodPost, "/api/verify-watermark", bytes.NewReader(body))
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "NOT_FOUND")
}

func TestVerifyWatermark_MalformedContentTypeIs400(t *testing.T) {
	router := newRouter(t, &fakeEmbedService{}, &fakeExtractService{}, newMemLedger())

	req := httptest.NewRequest(http.MethodPost, "/api/verify-watermark", bytes.NewReader([]byte("junk")))
	req.Header.Set("Content-Type", "multipart/form-data")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "MALFORMED_MULTIPART")
}

func TestCheckResult_ReturnsRecord(t *testing.T) {
	ledger := newMemLedger()
	record := domain.NewVerificationRecord("known-id", 24*time.Hour)
	record.Status = domain.StatusCompleted
	record.ResultData = &domain.VerifyResult{HasWatermark: true, ExtractedID: "abc12345", Confidence: 0.9}
	require.NoError(t, ledger.Put(context.Background(), record))

	router := newRouter(t, &fakeEmbedService{}, &fakeExtractService{}, ledger)

	req := httptest.NewRequest(http.MethodGet, "/api/check-result?id=known-id", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var got domain.VerificationRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, domain.StatusCompleted, got.Status)
	require.NotNil(t, got.ResultData)
	assert.Equal(t, "abc12345", got.ResultData.ExtractedID)
}

func TestCheckResult_UnknownIDIs404(t *testing.T) {
	router := newRouter(t, &fakeEmbedService{}, &fakeExtractService{}, newMemLedger())

	req := httptest.NewRequest(http.MethodGet, "/api/check-result?id=nope", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCheckResult_MissingIDIs400(t *testing.T) {
	router := newRouter(t, &fakeEmbedService{}, &fakeExtractService{}, newMemLedger())

	req := httptest.NewRequest(http.MethodGet, "/api/check-result", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWatermark_EmbedSuccess(t *testing.T) {
	embed := &fakeEmbedService{embedResult: &domain.EmbedResult{
		ExtractedID: "abc12345",
		Confidence:  0.94,
		Verified:    true,
		Size:        812345,
	}}
	router := newRouter(t, embed, &fakeExtractService{}, newMemLedger())

	reqBody := `{"action":"embed","bucketName":"posts","key":"p1/image1.png","watermarkData":{"postId":"abc12345","userId":"u1","timestamp":"2025-01-01T00:00:00Z"}}`
	req := httptest.NewRequest(http.MethodPost, "/api/watermark", bytes.NewReader([]byte(reqBody)))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Method             string `json:"method"`
		Size               int    `json:"size"`
		VerificationResult struct {
			ExtractedID string  `json:"extractedId"`
			Confidence  float64 `json:"confidence"`
			Verified    bool    `json:"verified"`
		} `json:"verificationResult"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "trustmark", resp.Method)
	assert.Equal(t, 812345, resp.Size)
	assert.Equal(t, "abc12345", resp.VerificationResult.ExtractedID)
	assert.True(t, resp.VerificationResult.Verified)
}

func TestWatermark_EmbedWithoutPayloadIs400(t *testing.T) {
	embed := &fakeEmbedService{}
	router := newRouter(t, embed, &fakeExtractService{}, newMemLedger())

	reqBody := `{"action":"embed","bucketName":"posts","key":"k"}`
	req := httptest.NewRequest(http.MethodPost, "/api/watermark", bytes.NewReader([]byte(reqBody)))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "PAYLOAD_MISSING")
	assert.Zero(t, embed.embedCalls)
}

func TestWatermark_MissingParamsIs400(t *testing.T) {
	router := newRouter(t, &fakeEmbedService{}, &fakeExtractService{}, newMemLedger())

	reqBody := `{"action":"embed"}`
	req := httptest.NewRequest(http.MethodPost, "/api/watermark", bytes.NewReader([]byte(reqBody)))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWatermark_InvalidActionIs400(t *testing.T) {
	router := newRouter(t, &fakeEmbedService{}, &fakeExtractService{}, newMemLedger())

	reqBody := `{"action":"transmogrify","bucketName":"b","key":"k"}`
	req := httptest.NewRequest(http.MethodPost, "/api/watermark", bytes.NewReader([]byte(reqBody)))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWatermark_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"no source", domain.ErrNoSource, http.StatusNotFound, "NO_SOURCE"},
		{"codec down", domain.ErrCodecUnavailable, http.StatusBadGateway, "CODEC_UNAVAILABLE"},
		{"verification failed", domain.ErrVerificationFailed, http.StatusUnprocessableEntity, "VERIFICATION_FAILED"},
		{"exceeds budget", domain.ErrExceedsBudget, http.StatusUnprocessableEntity, "EXCEEDS_BUDGET"},
		{"storage failure", domain.ErrStorageFailure, http.StatusInternalServerError, "STORAGE_FAILURE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			embed := &fakeEmbedService{embedErr: tt.err}
			router := newRouter(t, embed, &fakeExtractService{}, newMemLedger())

			reqBody := `{"action":"embed","bucketName":"b","key":"k","watermarkData":{"postId":"abc12345"}}`
			req := httptest.NewRequest(http.MethodPost, "/api/watermark", bytes.NewReader([]byte(reqBody)))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Contains(t, w.Body.String(), tt.wantCode)
		})
	}
}

func TestWatermark_Extract(t *testing.T) {
	embed := &fakeEmbedService{decoded: &watermark.Decoded{
		Payload:    "abc12345",
		Present:    true,
		Confidence: 0.91,
	}}
	router := newRouter(t, embed, &fakeExtractService{}, newMemLedger())

	reqBody := `{"action":"extract","bucketName":"posts","key":"p1/image1.png"}`
	req := httptest.NewRequest(http.MethodPost, "/api/watermark", bytes.NewReader([]byte(reqBody)))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "abc12345")
}

func TestCORS_PreflightIs204(t *testing.T) {
	router := newRouter(t, &fakeEmbedService{}, &fakeExtractService{}, newMemLedger())

	req := httptest.NewRequest(http.MethodOptions, "/api/check-result", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestHealthCheck(t *testing.T) {
	router := newRouter(t, &fakeEmbedService{}, &fakeExtractService{}, newMemLedger())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}
