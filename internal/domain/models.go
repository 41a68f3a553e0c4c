package domain

import (
	"time"
)

// MimeHint is the image format inferred from the magic-number signature,
// independent of any declared content type.
type MimeHint string

const (
	MimeJPEG    MimeHint = "image/jpeg"
	MimePNG     MimeHint = "image/png"
	MimeWEBP    MimeHint = "image/webp"
	MimeGIF     MimeHint = "image/gif"
	MimeUnknown MimeHint = "application/octet-stream"
)

// ImageBlob is an immutable image byte sequence. Every transform produces a
// new blob; a blob is never mutated in place.
type ImageBlob struct {
	Bytes    []byte
	MimeHint MimeHint
}

// VerificationStatus advances monotonically; completed and error are terminal.
type VerificationStatus string

const (
	StatusStarted    VerificationStatus = "started"
	StatusProcessing VerificationStatus = "processing"
	StatusCompleted  VerificationStatus = "completed"
	StatusError      VerificationStatus = "error"
)

// Terminal reports whether no further status writes may occur.
func (s VerificationStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// rank orders statuses for monotonicity checks.
func (s VerificationStatus) rank() int {
	switch s {
	case StatusStarted:
		return 0
	case StatusProcessing:
		return 1
	case StatusCompleted, StatusError:
		return 2
	}
	return -1
}

// CanAdvanceTo reports whether moving from s to next preserves monotonic
// progression. Terminal states accept no further transitions.
func (s VerificationStatus) CanAdvanceTo(next VerificationStatus) bool {
	if s.Terminal() {
		return false
	}
	return next.rank() > s.rank()
}

// VerifyResult is the outcome of decoding a watermark from an uploaded image.
// HasProvenance is true only when the provenance index affirmatively resolves
// the extracted id.
type VerifyResult struct {
	HasWatermark  bool    `json:"hasWatermark"`
	ExtractedID   string  `json:"extractedId,omitempty"`
	Confidence    float64 `json:"confidence"`
	HasProvenance bool    `json:"hasProvenance"`
	ProvenanceURL string  `json:"provenanceUrl,omitempty"`
}

// VerificationRecord is the persisted state of one verification request.
type VerificationRecord struct {
	VerificationID string             `json:"verification_id"`
	Status         VerificationStatus `json:"status"`
	Timestamp      int64              `json:"timestamp"`
	TTL            int64              `json:"ttl"`
	ResultData     *VerifyResult      `json:"result_data,omitempty"`
	ErrorMessage   string             `json:"error_message,omitempty"`
}

// NewVerificationRecord creates a record in the started state with the given
// retention window.
func NewVerificationRecord(id string, retention time.Duration) *VerificationRecord {
	now := time.Now()
	return &VerificationRecord{
		VerificationID: id,
		Status:         StatusStarted,
		Timestamp:      now.Unix(),
		TTL:            now.Add(retention).Unix(),
	}
}

// EmbedResult reports a successful embed-and-verify cycle.
type EmbedResult struct {
	ExtractedID string  `json:"extractedId"`
	Confidence  float64 `json:"confidence"`
	Verified    bool    `json:"verified"`
	Size        int     `json:"-"`
}

// WatermarkData carries the identifiers a client asks to embed.
type WatermarkData struct {
	PostID    string `json:"postId"`
	UserID    string `json:"userId"`
	Timestamp string `json:"timestamp"`
}

// WatermarkRequest is the wire body of POST /api/watermark.
type WatermarkRequest struct {
	Action        string         `json:"action"`
	BucketName    string         `json:"bucketName"`
	Key           string         `json:"key"`
	WatermarkData *WatermarkData `json:"watermarkData,omitempty"`
}

// ProvenanceData is what the provenance index returns for a resolved payload.
type ProvenanceData struct {
	PostID        string `json:"postId"`
	ProvenanceURL string `json:"provenanceUrl"`
	Verified      bool   `json:"verified"`
	Timestamp     string `json:"timestamp,omitempty"`
}
