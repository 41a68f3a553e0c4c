package domain

import "errors"

// Pipeline and transport sentinels. Handlers map these to HTTP status codes
// and stable machine-readable reason codes; asynchronous jobs surface them
// only through the terminal error state.
var (
	ErrNotFound           = errors.New("not found")
	ErrMalformedMultipart = errors.New("malformed multipart body")
	ErrPayloadMissing     = errors.New("watermark payload missing")
	ErrPayloadTooLong     = errors.New("watermark payload exceeds codec capacity")
	ErrNoSource           = errors.New("source image not found")
	ErrCodecUnavailable   = errors.New("watermark codec unavailable")
	ErrVerificationFailed = errors.New("watermark verification failed")
	ErrExceedsBudget      = errors.New("image exceeds size budget")
	ErrStorageFailure     = errors.New("object storage failure")
)

// ReasonCode returns the stable machine-readable code for err, or "INTERNAL"
// when the error is not part of the taxonomy.
func ReasonCode(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrMalformedMultipart):
		return "MALFORMED_MULTIPART"
	case errors.Is(err, ErrPayloadMissing):
		return "PAYLOAD_MISSING"
	case errors.Is(err, ErrPayloadTooLong):
		return "PAYLOAD_TOO_LONG"
	case errors.Is(err, ErrNoSource):
		return "NO_SOURCE"
	case errors.Is(err, ErrCodecUnavailable):
		return "CODEC_UNAVAILABLE"
	case errors.Is(err, ErrVerificationFailed):
		return "VERIFICATION_FAILED"
	case errors.Is(err, ErrExceedsBudget):
		return "EXCEEDS_BUDGET"
	case errors.Is(err, ErrStorageFailure):
		return "STORAGE_FAILURE"
	}
	return "INTERNAL"
}
