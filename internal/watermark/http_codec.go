package watermark

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"watermarkd/internal/domain"
)

// HTTPCodec talks JSON over HTTP to a codec sidecar exposing POST /embed and
// POST /decode with base64 image payloads.
type HTTPCodec struct {
	endpoint string
	client   *http.Client
	log      *zap.Logger
}

func NewHTTPCodec(endpoint string, timeout time.Duration, log *zap.Logger) *HTTPCodec {
	return &HTTPCodec{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		log:      log,
	}
}

type embedRequest struct {
	Image   string `json:"image"`
	Payload string `json:"payload"`
}

type embedResponse struct {
	Image string `json:"image"`
	Error string `json:"error,omitempty"`
}

type decodeRequest struct {
	Image string `json:"image"`
}

type decodeResponse struct {
	Payload    string  `json:"payload"`
	Present    bool    `json:"present"`
	Confidence float64 `json:"confidence"`
	Error      string  `json:"error,omitempty"`
}

func (c *HTTPCodec) Embed(ctx context.Context, image []byte, payload string) ([]byte, error) {
	var resp embedResponse
	err := c.post(ctx, "/embed", embedRequest{
		Image:   base64.StdEncoding.EncodeToString(image),
		Payload: payload,
	}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("%w: %s", domain.ErrCodecUnavailable, resp.Error)
	}

	marked, err := base64.StdEncoding.DecodeString(resp.Image)
	if err != nil {
		return nil, fmt.Errorf("%w: corrupt image encoding in codec response: %v", domain.ErrCodecUnavailable, err)
	}

	c.log.Debug("codec embed completed",
		zap.Int("input_size", len(image)),
		zap.Int("output_size", len(marked)))

	return marked, nil
}

func (c *HTTPCodec) Decode(ctx context.Context, image []byte) (*Decoded, error) {
	var resp decodeResponse
	err := c.post(ctx, "/decode", decodeRequest{
		Image: base64.StdEncoding.EncodeToString(image),
	}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("%w: %s", domain.ErrCodecUnavailable, resp.Error)
	}

	return &Decoded{
		Payload:    resp.Payload,
		Present:    resp.Present,
		Confidence: resp.Confidence,
	}, nil
}

func (c *HTTPCodec) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal codec request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build codec request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrCodecUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read codec response: %v", domain.ErrCodecUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: codec returned %d: %s", domain.ErrCodecUnavailable, resp.StatusCode, data)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: decode codec response: %v", domain.ErrCodecUnavailable, err)
	}
	return nil
}
