package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"watermarkd/internal/config"
	"watermarkd/internal/domain"
	"watermarkd/internal/repository"
	"watermarkd/internal/watermark"
	"watermarkd/pkg/imaging"
)

// EmbedService runs the embed-then-verify pipeline. From the object store's
// point of view the pipeline is atomic: either a verified artifact replaces
// the source object, or nothing is written.
type EmbedService interface {
	Embed(ctx context.Context, bucket, key, payload string) (*domain.EmbedResult, error)
	Extract(ctx context.Context, bucket, key string) (*watermark.Decoded, error)
}

type embedService struct {
	store   repository.ObjectStore
	codec   watermark.Codec
	encoder *imaging.Encoder
	cfg     *config.WatermarkConfig
	log     *zap.Logger
}

func NewEmbedService(
	store repository.ObjectStore,
	codec watermark.Codec,
	encoder *imaging.Encoder,
	cfg *config.WatermarkConfig,
	log *zap.Logger,
) EmbedService {
	return &embedService{
		store:   store,
		codec:   codec,
		encoder: encoder,
		cfg:     cfg,
		log:     log,
	}
}

// Embed fetches the source image, compresses it under the byte budget, embeds
// payload, re-compresses if embedding inflated it past the budget, verifies
// the mark round-trips on the final bytes, and only then uploads. Each step
// is a hard gate on the next.
func (s *embedService) Embed(ctx context.Context, bucket, key, payload string) (*domain.EmbedResult, error) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return nil, domain.ErrPayloadMissing
	}
	if len(payload) > s.cfg.MaxPayloadLen {
		return nil, fmt.Errorf("%w: %d > %d characters", domain.ErrPayloadTooLong, len(payload), s.cfg.MaxPayloadLen)
	}

	source, err := s.store.Download(ctx, bucket, key)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: s3://%s/%s", domain.ErrNoSource, bucket, key)
		}
		return nil, err
	}

	s.log.Info("Embedding watermark",
		zap.String("bucket", bucket),
		zap.String("key", key),
		zap.String("payload", payload),
		zap.Int("source_size", len(source)))

	// Embedding can inflate the artifact, so the budget applies before and
	// after the codec call.
	blob, err := s.encoder.FitToBudget(imaging.NewBlob(source), s.cfg.MaxBytes)
	if err != nil {
		return nil, err
	}

	marked, err := s.codec.Embed(ctx, blob.Bytes, payload)
	if err != nil {
		return nil, err
	}

	if len(marked) > s.cfg.MaxBytes {
		s.log.Info("Watermarked image exceeds budget, re-compressing",
			zap.Int("marked_size", len(marked)),
			zap.Int("max_bytes", s.cfg.MaxBytes))
		reblob, err := s.encoder.FitToBudget(imaging.NewBlob(marked), s.cfg.MaxBytes)
		if err != nil {
			return nil, err
		}
		// The mark is not re-embedded here; the verify gate below runs on
		// these recompressed bytes, so a mark destroyed by this pass fails
		// the embed instead of shipping silently.
		marked = reblob.Bytes
	}

	decoded, err := s.verify(ctx, marked, payload)
	if err != nil {
		return nil, err
	}

	// The codec emits PNG regardless of the source format.
	if err := s.store.Upload(ctx, bucket, key, marked, string(domain.MimePNG)); err != nil {
		return nil, err
	}

	s.log.Info("Watermark embedded and verified",
		zap.String("key", key),
		zap.String("extracted_id", decoded.Payload),
		zap.Float64("confidence", decoded.Confidence),
		zap.Int("final_size", len(marked)))

	return &domain.EmbedResult{
		ExtractedID: strings.TrimSpace(decoded.Payload),
		Confidence:  decoded.Confidence,
		Verified:    true,
		Size:        len(marked),
	}, nil
}

// verify decodes the produced bytes and requires presence, payload equality
// after whitespace trimming, and the configured confidence floor. Any miss
// aborts the pipeline before the store write.
func (s *embedService) verify(ctx context.Context, marked []byte, payload string) (*watermark.Decoded, error) {
	decoded, err := s.codec.Decode(ctx, marked)
	if err != nil {
		return nil, err
	}

	if !decoded.Present {
		return nil, fmt.Errorf("%w: no watermark detected in produced image", domain.ErrVerificationFailed)
	}
	if got := strings.TrimSpace(decoded.Payload); got != payload {
		return nil, fmt.Errorf("%w: expected %q, extracted %q", domain.ErrVerificationFailed, payload, got)
	}
	if decoded.Confidence < s.cfg.MinConfidence {
		return nil, fmt.Errorf("%w: confidence %.3f below threshold %.3f",
			domain.ErrVerificationFailed, decoded.Confidence, s.cfg.MinConfidence)
	}

	return decoded, nil
}

// Extract downloads an object and reports whatever mark the codec finds in
// it. No store write occurs.
func (s *embedService) Extract(ctx context.Context, bucket, key string) (*watermark.Decoded, error) {
	source, err := s.store.Download(ctx, bucket, key)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: s3://%s/%s", domain.ErrNoSource, bucket, key)
		}
		return nil, err
	}

	decoded, err := s.codec.Decode(ctx, source)
	if err != nil {
		return nil, err
	}

	s.log.Info("Watermark extraction completed",
		zap.String("key", key),
		zap.Bool("present", decoded.Present),
		zap.Float64("confidence", decoded.Confidence))

	return decoded, nil
}
