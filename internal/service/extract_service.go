package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"watermarkd/internal/domain"
	"watermarkd/internal/repository"
	"watermarkd/internal/watermark"
)

func isNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound)
}

// ExtractService decodes a mark from uploaded image bytes and resolves its
// provenance.
type ExtractService interface {
	Verify(ctx context.Context, image []byte) (*domain.VerifyResult, error)
}

type extractService struct {
	codec      watermark.Codec
	provenance repository.ProvenanceIndex
	log        *zap.Logger
}

func NewExtractService(codec watermark.Codec, provenance repository.ProvenanceIndex, log *zap.Logger) ExtractService {
	return &extractService{
		codec:      codec,
		provenance: provenance,
		log:        log,
	}
}

// Verify decodes image and, when a mark is present, looks up provenance for
// the extracted id. "No mark" and "no provenance" are terminal business
// outcomes, not errors; only a codec that cannot produce a report at all
// makes Verify fail.
func (s *extractService) Verify(ctx context.Context, image []byte) (*domain.VerifyResult, error) {
	decoded, err := s.codec.Decode(ctx, image)
	if err != nil {
		return nil, err
	}

	extracted := strings.TrimSpace(decoded.Payload)
	if !decoded.Present || extracted == "" {
		s.log.Info("No watermark found in uploaded image",
			zap.Float64("confidence", decoded.Confidence))
		return &domain.VerifyResult{
			HasWatermark: false,
			Confidence:   decoded.Confidence,
		}, nil
	}

	result := &domain.VerifyResult{
		HasWatermark: true,
		ExtractedID:  extracted,
		Confidence:   decoded.Confidence,
	}

	prov, err := s.provenance.Resolve(ctx, extracted)
	if err != nil {
		// An unreachable or empty index reads the same as "not found";
		// provenance absence is a normal outcome.
		s.log.Warn("Provenance lookup did not resolve",
			zap.String("post_id", extracted),
			zap.Error(err))
		return result, nil
	}

	result.HasProvenance = prov.Verified
	result.ProvenanceURL = prov.ProvenanceURL

	s.log.Info("Watermark verified with provenance",
		zap.String("post_id", extracted),
		zap.String("provenance_url", prov.ProvenanceURL))

	return result, nil
}
