package repository

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"watermarkd/internal/domain"
)

// ProvenanceIndex resolves a mark payload to its public provenance record.
type ProvenanceIndex interface {
	// Resolve returns domain.ErrNotFound when no record exists for postID.
	Resolve(ctx context.Context, postID string) (*domain.ProvenanceData, error)
}

// s3ProvenanceIndex treats the published provenance site as the index: a
// payload resolves iff provenance/<postID>/index.html exists in the public
// bucket.
type s3ProvenanceIndex struct {
	store      ObjectStore
	bucket     string
	domainName string
	log        *zap.Logger
}

func NewS3ProvenanceIndex(store ObjectStore, bucket, domainName string, log *zap.Logger) ProvenanceIndex {
	return &s3ProvenanceIndex{
		store:      store,
		bucket:     bucket,
		domainName: domainName,
		log:        log,
	}
}

func (p *s3ProvenanceIndex) Resolve(ctx context.Context, postID string) (*domain.ProvenanceData, error) {
	if p.bucket == "" {
		p.log.Warn("Provenance bucket not configured")
		return nil, fmt.Errorf("%w: provenance index not configured", domain.ErrNotFound)
	}

	key := fmt.Sprintf("provenance/%s/index.html", postID)
	exists, err := p.store.Head(ctx, p.bucket, key)
	if err != nil {
		return nil, err
	}
	if !exists {
		p.log.Info("No provenance data found", zap.String("post_id", postID))
		return nil, fmt.Errorf("%w: provenance for %s", domain.ErrNotFound, postID)
	}

	p.log.Info("Provenance data found", zap.String("post_id", postID))

	return &domain.ProvenanceData{
		PostID:        postID,
		ProvenanceURL: fmt.Sprintf("https://%s/provenance/%s", p.domainName, postID),
		Verified:      true,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
	}, nil
}
