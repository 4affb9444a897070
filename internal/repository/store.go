// Package repository reads underwriting cases and their attachment bytes from
// the record store. A run never writes to it.
package repository

import (
	"context"
	"strings"

	"github.com/joseph-ayodele/packet-underwriter/internal/entity"
)

// CaseStore is the record store seen by an evaluation.
type CaseStore interface {
	// GetCase returns common.ErrRecordNotFound for an unknown id.
	GetCase(ctx context.Context, caseID string) (*entity.Case, error)
	// FetchAttachment returns a *common.AttachmentFetchError when the bytes cannot be read.
	FetchAttachment(ctx context.Context, contentKey string) ([]byte, error)
}

// BlobFetcher reads attachment bytes that live outside the database.
type BlobFetcher interface {
	Fetch(ctx context.Context, uri string) ([]byte, error)
}

// IsGCSKey reports whether a content key points at a GCS object.
func IsGCSKey(key string) bool {
	return strings.HasPrefix(key, "gs://")
}

const selectReferences = `SELECT name, kind, expected_value FROM reference_fields WHERE case_id = %s ORDER BY position`

const selectAttachments = `SELECT name, content_type, content_key, category, role, size_bytes FROM attachments WHERE case_id = %s ORDER BY position`
