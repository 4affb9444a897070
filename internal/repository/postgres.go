package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/joseph-ayodele/packet-underwriter/internal/common"
	"github.com/joseph-ayodele/packet-underwriter/internal/entity"
)

// PostgresStore is the production CaseStore.
type PostgresStore struct {
	pool   *pgxpool.Pool
	blobs  BlobFetcher
	logger *slog.Logger
}

// NewPostgresStore builds a store over pool. blobs serves gs:// keys and may be nil.
func NewPostgresStore(pool *pgxpool.Pool, blobs BlobFetcher, logger *slog.Logger) *PostgresStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresStore{pool: pool, blobs: blobs, logger: logger}
}

func (s *PostgresStore) GetCase(ctx context.Context, caseID string) (*entity.Case, error) {
	c := &entity.Case{ID: caseID, FetchedAt: time.Now().UTC()}
	err := s.pool.QueryRow(ctx, `SELECT counterparty FROM cases WHERE id = $1`, caseID).Scan(&c.Counterparty)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.NewAppError(common.CodeRecordNotFound, "case "+caseID, common.ErrRecordNotFound)
	}
	if err != nil {
		s.logger.Error("failed to get case", "case_id", caseID, "error", err)
		return nil, fmt.Errorf("get case %s: %w: %v", caseID, common.ErrDatabase, err)
	}

	rows, err := s.pool.Query(ctx, fmt.Sprintf(selectReferences, "$1"), caseID)
	if err != nil {
		return nil, fmt.Errorf("query references: %w: %v", common.ErrDatabase, err)
	}
	c.References, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (entity.ReferenceField, error) {
		var ref entity.ReferenceField
		var kind string
		err := row.Scan(&ref.Name, &kind, &ref.ExpectedValue)
		ref.Kind = fieldKind(kind)
		return ref, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan references: %w: %v", common.ErrDatabase, err)
	}

	rows, err = s.pool.Query(ctx, fmt.Sprintf(selectAttachments, "$1"), caseID)
	if err != nil {
		return nil, fmt.Errorf("query attachments: %w: %v", common.ErrDatabase, err)
	}
	c.Attachments, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (entity.Attachment, error) {
		var a entity.Attachment
		err := row.Scan(&a.Name, &a.ContentType, &a.ContentKey, &a.Category, &a.Role, &a.SizeBytes)
		return a, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan attachments: %w: %v", common.ErrDatabase, err)
	}

	s.logger.Debug("repository.case.loaded", "case_id", caseID, "references", len(c.References), "attachments", len(c.Attachments))
	return c, nil
}

func (s *PostgresStore) FetchAttachment(ctx context.Context, contentKey string) ([]byte, error) {
	if IsGCSKey(contentKey) {
		return fetchBlob(ctx, s.blobs, contentKey)
	}
	var content []byte
	err := s.pool.QueryRow(ctx, `SELECT content FROM attachment_blobs WHERE content_key = $1`, contentKey).Scan(&content)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &common.AttachmentFetchError{ContentKey: contentKey, Reason: "no such blob"}
	}
	if err != nil {
		return nil, &common.AttachmentFetchError{ContentKey: contentKey, Reason: "query failed", Cause: err}
	}
	return content, nil
}

func fetchBlob(ctx context.Context, blobs BlobFetcher, key string) ([]byte, error) {
	if blobs == nil {
		return nil, &common.AttachmentFetchError{ContentKey: key, Reason: "object storage not configured"}
	}
	return blobs.Fetch(ctx, key)
}
