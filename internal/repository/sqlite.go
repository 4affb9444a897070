package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"github.com/joseph-ayodele/packet-underwriter/internal/common"
	"github.com/joseph-ayodele/packet-underwriter/internal/entity"
)

// SQLiteStore is a CaseStore for local runs and tests.
type SQLiteStore struct {
	db     *sql.DB
	blobs  BlobFetcher
	logger *slog.Logger
}

// OpenSQLite opens (or creates) a SQLite database and applies the schema.
// Pass ":memory:" for an in-memory database.
func OpenSQLite(ctx context.Context, dsn string, blobs BlobFetcher, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// one connection keeps an in-memory database alive and avoids "database is locked"
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	for _, pragma := range []string{"PRAGMA busy_timeout = 5000", "PRAGMA foreign_keys = ON"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	s := &SQLiteStore{db: db, blobs: blobs, logger: logger}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	migs, err := loadMigrations("sqlite")
	if err != nil {
		return err
	}
	for _, m := range migs {
		if _, err := s.db.ExecContext(ctx, m.sql); err != nil {
			return fmt.Errorf("applying migration %s: %w", m.name, err)
		}
	}
	return nil
}

// Ping checks the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) GetCase(ctx context.Context, caseID string) (*entity.Case, error) {
	c := &entity.Case{ID: caseID, FetchedAt: time.Now().UTC()}
	err := s.db.QueryRowContext(ctx, `SELECT counterparty FROM cases WHERE id = ?`, caseID).Scan(&c.Counterparty)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.NewAppError(common.CodeRecordNotFound, "case "+caseID, common.ErrRecordNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get case %s: %w: %v", caseID, common.ErrDatabase, err)
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(selectReferences, "?"), caseID)
	if err != nil {
		return nil, fmt.Errorf("query references: %w: %v", common.ErrDatabase, err)
	}
	for rows.Next() {
		var ref entity.ReferenceField
		var kind string
		var expected sql.NullString
		if err := rows.Scan(&ref.Name, &kind, &expected); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan reference: %w: %v", common.ErrDatabase, err)
		}
		ref.Kind = fieldKind(kind)
		if expected.Valid {
			v := expected.String
			ref.ExpectedValue = &v
		}
		c.References = append(c.References, ref)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read references: %w: %v", common.ErrDatabase, err)
	}

	rows, err = s.db.QueryContext(ctx, fmt.Sprintf(selectAttachments, "?"), caseID)
	if err != nil {
		return nil, fmt.Errorf("query attachments: %w: %v", common.ErrDatabase, err)
	}
	defer rows.Close()
	for rows.Next() {
		var a entity.Attachment
		if err := rows.Scan(&a.Name, &a.ContentType, &a.ContentKey, &a.Category, &a.Role, &a.SizeBytes); err != nil {
			return nil, fmt.Errorf("scan attachment: %w: %v", common.ErrDatabase, err)
		}
		c.Attachments = append(c.Attachments, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read attachments: %w: %v", common.ErrDatabase, err)
	}
	return c, nil
}

func (s *SQLiteStore) FetchAttachment(ctx context.Context, contentKey string) ([]byte, error) {
	if IsGCSKey(contentKey) {
		return fetchBlob(ctx, s.blobs, contentKey)
	}
	var content []byte
	err := s.db.QueryRowContext(ctx, `SELECT content FROM attachment_blobs WHERE content_key = ?`, contentKey).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &common.AttachmentFetchError{ContentKey: contentKey, Reason: "no such blob"}
	}
	if err != nil {
		return nil, &common.AttachmentFetchError{ContentKey: contentKey, Reason: "query failed", Cause: err}
	}
	return content, nil
}

// PutCase inserts or replaces a case with its references and attachment descriptors.
func (s *SQLiteStore) PutCase(ctx context.Context, c entity.Case) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM cases WHERE id = ?`, c.ID); err != nil {
		return fmt.Errorf("delete case: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO cases (id, counterparty) VALUES (?, ?)`, c.ID, c.Counterparty); err != nil {
		return fmt.Errorf("insert case: %w", err)
	}
	for i, ref := range c.References {
		var expected any
		if ref.ExpectedValue != nil {
			expected = *ref.ExpectedValue
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO reference_fields (case_id, position, name, kind, expected_value) VALUES (?, ?, ?, ?, ?)`,
			c.ID, i, ref.Name, string(ref.Kind), expected); err != nil {
			return fmt.Errorf("insert reference %s: %w", ref.Name, err)
		}
	}
	for i, a := range c.Attachments {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO attachments (case_id, position, name, content_type, content_key, category, role, size_bytes) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			c.ID, i, a.Name, a.ContentType, a.ContentKey, a.Category, a.Role, a.SizeBytes); err != nil {
			return fmt.Errorf("insert attachment %s: %w", a.Name, err)
		}
	}
	return tx.Commit()
}

// PutBlob stores attachment bytes under a content key.
func (s *SQLiteStore) PutBlob(ctx context.Context, contentKey string, content []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO attachment_blobs (content_key, content) VALUES (?, ?)
		 ON CONFLICT(content_key) DO UPDATE SET content = excluded.content`, contentKey, content)
	if err != nil {
		return fmt.Errorf("put blob %s: %w", contentKey, err)
	}
	return nil
}
