package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/joseph-ayodele/packet-underwriter/internal/common"
	"github.com/joseph-ayodele/packet-underwriter/internal/repository"
)

// Store is a connected record store plus its lifecycle hooks.
type Store struct {
	repository.CaseStore
	driver string
	pool   *pgxpool.Pool
	sqlite *repository.SQLiteStore
	blobs  *repository.GCSBlobs
	logger *slog.Logger
}

// ConnectStore opens the configured record store. GCS-backed attachments are
// wired in when storage.gcs_enabled is set.
func ConnectStore(ctx context.Context, db common.DatabaseConfig, st common.StorageConfig, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{driver: db.Driver, logger: logger}

	var blobs repository.BlobFetcher
	if st.GCSEnabled {
		g, err := repository.NewGCSBlobs(ctx, int64(st.MaxAttachmentMB)<<20, logger)
		if err != nil {
			return nil, err
		}
		s.blobs = g
		blobs = g
	}

	switch db.Driver {
	case "sqlite":
		logger.Info("opening sqlite record store", "dsn", db.DSN)
		sq, err := repository.OpenSQLite(ctx, db.DSN, blobs, logger)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.sqlite = sq
		s.CaseStore = sq
	case "postgres", "":
		pool, err := repository.Open(ctx, repository.Config{
			DSN:              db.DSN,
			MaxConns:         db.MaxConns,
			MinConns:         db.MinConns,
			MaxConnLifetime:  db.MaxConnLifetime,
			MaxConnIdleTime:  db.MaxConnIdleTime,
			DialTimeout:      db.DialTimeout,
			StatementTimeout: db.StatementTimeout,
		}, logger)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.pool = pool
		s.CaseStore = repository.NewPostgresStore(pool, blobs, logger)
	default:
		s.Close()
		return nil, common.ConfigError("unknown database driver " + db.Driver)
	}
	return s, nil
}

// SQLite exposes the local store for seeding. It is nil for postgres.
func (s *Store) SQLite() *repository.SQLiteStore { return s.sqlite }

// Ping checks the store is responsive.
func (s *Store) Ping(ctx context.Context, timeout time.Duration) error {
	if s.pool != nil {
		return repository.HealthCheck(ctx, s.pool, timeout, s.logger)
	}
	if s.sqlite != nil {
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		return s.sqlite.Ping(ctx)
	}
	return common.ConfigError("record store is not connected")
}

// Migrate applies the embedded schema. SQLite is migrated on open.
func (s *Store) Migrate(ctx context.Context) error {
	if s.pool == nil {
		return nil
	}
	return repository.Migrate(ctx, s.pool, s.logger)
}

// Close releases every connection the store holds.
func (s *Store) Close() {
	if s.pool != nil {
		repository.Close(s.pool, s.logger)
	}
	if s.sqlite != nil {
		if err := s.sqlite.Close(); err != nil {
			s.logger.Error("failed to close sqlite store", "error", err)
		}
	}
	if s.blobs != nil {
		if err := s.blobs.Close(); err != nil {
			s.logger.Error("failed to close gcs client", "error", err)
		}
	}
}
