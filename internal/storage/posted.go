package storage

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/samber/lo"

	"github.com/kovalyov-valentin/brinet/internal/model"
)

// Append-only history of published threads. Rows are never updated or
// deleted; the table doubles as the audit log.
type PostedStorage struct {
	db *sqlx.DB
}

func NewPostedStorage(db *sqlx.DB) *PostedStorage {
	return &PostedStorage{db: db}
}

// IsPosted tells whether a thread for the natural key was already published.
func (s *PostedStorage) IsPosted(ctx context.Context, source, naturalKey string) (bool, error) {
	conn, err := s.db.Connx(ctx)
	if err != nil {
		return false, err
	}
	defer conn.Close()

	var count int
	if err := conn.GetContext(
		ctx,
		&count,
		s.db.Rebind(`SELECT COUNT(*) FROM published_items WHERE source = ? AND natural_key = ?`),
		source,
		naturalKey,
	); err != nil {
		return false, err
	}

	return count > 0, nil
}

// Store appends a record. It reports false when the key was already recorded;
// the existing row is left untouched.
func (s *PostedStorage) Store(ctx context.Context, record model.PublishedRecord) (bool, error) {
	conn, err := s.db.Connx(ctx)
	if err != nil {
		return false, err
	}
	defer conn.Close()

	if record.PublishedAt.IsZero() {
		record.PublishedAt = time.Now()
	}

	res, err := conn.ExecContext(
		ctx,
		s.db.Rebind(`INSERT INTO published_items (source, natural_key, permalink, root_uri, published_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (source, natural_key) DO NOTHING`),
		record.Source,
		record.NaturalKey,
		record.Permalink,
		record.RootURI,
		record.PublishedAt.UTC(),
	)
	if err != nil {
		return false, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}

	return affected > 0, nil
}

// Latest returns up to limit records for a source, newest first.
func (s *PostedStorage) Latest(ctx context.Context, source string, limit int) ([]model.PublishedRecord, error) {
	conn, err := s.db.Connx(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	var records []dbPublished
	if err := conn.SelectContext(
		ctx,
		&records,
		s.db.Rebind(`SELECT id, source, natural_key, permalink, root_uri, published_at
			FROM published_items
			WHERE source = ?
			ORDER BY published_at DESC, id DESC
			LIMIT ?`),
		source,
		limit,
	); err != nil {
		return nil, err
	}

	return lo.Map(records, func(r dbPublished, _ int) model.PublishedRecord {
		return model.PublishedRecord(r)
	}), nil
}

// Row mapping for published_items
type dbPublished struct {
	ID          int64     `db:"id"`
	Source      string    `db:"source"`
	NaturalKey  string    `db:"natural_key"`
	Permalink   string    `db:"permalink"`
	RootURI     string    `db:"root_uri"`
	PublishedAt time.Time `db:"published_at"`
}
