package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvector "github.com/pgvector/pgvector-go/pgx"

	"collabstream/internal/collab"
)

// Compile-time check that PgStore implements Store
var _ Store = (*PgStore)(nil)

// pgPool is the pool surface the store touches. *pgxpool.Pool satisfies
// it, as does the mock pool in tests.
type pgPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PgStore implements Store on PostgreSQL with the pgvector extension.
type PgStore struct {
	pool pgPool
	log  *slog.Logger
}

// NewPgStore connects a pool with vector type support registered on every
// connection.
func NewPgStore(ctx context.Context, databaseURL string, log *slog.Logger) (*PgStore, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvector.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	return &PgStore{
		pool: pool,
		log:  log.With("component", "index_store"),
	}, nil
}

func (s *PgStore) Close() { s.pool.Close() }

func (s *PgStore) IndexStatus(ctx context.Context, workspaceID collab.WorkspaceID, objectID collab.ObjectID) (IndexingStatus, error) {
	const query = `
		SELECT
			COALESCE((w.settings->>'disable_search_indexing')::boolean, false) AS indexing_disabled,
			CASE
				WHEN COALESCE((w.settings->>'disable_search_indexing')::boolean, false) THEN false
				ELSE EXISTS (SELECT 1 FROM collab_embeddings e WHERE e.oid = $2)
			END AS has_index
		FROM workspaces w
		WHERE w.workspace_id = $1`

	var disabled, hasIndex bool
	err := s.pool.QueryRow(ctx, query, workspaceID, objectID).Scan(&disabled, &hasIndex)
	if errors.Is(err, pgx.ErrNoRows) {
		// The object's creation event can race ahead of workspace
		// provisioning. Treat it as not yet indexed so the backlog scan
		// retries instead of dropping the object for good.
		s.log.Warn("Workspace row missing during index status lookup",
			"workspace_id", workspaceID,
			"object_id", objectID,
		)
		return StatusNotIndexed, nil
	}
	if err != nil {
		return StatusNotIndexed, fmt.Errorf("index status %s/%s: %w", workspaceID, objectID, err)
	}

	switch {
	case disabled:
		return StatusDisabled, nil
	case hasIndex:
		return StatusIndexed, nil
	default:
		return StatusNotIndexed, nil
	}
}

func (s *PgStore) UnindexedBacklog(ctx context.Context, workspaceID collab.WorkspaceID, limit int64) (Backlog, error) {
	const query = `
		SELECT c.workspace_id, c.oid, c.partition_key
		FROM collabs c
		JOIN workspaces w ON c.workspace_id = w.workspace_id
		WHERE c.workspace_id = $1
		  AND NOT COALESCE((w.settings->>'disable_search_indexing')::boolean, false)
		  AND (c.indexed_at IS NULL OR c.indexed_at < c.updated_at)
		ORDER BY c.updated_at DESC
		LIMIT $2`

	rows, err := s.pool.Query(ctx, query, workspaceID, limit)
	if err != nil {
		return nil, fmt.Errorf("backlog %s: %w", workspaceID, err)
	}
	return &pgBacklog{rows: rows}, nil
}

// pgBacklog streams backlog rows lazily off an open cursor.
type pgBacklog struct {
	rows pgx.Rows
	cur  CollabRef
	err  error
}

func (b *pgBacklog) Next() bool {
	if b.err != nil || !b.rows.Next() {
		return false
	}
	var partitionKey int32
	if err := b.rows.Scan(&b.cur.WorkspaceID, &b.cur.ObjectID, &partitionKey); err != nil {
		b.err = err
		return false
	}
	b.cur.Kind = collab.KindFromInt(partitionKey)
	return true
}

func (b *pgBacklog) Ref() CollabRef { return b.cur }

func (b *pgBacklog) Err() error {
	if b.err != nil {
		return b.err
	}
	return b.rows.Err()
}

func (b *pgBacklog) Close() { b.rows.Close() }

func (s *PgStore) UpsertEmbeddings(ctx context.Context, workspaceID collab.WorkspaceID, objectID collab.ObjectID, tokensUsed uint32, fragments []EmbeddingFragment) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin upsert %s: %w", objectID, err)
	}
	defer tx.Rollback(ctx)

	// Full replace: stale fragments must not survive a re-index.
	if _, err := tx.Exec(ctx, `DELETE FROM collab_embeddings WHERE oid = $1`, objectID); err != nil {
		return fmt.Errorf("clear fragments %s: %w", objectID, err)
	}

	for _, f := range fragments {
		_, err := tx.Exec(ctx, `
			INSERT INTO collab_embeddings
				(fragment_id, oid, content_type, content, embedding, metadata, fragment_index, embedded_type)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			f.FragmentID, objectID, f.ContentType, f.Content,
			f.Embedding, f.Metadata, f.FragmentIndex, f.EmbeddedType,
		)
		if err != nil {
			return fmt.Errorf("write fragment %s/%d: %w", objectID, f.FragmentIndex, err)
		}
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO index_token_usage (workspace_id, tokens_used)
		VALUES ($1, $2)`,
		workspaceID, int64(tokensUsed),
	); err != nil {
		return fmt.Errorf("record token usage %s: %w", workspaceID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit upsert %s: %w", objectID, err)
	}
	return nil
}

func (s *PgStore) ActiveWorkspaces(ctx context.Context) ([]collab.WorkspaceID, error) {
	const query = `
		SELECT workspace_id
		FROM workspaces
		WHERE NOT COALESCE((settings->>'disable_search_indexing')::boolean, false)`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("active workspaces: %w", err)
	}
	defer rows.Close()

	var out []collab.WorkspaceID
	for rows.Next() {
		var id collab.WorkspaceID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan workspace id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *PgStore) MarkIndexed(ctx context.Context, objectID collab.ObjectID, kind collab.CollabKind, indexedAt time.Time) error {
	const query = `
		UPDATE collabs
		SET indexed_at = $1
		WHERE oid = $2 AND partition_key = $3`

	if _, err := s.pool.Exec(ctx, query, indexedAt, objectID, int(kind)); err != nil {
		return fmt.Errorf("mark indexed %s: %w", objectID, err)
	}
	return nil
}

func (s *PgStore) IndexedAtBatch(ctx context.Context, objectIDs []uuid.UUID) (map[uuid.UUID]time.Time, error) {
	const query = `
		SELECT oid, indexed_at
		FROM collabs
		WHERE oid = ANY ($1) AND indexed_at IS NOT NULL`

	rows, err := s.pool.Query(ctx, query, objectIDs)
	if err != nil {
		return nil, fmt.Errorf("indexed at batch: %w", err)
	}
	defer rows.Close()

	out := make(map[uuid.UUID]time.Time, len(objectIDs))
	for rows.Next() {
		var oid uuid.UUID
		var at time.Time
		if err := rows.Scan(&oid, &at); err != nil {
			return nil, fmt.Errorf("scan indexed at: %w", err)
		}
		out[oid] = at
	}
	return out, rows.Err()
}
