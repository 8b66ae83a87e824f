package indexer

import (
	"context"
	"time"

	"github.com/google/uuid"

	"collabstream/internal/collab"
)

// Backlog is a finite, restartable stream of objects due for indexing,
// ordered most-recently-changed first. Iteration holds a database cursor;
// callers must Close it.
type Backlog interface {
	// Next advances to the next object. It returns false when the stream
	// is exhausted or failed; check Err afterwards.
	Next() bool

	// Ref returns the current object. Valid only after Next returned true.
	Ref() CollabRef

	Err() error
	Close()
}

// Store is the relational contract of the indexing pipeline.
type Store interface {
	// IndexStatus resolves the three-state indexing status for one
	// object. A missing workspace row resolves to StatusNotIndexed, never
	// an error: the object's creation may have raced ahead of workspace
	// provisioning and indexing retries on the next backlog scan.
	IndexStatus(ctx context.Context, workspaceID collab.WorkspaceID, objectID collab.ObjectID) (IndexingStatus, error)

	// UnindexedBacklog streams up to limit objects of the workspace that
	// changed since their last index or were never indexed, excluding
	// workspaces that disabled indexing.
	UnindexedBacklog(ctx context.Context, workspaceID collab.WorkspaceID, limit int64) (Backlog, error)

	// UpsertEmbeddings atomically replaces all fragments of one object
	// with the supplied set and records the token cost. All-or-nothing:
	// a partial fragment set is never observable. The transaction spans
	// one object only.
	UpsertEmbeddings(ctx context.Context, workspaceID collab.WorkspaceID, objectID collab.ObjectID, tokensUsed uint32, fragments []EmbeddingFragment) error

	// MarkIndexed records that the object's content as of indexedAt has
	// been fully indexed. Call only after UpsertEmbeddings succeeded for
	// the same batch; a failed upsert must never advance the bookkeeping.
	MarkIndexed(ctx context.Context, objectID collab.ObjectID, kind collab.CollabKind, indexedAt time.Time) error

	// IndexedAtBatch returns last-indexed timestamps for many objects in
	// one round trip. Objects never indexed are absent from the result.
	IndexedAtBatch(ctx context.Context, objectIDs []uuid.UUID) (map[uuid.UUID]time.Time, error)

	// ActiveWorkspaces lists workspaces that have not opted out of
	// indexing, for the background worker's scan loop.
	ActiveWorkspaces(ctx context.Context) ([]collab.WorkspaceID, error)
}
