package indexer

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collabstream/internal/collab"
)

func newMockStore(t *testing.T) (*PgStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return &PgStore{pool: mock, log: slog.Default()}, mock
}

func TestPgStoreIndexStatus(t *testing.T) {
	tests := []struct {
		name     string
		disabled bool
		hasIndex bool
		want     IndexingStatus
	}{
		{"workspace opt-out wins", true, false, StatusDisabled},
		{"embedding exists", false, true, StatusIndexed},
		{"eligible but unembedded", false, false, StatusNotIndexed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, mock := newMockStore(t)
			ws := uuid.New()
			oid := uuid.New()

			mock.ExpectQuery("FROM workspaces").
				WithArgs(ws, oid).
				WillReturnRows(pgxmock.NewRows([]string{"indexing_disabled", "has_index"}).
					AddRow(tt.disabled, tt.hasIndex))

			got, err := store.IndexStatus(context.Background(), ws, oid)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestPgStoreIndexStatusMissingWorkspaceRow(t *testing.T) {
	store, mock := newMockStore(t)
	ws := uuid.New()
	oid := uuid.New()

	// An object event can race ahead of workspace provisioning; the
	// lookup must report not-indexed rather than fail, so the backlog
	// scan retries the object later.
	mock.ExpectQuery("FROM workspaces").
		WithArgs(ws, oid).
		WillReturnError(pgx.ErrNoRows)

	got, err := store.IndexStatus(context.Background(), ws, oid)
	require.NoError(t, err)
	assert.Equal(t, StatusNotIndexed, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgStoreUpsertEmbeddingsCommitsAtomically(t *testing.T) {
	store, mock := newMockStore(t)
	ws := uuid.New()
	oid := uuid.New()
	fragments := []EmbeddingFragment{
		{FragmentID: "f0", Content: "first chunk", FragmentIndex: 0},
		{FragmentID: "f1", Content: "second chunk", FragmentIndex: 1},
	}

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM collab_embeddings").
		WithArgs(oid).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	for _, f := range fragments {
		mock.ExpectExec("INSERT INTO collab_embeddings").
			WithArgs(f.FragmentID, oid, f.ContentType, f.Content,
				f.Embedding, f.Metadata, f.FragmentIndex, f.EmbeddedType).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
	}
	mock.ExpectExec("INSERT INTO index_token_usage").
		WithArgs(ws, int64(77)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	err := store.UpsertEmbeddings(context.Background(), ws, oid, 77, fragments)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgStoreUpsertEmbeddingsRollsBackOnMidwayFailure(t *testing.T) {
	store, mock := newMockStore(t)
	ws := uuid.New()
	oid := uuid.New()
	fragments := []EmbeddingFragment{
		{FragmentID: "f0", Content: "first chunk", FragmentIndex: 0},
		{FragmentID: "f1", Content: "second chunk", FragmentIndex: 1},
	}

	// The second fragment insert fails: the delete and the first insert
	// must be rolled back, never leaving a partially replaced index.
	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM collab_embeddings").
		WithArgs(oid).
		WillReturnResult(pgxmock.NewResult("DELETE", 2))
	mock.ExpectExec("INSERT INTO collab_embeddings").
		WithArgs(fragments[0].FragmentID, oid, fragments[0].ContentType, fragments[0].Content,
			fragments[0].Embedding, fragments[0].Metadata, fragments[0].FragmentIndex, fragments[0].EmbeddedType).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO collab_embeddings").
		WithArgs(fragments[1].FragmentID, oid, fragments[1].ContentType, fragments[1].Content,
			fragments[1].Embedding, fragments[1].Metadata, fragments[1].FragmentIndex, fragments[1].EmbeddedType).
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	err := store.UpsertEmbeddings(context.Background(), ws, oid, 77, fragments)
	require.Error(t, err)
	assert.ErrorContains(t, err, "connection reset")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgStoreUnindexedBacklogStreamsRefs(t *testing.T) {
	store, mock := newMockStore(t)
	ws := uuid.New()
	oid1 := uuid.New()
	oid2 := uuid.New()

	mock.ExpectQuery("FROM collabs").
		WithArgs(ws, int64(10)).
		WillReturnRows(pgxmock.NewRows([]string{"workspace_id", "oid", "partition_key"}).
			AddRow(ws, oid1, int32(0)).
			AddRow(ws, oid2, int32(1)))

	backlog, err := store.UnindexedBacklog(context.Background(), ws, 10)
	require.NoError(t, err)
	defer backlog.Close()

	var refs []CollabRef
	for backlog.Next() {
		refs = append(refs, backlog.Ref())
	}
	require.NoError(t, backlog.Err())

	require.Len(t, refs, 2)
	assert.Equal(t, oid1, refs[0].ObjectID)
	assert.Equal(t, collab.KindFromInt(0), refs[0].Kind)
	assert.Equal(t, oid2, refs[1].ObjectID)
	assert.Equal(t, collab.KindFromInt(1), refs[1].Kind)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgStoreMarkIndexed(t *testing.T) {
	store, mock := newMockStore(t)
	oid := uuid.New()
	stamp := time.Now().UTC().Truncate(time.Millisecond)

	mock.ExpectExec("UPDATE collabs").
		WithArgs(stamp, oid, int(collab.KindDocument)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, store.MarkIndexed(context.Background(), oid, collab.KindDocument, stamp))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgStoreActiveWorkspaces(t *testing.T) {
	store, mock := newMockStore(t)
	ws1 := uuid.New()
	ws2 := uuid.New()

	mock.ExpectQuery("FROM workspaces").
		WillReturnRows(pgxmock.NewRows([]string{"workspace_id"}).
			AddRow(ws1).
			AddRow(ws2))

	got, err := store.ActiveWorkspaces(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []collab.WorkspaceID{ws1, ws2}, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}
