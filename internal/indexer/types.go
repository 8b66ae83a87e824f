// Package indexer keeps the semantic-search index consistent with
// collaborative object content: it resolves per-object indexing status
// against workspace policy, discovers the backlog of changed objects, and
// transactionally replaces embedding fragments so each object is embedded
// at most once per content version.
package indexer

import (
	"encoding/json"

	"github.com/pgvector/pgvector-go"

	"collabstream/internal/collab"
)

// IndexingStatus is derived at query time, never cached: workspace policy
// and embedding presence change independently.
type IndexingStatus int

const (
	// StatusDisabled means the workspace opted out of search indexing.
	// The opt-out always wins, even when an embedding already exists from
	// before the setting changed; existing rows are kept but not reported
	// as active.
	StatusDisabled IndexingStatus = iota

	// StatusIndexed means an embedding record exists for the object.
	StatusIndexed

	// StatusNotIndexed means the object is eligible but has no embedding
	// yet.
	StatusNotIndexed
)

func (s IndexingStatus) String() string {
	switch s {
	case StatusDisabled:
		return "disabled"
	case StatusIndexed:
		return "indexed"
	case StatusNotIndexed:
		return "not_indexed"
	default:
		return "invalid"
	}
}

// CollabRef identifies one object due for indexing.
type CollabRef struct {
	WorkspaceID collab.WorkspaceID
	ObjectID    collab.ObjectID
	Kind        collab.CollabKind
}

// EmbeddingFragment is one indexed chunk of an object's content. Embedding
// is nil for fragments stored for lexical search only. FragmentIndex gives
// within-object ordering for multi-chunk documents.
type EmbeddingFragment struct {
	FragmentID    string           `json:"fragment_id"`
	ContentType   int32            `json:"content_type"`
	Content       string           `json:"content"`
	Embedding     *pgvector.Vector `json:"embedding,omitempty"`
	Metadata      json.RawMessage  `json:"metadata,omitempty"`
	FragmentIndex int32            `json:"fragment_index"`
	EmbeddedType  int16            `json:"embedded_type"`
}
