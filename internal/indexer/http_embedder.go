package indexer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTPEmbedder calls a remote embedding service over HTTP. The service owns
// model choice, vector dimension and chunking; this client only moves the
// fragments.
type HTTPEmbedder struct {
	baseURL string
	client  *http.Client
}

var _ Embedder = (*HTTPEmbedder)(nil)

// NewHTTPEmbedder creates an embedder client for the given service URL.
func NewHTTPEmbedder(baseURL string) *HTTPEmbedder {
	return &HTTPEmbedder{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

// SetHTTPClient sets a custom HTTP client (useful for testing).
func (e *HTTPEmbedder) SetHTTPClient(client *http.Client) {
	e.client = client
}

type embedRequest struct {
	WorkspaceID string `json:"workspace_id"`
	ObjectID    string `json:"object_id"`
	Kind        int    `json:"kind"`
}

type embedResponse struct {
	Fragments  []EmbeddingFragment `json:"fragments"`
	TokensUsed uint32              `json:"tokens_used"`
}

// EmbedCollab requests embedding fragments for one object.
func (e *HTTPEmbedder) EmbedCollab(ctx context.Context, ref CollabRef) ([]EmbeddingFragment, uint32, error) {
	reqBody, err := json.Marshal(embedRequest{
		WorkspaceID: ref.WorkspaceID.String(),
		ObjectID:    ref.ObjectID.String(),
		Kind:        int(ref.Kind),
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", fmt.Sprintf("%s/v1/embed", e.baseURL), bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to reach embedding service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, 0, fmt.Errorf("embedding service returned status %d", resp.StatusCode)
	}

	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, 0, fmt.Errorf("failed to decode embed response: %w", err)
	}
	return out.Fragments, out.TokensUsed, nil
}
