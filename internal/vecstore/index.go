package vecstore

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"
)

// addBatchSize caps how many records a single add call carries; larger
// inputs are split and issued sequentially.
const addBatchSize = 300

// Hit is one ranked query result.
type Hit struct {
	ID       string
	Document string
	Metadata Metadata
	Score    float64
}

// Index owns a single named collection with cosine distance. The collection
// id is resolved lazily on first use behind a single-flight guard, so
// concurrent first callers never race to create the backing collection
// twice. The handle is cached for the life of the process once resolved.
type Index struct {
	client *Client
	name   string

	group singleflight.Group
	mu    sync.RWMutex
	id    string
}

func NewIndex(client *Client, name string) *Index {
	return &Index{client: client, name: name}
}

func (ix *Index) collection(ctx context.Context) (string, error) {
	ix.mu.RLock()
	id := ix.id
	ix.mu.RUnlock()
	if id != "" {
		return id, nil
	}

	v, err, _ := ix.group.Do(ix.name, func() (any, error) {
		ix.mu.RLock()
		cached := ix.id
		ix.mu.RUnlock()
		if cached != "" {
			return cached, nil
		}
		created, err := ix.client.GetOrCreateCollection(ctx, ix.name, Metadata{"hnsw:space": "cosine"})
		if err != nil {
			return "", err
		}
		ix.mu.Lock()
		ix.id = created
		ix.mu.Unlock()
		return created, nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to access vector collection %q: %w", ix.name, err)
	}
	return v.(string), nil
}

// Upsert adds chunk vectors with their metadata and source texts, batching
// into provider-sized groups.
func (ix *Index) Upsert(ctx context.Context, ids []string, embeddings [][]float32, metadatas []Metadata, documents []string) error {
	if len(ids) == 0 {
		return nil
	}
	if len(embeddings) != len(ids) || len(metadatas) != len(ids) || len(documents) != len(ids) {
		return fmt.Errorf("upsert input lengths differ: ids=%d embeddings=%d metadatas=%d documents=%d",
			len(ids), len(embeddings), len(metadatas), len(documents))
	}
	collectionID, err := ix.collection(ctx)
	if err != nil {
		return err
	}
	for start := 0; start < len(ids); start += addBatchSize {
		end := start + addBatchSize
		if end > len(ids) {
			end = len(ids)
		}
		if err := ix.client.Add(ctx, collectionID, AddRequest{
			IDs:        ids[start:end],
			Embeddings: embeddings[start:end],
			Metadatas:  metadatas[start:end],
			Documents:  documents[start:end],
		}); err != nil {
			return fmt.Errorf("failed to add vectors [%d:%d]: %w", start, end, err)
		}
	}
	return nil
}

// Query returns the k nearest chunks matching the metadata filter, best
// match first.
func (ix *Index) Query(ctx context.Context, embedding []float32, k int, where Metadata) ([]Hit, error) {
	collectionID, err := ix.collection(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := ix.client.Query(ctx, collectionID, QueryRequest{
		QueryEmbeddings: [][]float32{embedding},
		NResults:        k,
		Where:           where,
	})
	if err != nil {
		return nil, err
	}
	if len(resp.IDs) == 0 {
		return nil, nil
	}
	hits := make([]Hit, 0, len(resp.IDs[0]))
	for i, id := range resp.IDs[0] {
		hit := Hit{ID: id}
		if len(resp.Documents) > 0 && i < len(resp.Documents[0]) {
			hit.Document = resp.Documents[0][i]
		}
		if len(resp.Metadatas) > 0 && i < len(resp.Metadatas[0]) {
			hit.Metadata = resp.Metadatas[0][i]
		}
		if len(resp.Distances) > 0 && i < len(resp.Distances[0]) {
			hit.Score = resp.Distances[0][i]
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

// DeleteWhere removes every record matching the filter. The backing store
// deletes by id only, so matching ids are fetched first.
func (ix *Index) DeleteWhere(ctx context.Context, where Metadata) error {
	collectionID, err := ix.collection(ctx)
	if err != nil {
		return err
	}
	ids, err := ix.client.GetIDs(ctx, collectionID, where)
	if err != nil {
		return fmt.Errorf("failed to resolve ids for delete: %w", err)
	}
	if len(ids) == 0 {
		return nil
	}
	return ix.client.Delete(ctx, collectionID, ids)
}
