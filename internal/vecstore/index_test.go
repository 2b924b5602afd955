package vecstore

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore is a minimal collection endpoint that records calls.
type fakeStore struct {
	collectionCreates atomic.Int32
	addSizes          []int
	getIDs            []string
	deletedIDs        []string
}

func (f *fakeStore) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/collections"):
			f.collectionCreates.Add(1)
			json.NewEncoder(w).Encode(map[string]string{"id": "col-1"})
		case strings.HasSuffix(r.URL.Path, "/add"):
			var req AddRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			f.addSizes = append(f.addSizes, len(req.IDs))
			w.Write([]byte(`{}`))
		case strings.HasSuffix(r.URL.Path, "/get"):
			json.NewEncoder(w).Encode(map[string]any{"ids": f.getIDs})
		case strings.HasSuffix(r.URL.Path, "/delete"):
			var req struct {
				IDs []string `json:"ids"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			f.deletedIDs = req.IDs
			w.Write([]byte(`{}`))
		case strings.HasSuffix(r.URL.Path, "/query"):
			json.NewEncoder(w).Encode(QueryResponse{
				IDs:       [][]string{{"a", "b"}},
				Documents: [][]string{{"first", "second"}},
				Metadatas: [][]Metadata{{{"page": float64(1)}, {"page": float64(2)}}},
				Distances: [][]float64{{0.1, 0.4}},
			})
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	})
}

func newTestIndex(t *testing.T, store *fakeStore) *Index {
	t.Helper()
	server := httptest.NewServer(store.handler(t))
	t.Cleanup(server.Close)
	client, err := NewClient(zerolog.Nop(), Config{BaseURL: server.URL})
	require.NoError(t, err)
	return NewIndex(client, "documents")
}

func TestUpsertBatchesLargeInputs(t *testing.T) {
	store := &fakeStore{}
	ix := newTestIndex(t, store)

	n := 650
	ids := make([]string, n)
	embeddings := make([][]float32, n)
	metadatas := make([]Metadata, n)
	documents := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("doc_chunk_%d", i)
		embeddings[i] = []float32{float32(i)}
		metadatas[i] = Metadata{"page": 1}
		documents[i] = "text"
	}

	require.NoError(t, ix.Upsert(context.Background(), ids, embeddings, metadatas, documents))

	assert.Equal(t, []int{300, 300, 50}, store.addSizes)
}

func TestUpsertRejectsMismatchedLengths(t *testing.T) {
	store := &fakeStore{}
	ix := newTestIndex(t, store)

	err := ix.Upsert(context.Background(), []string{"a"}, nil, nil, nil)

	assert.Error(t, err)
}

func TestUpsertEmptyIsNoop(t *testing.T) {
	store := &fakeStore{}
	ix := newTestIndex(t, store)

	require.NoError(t, ix.Upsert(context.Background(), nil, nil, nil, nil))
	assert.Equal(t, int32(0), store.collectionCreates.Load())
}

func TestCollectionResolvedOnce(t *testing.T) {
	store := &fakeStore{}
	ix := newTestIndex(t, store)

	for i := 0; i < 3; i++ {
		_, err := ix.Query(context.Background(), []float32{0.1}, 4, nil)
		require.NoError(t, err)
	}

	assert.Equal(t, int32(1), store.collectionCreates.Load())
}

func TestQueryMapsHits(t *testing.T) {
	store := &fakeStore{}
	ix := newTestIndex(t, store)

	hits, err := ix.Query(context.Background(), []float32{0.1}, 2, nil)

	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "a", hits[0].ID)
	assert.Equal(t, "first", hits[0].Document)
	assert.Equal(t, float64(1), hits[0].Metadata["page"])
	assert.Equal(t, 0.1, hits[0].Score)
	assert.Equal(t, "second", hits[1].Document)
}

func TestDeleteWhereTwoStep(t *testing.T) {
	store := &fakeStore{getIDs: []string{"a", "b", "c"}}
	ix := newTestIndex(t, store)

	require.NoError(t, ix.DeleteWhere(context.Background(), Metadata{"documentId": Metadata{"$eq": "doc-1"}}))

	assert.Equal(t, []string{"a", "b", "c"}, store.deletedIDs)
}

func TestDeleteWhereNoMatchesSkipsDelete(t *testing.T) {
	store := &fakeStore{}
	ix := newTestIndex(t, store)

	require.NoError(t, ix.DeleteWhere(context.Background(), Metadata{"documentId": Metadata{"$eq": "doc-1"}}))

	assert.Empty(t, store.deletedIDs)
}
