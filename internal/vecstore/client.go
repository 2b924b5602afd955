package vecstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Metadata is the metadata/filter document shape used by the vector store.
// Filters use the store's operator syntax, e.g.
// {"$and": [{"chatId": {"$eq": ...}}, {"documentId": {"$in": [...]}}]}.
type Metadata = map[string]any

type Config struct {
	BaseURL  string
	APIKey   string
	Tenant   string
	Database string
	Timeout  time.Duration
}

// Client is a thin HTTP client for a Chroma-compatible vector store.
// Deletion is id-based only; callers that need filtered deletion first
// resolve ids with GetIDs.
type Client struct {
	log  zerolog.Logger
	cfg  Config
	http *http.Client
}

func NewClient(log zerolog.Logger, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("missing vector store base URL")
	}
	if strings.TrimSpace(cfg.Tenant) == "" {
		cfg.Tenant = "default_tenant"
	}
	if strings.TrimSpace(cfg.Database) == "" {
		cfg.Database = "default_database"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		log:  log.With().Str("client", "VectorStoreClient").Logger(),
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type collectionResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// GetOrCreateCollection resolves the collection id for name, creating the
// collection with the given metadata if it does not exist yet.
func (c *Client) GetOrCreateCollection(ctx context.Context, name string, metadata Metadata) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("collection name required")
	}
	body := map[string]any{
		"name":          name,
		"get_or_create": true,
	}
	if len(metadata) > 0 {
		body["metadata"] = metadata
	}
	out, err := doJSON[collectionResponse](c, ctx, "POST", c.collectionsURL(), body)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(out.ID) == "" {
		return "", fmt.Errorf("vector store returned empty collection id")
	}
	return out.ID, nil
}

type AddRequest struct {
	IDs        []string    `json:"ids"`
	Embeddings [][]float32 `json:"embeddings"`
	Metadatas  []Metadata  `json:"metadatas,omitempty"`
	Documents  []string    `json:"documents,omitempty"`
}

// Add upserts vectors into the collection. Idempotent by id.
func (c *Client) Add(ctx context.Context, collectionID string, req AddRequest) error {
	if len(req.IDs) == 0 {
		return nil
	}
	if len(req.Embeddings) != len(req.IDs) {
		return fmt.Errorf("ids/embeddings length mismatch: %d vs %d", len(req.IDs), len(req.Embeddings))
	}
	_, err := doJSON[struct{}](c, ctx, "POST", c.collectionURL(collectionID)+"/add", req)
	return err
}

type QueryRequest struct {
	QueryEmbeddings [][]float32 `json:"query_embeddings"`
	NResults        int         `json:"n_results"`
	Where           Metadata    `json:"where,omitempty"`
	Include         []string    `json:"include,omitempty"`
}

type QueryResponse struct {
	IDs       [][]string   `json:"ids"`
	Documents [][]string   `json:"documents"`
	Metadatas [][]Metadata `json:"metadatas"`
	Distances [][]float64  `json:"distances"`
}

func (c *Client) Query(ctx context.Context, collectionID string, req QueryRequest) (*QueryResponse, error) {
	if len(req.QueryEmbeddings) == 0 {
		return nil, fmt.Errorf("query embedding required")
	}
	if req.NResults <= 0 {
		req.NResults = 10
	}
	if len(req.Include) == 0 {
		req.Include = []string{"documents", "metadatas", "distances"}
	}
	return doJSON[QueryResponse](c, ctx, "POST", c.collectionURL(collectionID)+"/query", req)
}

type getRequest struct {
	Where   Metadata `json:"where,omitempty"`
	Include []string `json:"include"`
}

type getResponse struct {
	IDs []string `json:"ids"`
}

// GetIDs returns the ids of all records matching the filter.
func (c *Client) GetIDs(ctx context.Context, collectionID string, where Metadata) ([]string, error) {
	out, err := doJSON[getResponse](c, ctx, "POST", c.collectionURL(collectionID)+"/get", getRequest{
		Where:   where,
		Include: []string{},
	})
	if err != nil {
		return nil, err
	}
	return out.IDs, nil
}

type deleteRequest struct {
	IDs []string `json:"ids"`
}

// Delete removes records by id.
func (c *Client) Delete(ctx context.Context, collectionID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := doJSON[struct{}](c, ctx, "POST", c.collectionURL(collectionID)+"/delete", deleteRequest{IDs: ids})
	return err
}

func (c *Client) collectionsURL() string {
	return fmt.Sprintf("%s/api/v2/tenants/%s/databases/%s/collections",
		strings.TrimRight(c.cfg.BaseURL, "/"), c.cfg.Tenant, c.cfg.Database)
}

func (c *Client) collectionURL(collectionID string) string {
	return c.collectionsURL() + "/" + collectionID
}

func doJSON[T any](c *Client, ctx context.Context, method, url string, body any) (*T, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("X-Chroma-Token", c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("vector store http %d: %s", resp.StatusCode, string(raw))
	}

	var out T
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, fmt.Errorf("vector store decode error: %w; raw=%s", err, string(raw))
		}
	}
	return &out, nil
}
