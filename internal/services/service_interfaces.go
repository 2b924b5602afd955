package services

import (
	"context"
	"time"

	"docuchat_go_backend/internal/layout"
	"docuchat_go_backend/internal/models"
	"docuchat_go_backend/internal/vecstore"

	"github.com/google/uuid"
)

// Embedder converts text batches to fixed-length vectors, one per input,
// order preserved.
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// CompletionRequest carries one prompt to the completion provider. Nil
// Temperature/MaxOutputTokens leave the provider defaults in place.
type CompletionRequest struct {
	System          string
	Prompt          string
	Temperature     *float32
	MaxOutputTokens *int32
}

// Completer invokes the remote LLM in buffered or streamed mode. The
// streamed call delivers each delta through onDelta as it arrives and
// returns the full concatenated text; cancelling ctx aborts the in-flight
// provider call.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (text string, totalTokens int32, err error)
	CompleteStream(ctx context.Context, req CompletionRequest, onDelta func(delta string) error) (full string, err error)
}

// VectorIndex is the chunk index over one collection.
type VectorIndex interface {
	Upsert(ctx context.Context, ids []string, embeddings [][]float32, metadatas []vecstore.Metadata, documents []string) error
	Query(ctx context.Context, embedding []float32, k int, where vecstore.Metadata) ([]vecstore.Hit, error)
	DeleteWhere(ctx context.Context, where vecstore.Metadata) error
}

// PDFExtractor turns raw PDF bytes into positioned text fragments plus the
// total page count.
type PDFExtractor interface {
	ExtractFragments(data []byte) ([]layout.Fragment, int, error)
}

// ObjectStorage is the durable storage collaborator for original uploads.
type ObjectStorage interface {
	UploadObject(ctx context.Context, bucket, key string, data []byte, contentType string) error
	DeleteObject(ctx context.Context, bucket, key string) error
	SignedURL(bucket, key string, ttl time.Duration) (string, error)
}

// SessionCache is the short-lived cache behind stream session handoff.
type SessionCache interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Get returns ErrCacheMiss when the key is absent or expired.
	Get(ctx context.Context, key string) ([]byte, error)
	Del(ctx context.Context, key string) error
}

// ContextBuilder assembles conversation memory, retrieved document context
// and the final prompt for a turn.
type ContextBuilder interface {
	FormatRecentHistory(messages []models.ChatMessage) string
	SummaryDue(count int) bool
	GenerateSummary(ctx context.Context, chatID uuid.UUID, count int, messages []models.ChatMessage) error
	LatestSummary(chatID uuid.UUID) (string, error)
	RetrieveDocumentContext(ctx context.Context, message string, chatID, userID uuid.UUID, selectedDocumentIDs []string, messages []models.ChatMessage, turnCount int) (*RetrievalResult, error)
	BuildPrompt(educationLevel, recentHistory, olderSummary, documentContext, message string, pageFocus *PageFocus) string
}

// StreamSessions hands streaming request parameters between the two phases
// of the create-session / open-stream interaction.
type StreamSessions interface {
	Create(ctx context.Context, session StreamSession, authToken string) (string, error)
	Get(ctx context.Context, chatID string) (*StreamSession, error)
	Delete(ctx context.Context, chatID string) error
}
