package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/rs/zerolog"
	"google.golang.org/api/iterator"
)

const (
	chatModelName      = "gemini-1.5-flash"
	embeddingModelName = "text-embedding-004"

	// The embedding endpoint rejects batches larger than this.
	embeddingBatchSize = 100
)

// GeminiService is the LLM provider adapter. One instance serves both
// completions and embeddings; request-level knobs travel in
// CompletionRequest rather than on the service.
type GeminiService struct {
	log    zerolog.Logger
	client *genai.Client
}

func NewGeminiService(log zerolog.Logger, client *genai.Client) *GeminiService {
	return &GeminiService{
		log:    log.With().Str("service", "GeminiService").Logger(),
		client: client,
	}
}

func (s *GeminiService) model(req CompletionRequest) *genai.GenerativeModel {
	model := s.client.GenerativeModel(chatModelName)
	if req.System != "" {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(req.System)},
		}
	}
	if req.Temperature != nil {
		model.SetTemperature(*req.Temperature)
	}
	if req.MaxOutputTokens != nil {
		model.SetMaxOutputTokens(*req.MaxOutputTokens)
	}
	return model
}

// Complete runs one buffered completion and returns the full text plus the
// provider's total token count for the call.
func (s *GeminiService) Complete(ctx context.Context, req CompletionRequest) (string, int32, error) {
	resp, err := s.model(req).GenerateContent(ctx, genai.Text(req.Prompt))
	if err != nil {
		return "", 0, fmt.Errorf("completion request failed: %w", err)
	}

	text := joinResponseText(resp)
	if text == "" {
		return "", 0, fmt.Errorf("completion returned no text")
	}

	var totalTokens int32
	if resp.UsageMetadata != nil {
		totalTokens = resp.UsageMetadata.TotalTokenCount
	}
	return text, totalTokens, nil
}

// CompleteStream runs one streamed completion, invoking onDelta for each
// text delta in arrival order, and returns the concatenated text. A non-nil
// error from onDelta or a cancelled ctx aborts the provider call.
func (s *GeminiService) CompleteStream(ctx context.Context, req CompletionRequest, onDelta func(delta string) error) (string, error) {
	iter := s.model(req).GenerateContentStream(ctx, genai.Text(req.Prompt))

	var full strings.Builder
	for {
		resp, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return "", fmt.Errorf("streamed completion failed: %w", err)
		}
		delta := joinResponseText(resp)
		if delta == "" {
			continue
		}
		full.WriteString(delta)
		if err := onDelta(delta); err != nil {
			return "", fmt.Errorf("stream consumer aborted: %w", err)
		}
	}
	return full.String(), nil
}

// EmbedTexts embeds every input, batching requests to the provider limit.
// The output preserves input order across batches.
func (s *GeminiService) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	em := s.client.EmbeddingModel(embeddingModelName)

	embeddings := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += embeddingBatchSize {
		end := start + embeddingBatchSize
		if end > len(texts) {
			end = len(texts)
		}

		batch := em.NewBatch()
		for _, text := range texts[start:end] {
			batch.AddContent(genai.Text(text))
		}
		resp, err := em.BatchEmbedContents(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("embedding batch [%d:%d] failed: %w", start, end, err)
		}
		if len(resp.Embeddings) != end-start {
			return nil, fmt.Errorf("embedding batch [%d:%d] returned %d vectors", start, end, len(resp.Embeddings))
		}
		for _, embedding := range resp.Embeddings {
			embeddings = append(embeddings, embedding.Values)
		}
	}
	return embeddings, nil
}

func joinResponseText(resp *genai.GenerateContentResponse) string {
	var sb strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			switch v := part.(type) {
			case genai.Text:
				sb.WriteString(string(v))
			case *genai.Text:
				sb.WriteString(string(*v))
			}
		}
	}
	return sb.String()
}
