package services

import (
	"context"
	"fmt"
	"strings"

	"docuchat_go_backend/internal/models"
	"docuchat_go_backend/internal/vecstore"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	// The recent window always holds the last 4 turns verbatim; everything
	// older is covered by rolling summaries.
	recentHistoryTurns = 4
	// Summary regeneration fires when count % summaryCadence == 1 and the
	// chat has more turns than the recent window.
	summaryCadence = 6

	retrievalTopK       = 4
	rewriteHistoryTurns = 2

	summaryMaxTokens = 1024
	rewriteMaxTokens = 256
	lowTemperature   = float32(0.2)
)

const summaryInstruction = `You are a memory compression engine for an AI tutor.

Your task is to summarize a sequence of chat turns into a compact,
loss-minimized memory that will be reused as context in future conversations.

Rules:
- Preserve facts, definitions, decisions, constraints, and conclusions.
- Preserve the user's goals, misunderstandings, and corrections.
- Preserve unresolved questions or tasks.
- Remove greetings, filler, repetition, and stylistic phrasing.
- Do NOT invent information.
- Do NOT explain; only summarize.
- Be concise and information-dense.
- Write in neutral third-person form.`

const rewriteInstruction = `Rewrite the user's latest message into a single self-contained search query for document retrieval.
Resolve pronouns and references using the recent conversation.
Output only the rewritten query, nothing else.`

// RetrievalResult carries the assembled context string plus the raw hits the
// client-facing source-documents summary is built from.
type RetrievalResult struct {
	Context   string
	Metadatas []vecstore.Metadata
	Documents []string
}

// PageFocus is the page the user is currently viewing, forwarded verbatim
// into the prompt.
type PageFocus struct {
	PageNumber  int    `json:"pageNumber"`
	PageContent string `json:"pageContent"`
}

// ContextService owns conversation memory (recent window + rolling
// summaries), retrieval over indexed document chunks, and final prompt
// assembly.
type ContextService struct {
	log       zerolog.Logger
	store     ChatStore
	completer Completer
	embedder  Embedder
	index     VectorIndex
}

func NewContextService(log zerolog.Logger, store ChatStore, completer Completer, embedder Embedder, index VectorIndex) *ContextService {
	return &ContextService{
		log:       log.With().Str("service", "ContextService").Logger(),
		store:     store,
		completer: completer,
		embedder:  embedder,
		index:     index,
	}
}

func formatTurns(messages []models.ChatMessage) string {
	lines := make([]string, len(messages))
	for i, m := range messages {
		turn := m.Turn.Data()
		lines[i] = fmt.Sprintf("User: %s\nAssistant: %s", turn.User, turn.Assistant)
	}
	return strings.Join(lines, "\n\n")
}

// FormatRecentHistory renders the last 4 turns as alternating
// "User:/Assistant:" lines.
func (s *ContextService) FormatRecentHistory(messages []models.ChatMessage) string {
	if len(messages) > recentHistoryTurns {
		messages = messages[len(messages)-recentHistoryTurns:]
	}
	return formatTurns(messages)
}

// SummaryDue reports whether the summary cadence fires at this message count.
func (s *ContextService) SummaryDue(count int) bool {
	return count%summaryCadence == 1 && count > recentHistoryTurns
}

// GenerateSummary compacts every turn older than the recent window into a new
// summary row. The new range starts where the previous summary ended, keeping
// coverage contiguous. Callers run this in the background; the answering path
// never waits on it.
func (s *ContextService) GenerateSummary(ctx context.Context, chatID uuid.UUID, count int, messages []models.ChatMessage) error {
	if !s.SummaryDue(count) || len(messages) <= recentHistoryTurns {
		return nil
	}

	history := formatTurns(messages[:len(messages)-recentHistoryTurns])
	prompt := fmt.Sprintf("%s\n\nchat history:\n%s", summaryInstruction, history)

	temperature := lowTemperature
	maxTokens := int32(summaryMaxTokens)
	text, totalTokens, err := s.completer.Complete(ctx, CompletionRequest{
		Prompt:          prompt,
		Temperature:     &temperature,
		MaxOutputTokens: &maxTokens,
	})
	if err != nil {
		return fmt.Errorf("summary completion failed: %w", err)
	}

	startTurn := 1
	previous, err := s.store.LatestSummary(chatID)
	if err != nil {
		return fmt.Errorf("failed to load previous summary: %w", err)
	}
	if previous != nil {
		startTurn = previous.EndTurn + 1
	}

	return s.store.CreateSummary(&models.ChatSummary{
		ChatID:      chatID,
		Summary:     text,
		StartTurn:   startTurn,
		EndTurn:     count - recentHistoryTurns,
		TotalTokens: int(totalTokens),
	})
}

// LatestSummary returns the newest summary text for the chat, or empty when
// none exists yet.
func (s *ContextService) LatestSummary(chatID uuid.UUID) (string, error) {
	summary, err := s.store.LatestSummary(chatID)
	if err != nil {
		return "", err
	}
	if summary == nil {
		return "", nil
	}
	return summary.Summary, nil
}

// rewriteQuery turns the raw message into a self-contained retrieval query
// using the last couple of turns. Rewriting is skipped on short chats and
// falls back to the raw message on any failure. The gate uses the chat's
// turn count rather than len(messages): callers on the streaming path load
// only the recent window, which would otherwise mask a long chat.
func (s *ContextService) rewriteQuery(ctx context.Context, message string, messages []models.ChatMessage, turnCount int) string {
	if turnCount <= recentHistoryTurns || len(messages) == 0 {
		return message
	}
	recent := messages
	if len(recent) > rewriteHistoryTurns {
		recent = recent[len(recent)-rewriteHistoryTurns:]
	}

	prompt := fmt.Sprintf("%s\n\nRecent conversation:\n%s\n\nLatest message: %s",
		rewriteInstruction, formatTurns(recent), message)

	temperature := lowTemperature
	maxTokens := int32(rewriteMaxTokens)
	rewritten, _, err := s.completer.Complete(ctx, CompletionRequest{
		Prompt:          prompt,
		Temperature:     &temperature,
		MaxOutputTokens: &maxTokens,
	})
	if err != nil || strings.TrimSpace(rewritten) == "" {
		s.log.Warn().Err(err).Str("chatMessage", message).Msg("Query rewrite failed, using raw message")
		return message
	}
	return strings.TrimSpace(rewritten)
}

// RetrieveDocumentContext embeds the (possibly rewritten) query and fetches
// the top matching chunks scoped to this chat, user and document selection.
// Retrieval failures degrade to an empty context rather than failing the
// turn.
func (s *ContextService) RetrieveDocumentContext(ctx context.Context, message string, chatID, userID uuid.UUID, selectedDocumentIDs []string, messages []models.ChatMessage, turnCount int) (*RetrievalResult, error) {
	query := s.rewriteQuery(ctx, message, messages, turnCount)

	embeddings, err := s.embedder.EmbedTexts(ctx, []string{query})
	if err != nil || len(embeddings) == 0 {
		s.log.Error().Err(err).Str("chatId", chatID.String()).Msg("Query embedding failed, answering without document context")
		return &RetrievalResult{}, nil
	}

	where := vecstore.Metadata{
		"$and": []vecstore.Metadata{
			{"chatId": vecstore.Metadata{"$eq": chatID.String()}},
			{"userId": vecstore.Metadata{"$eq": userID.String()}},
			{"documentId": vecstore.Metadata{"$in": selectedDocumentIDs}},
		},
	}
	hits, err := s.index.Query(ctx, embeddings[0], retrievalTopK, where)
	if err != nil {
		s.log.Error().Err(err).Str("chatId", chatID.String()).Msg("Vector query failed, answering without document context")
		return &RetrievalResult{}, nil
	}

	result := &RetrievalResult{}
	sections := make([]string, 0, len(hits))
	for _, hit := range hits {
		page := any("N/A")
		fileName := "Unknown"
		if hit.Metadata != nil {
			if v, ok := hit.Metadata["page"]; ok {
				page = v
			}
			if v, ok := hit.Metadata["fileName"].(string); ok && v != "" {
				fileName = v
			}
		}
		sections = append(sections, fmt.Sprintf("[Page %v - %s]\n%s", page, fileName, hit.Document))
		result.Metadatas = append(result.Metadatas, hit.Metadata)
		result.Documents = append(result.Documents, hit.Document)
	}
	result.Context = strings.Join(sections, "\n\n")
	return result, nil
}

// BuildPrompt composes the final prompt in a fixed section order. Empty
// history and summary keep their explicit placeholder lines; the document
// context and page focus sections are omitted entirely when absent.
func (s *ContextService) BuildPrompt(educationLevel, recentHistory, olderSummary, documentContext, message string, pageFocus *PageFocus) string {
	if recentHistory == "" {
		recentHistory = "No recent history yet"
	}
	if olderSummary == "" {
		olderSummary = "No prior summary available"
	}

	var prompt strings.Builder
	fmt.Fprintf(&prompt, "User education level: %s\n\n", educationLevel)
	fmt.Fprintf(&prompt, "recent chat history:\n%s\n\n", recentHistory)
	fmt.Fprintf(&prompt, "older chat summary:\n%s", olderSummary)

	if documentContext != "" {
		fmt.Fprintf(&prompt, "\n\nExtracted context from user uploaded document(s):\n%s", documentContext)
	}
	if pageFocus != nil && pageFocus.PageContent != "" {
		fmt.Fprintf(&prompt, "\n\nUser is currently viewing page %d which contains the following content:\n%s",
			pageFocus.PageNumber, pageFocus.PageContent)
	}
	fmt.Fprintf(&prompt, "\n\nUser Query: %s", message)
	return prompt.String()
}
