package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	apperrors "docuchat_go_backend/internal/errors"
	"docuchat_go_backend/internal/models"
	"docuchat_go_backend/internal/vecstore"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// systemInstruction fixes the assistant's document-grounding behavior for
// every completion, buffered or streamed.
const systemInstruction = `You are a document-grounded assistant that helps users understand and reason about their uploaded documents.

When document context is provided, ground your responses strictly in that content and treat it as the primary and authoritative source.
Refer to it naturally, for example "based on your document..." or "you can also find this on page 12". Only state a document name when multiple documents are provided.

If page numbers or document names are not available, do not fabricate them; answer without citation.
If a question cannot be answered from the provided material, clearly say the information is not present in it.
Do not introduce information unsupported by the document unless explicitly requested.

You cannot search the web and cannot produce images, only ascii art. This information is for you, not the user.

If recent chat history or an older chat summary is available, treat it as your own memory, not as material provided to you, and always take it into account when responding.

Be concise unless the user asks otherwise, and do not state that you are being concise.
Always wrap ascii art in triple backticks, and only produce ascii art when relevant.
Use "---" to separate sections when necessary and markdown tables when appropriate.
Never use em dashes; use normal punctuation instead.
When pointing the user at the document, refer to the page number or section when available.`

// ChatRef identifies the target chat of a request: either an existing chat
// id or an instruction to create a fresh chat for this turn.
type ChatRef struct {
	CreateNew bool
	ID        uuid.UUID
}

// ParseChatRef accepts a chat id or the literal "new".
func ParseChatRef(raw string) (ChatRef, error) {
	if raw == "new" {
		return ChatRef{CreateNew: true}, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return ChatRef{}, apperrors.New400Error("Invalid chat id")
	}
	return ChatRef{ID: id}, nil
}

// SourceDocument is the client-facing citation for one retrieved chunk.
type SourceDocument struct {
	Page    any    `json:"page"`
	Source  string `json:"source"`
	Content string `json:"content"`
}

type SendMessageResult struct {
	ChatID          uuid.UUID           `json:"chatId"`
	Message         *models.ChatMessage `json:"message"`
	SourceDocuments []SourceDocument    `json:"sourceDocuments"`
}

// ChatService orchestrates the conversation pipeline: memory, retrieval,
// prompt assembly and completion, plus chat and document lifecycle.
type ChatService struct {
	log       zerolog.Logger
	store     ChatStore
	context   ContextBuilder
	completer Completer
	documents *DocumentService
	sessions  StreamSessions
	index     VectorIndex
}

func NewChatService(
	log zerolog.Logger,
	store ChatStore,
	contextBuilder ContextBuilder,
	completer Completer,
	documents *DocumentService,
	sessions StreamSessions,
	index VectorIndex,
) *ChatService {
	return &ChatService{
		log:       log.With().Str("service", "ChatService").Logger(),
		store:     store,
		context:   contextBuilder,
		completer: completer,
		documents: documents,
		sessions:  sessions,
		index:     index,
	}
}

// resolveChat loads the referenced chat for the user, creating a fresh one
// when asked to. Ownership is always checked on existing chats.
func (s *ChatService) resolveChat(ref ChatRef, userID uuid.UUID, withDocuments bool) (*models.Chat, error) {
	if ref.CreateNew {
		chat := &models.Chat{UserID: userID}
		if err := s.store.CreateChat(chat); err != nil {
			return nil, apperrors.LogAndReturn500(err)
		}
		return chat, nil
	}
	chat, err := s.store.GetChatForUser(ref.ID, userID, withDocuments)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.New404Error("Chat not found")
		}
		return nil, apperrors.LogAndReturn500(err)
	}
	return chat, nil
}

func truncateTitle(message string) string {
	runes := []rune(message)
	if len(runes) > models.ChatTitleMaxLength {
		runes = runes[:models.ChatTitleMaxLength]
	}
	return string(runes)
}

// maybeRenameChat sets the title from the first message, once.
func (s *ChatService) maybeRenameChat(chat *models.Chat, message string) {
	if chat.Title != models.DefaultChatTitle {
		return
	}
	if err := s.store.UpdateChatTitle(chat.ID, truncateTitle(message)); err != nil {
		s.log.Error().Err(err).Str("chatId", chat.ID.String()).Msg("Failed to update chat title")
	}
}

// scheduleSummary regenerates the rolling summary in the background when the
// cadence fires. The answering path never waits on it.
func (s *ChatService) scheduleSummary(chatID uuid.UUID, count int, messages []models.ChatMessage) {
	if !s.context.SummaryDue(count) {
		return
	}
	go func() {
		if err := s.context.GenerateSummary(context.Background(), chatID, count, messages); err != nil {
			s.log.Error().Err(err).Str("chatId", chatID.String()).Msg("Failed to generate chat summary")
		}
	}()
}

// retrieveIfSelected runs retrieval only when the chat has documents and the
// caller selected some. Otherwise the turn proceeds without document
// context and no vector calls are made.
func (s *ChatService) retrieveIfSelected(ctx context.Context, chat *models.Chat, userID uuid.UUID, message string, selectedDocumentIDs []string, messages []models.ChatMessage, turnCount int) (*RetrievalResult, error) {
	if len(chat.Documents) == 0 || len(selectedDocumentIDs) == 0 {
		return &RetrievalResult{}, nil
	}
	return s.context.RetrieveDocumentContext(ctx, message, chat.ID, userID, selectedDocumentIDs, messages, turnCount)
}

func sourceDocuments(retrieval *RetrievalResult) []SourceDocument {
	sources := make([]SourceDocument, 0, len(retrieval.Metadatas))
	for i, metadata := range retrieval.Metadatas {
		source := SourceDocument{Page: metadata["page"]}
		if v, ok := metadata["source"].(string); ok && v != "" {
			source.Source = v
		} else if v, ok := metadata["fileName"].(string); ok {
			source.Source = v
		}
		if i < len(retrieval.Documents) {
			content := []rune(retrieval.Documents[i])
			if len(content) > 200 {
				content = content[:200]
			}
			source.Content = string(content) + "..."
		}
		sources = append(sources, source)
	}
	return sources
}

// SendMessage runs one buffered conversation turn and persists it.
func (s *ChatService) SendMessage(ctx context.Context, ref ChatRef, userID uuid.UUID, message string, selectedDocumentIDs []string, pageFocus *PageFocus) (*SendMessageResult, error) {
	if strings.TrimSpace(message) == "" {
		return nil, apperrors.New400Error("Message is required")
	}

	chat, err := s.resolveChat(ref, userID, true)
	if err != nil {
		return nil, err
	}
	s.maybeRenameChat(chat, message)

	count, err := s.store.CountMessages(chat.ID)
	if err != nil {
		return nil, apperrors.LogAndReturn500(err)
	}
	messages, err := s.store.GetMessages(chat.ID)
	if err != nil {
		return nil, apperrors.LogAndReturn500(err)
	}
	user, err := s.store.GetUser(userID)
	if err != nil {
		return nil, apperrors.LogAndReturn500(err)
	}

	s.scheduleSummary(chat.ID, count, messages)

	recentHistory := s.context.FormatRecentHistory(messages)
	olderSummary, err := s.context.LatestSummary(chat.ID)
	if err != nil {
		return nil, apperrors.LogAndReturn500(err)
	}

	retrieval, err := s.retrieveIfSelected(ctx, chat, userID, message, selectedDocumentIDs, messages, count)
	if err != nil {
		return nil, apperrors.LogAndReturn500(err)
	}

	prompt := s.context.BuildPrompt(user.EducationLevel, recentHistory, olderSummary, retrieval.Context, message, pageFocus)
	assistantText, totalTokens, err := s.completer.Complete(ctx, CompletionRequest{
		System: systemInstruction,
		Prompt: prompt,
	})
	if err != nil {
		return nil, apperrors.LogAndReturn500(fmt.Errorf("completion failed: %w", err))
	}

	saved := &models.ChatMessage{
		ChatID:      chat.ID,
		Turn:        models.NewTurn(message, assistantText),
		TotalTokens: int(totalTokens),
	}
	if err := s.store.CreateMessage(saved); err != nil {
		return nil, apperrors.LogAndReturn500(err)
	}

	return &SendMessageResult{
		ChatID:          chat.ID,
		Message:         saved,
		SourceDocuments: sourceDocuments(retrieval),
	}, nil
}

// CreateStreamSession is phase one of the streaming interaction: it resolves
// (or creates) the chat and parks the request parameters in the session
// cache for the subsequent stream open.
func (s *ChatService) CreateStreamSession(ctx context.Context, ref ChatRef, userID uuid.UUID, message, authToken string, selectedDocumentIDs []string, pageFocus *PageFocus) (string, error) {
	if strings.TrimSpace(message) == "" {
		return "", apperrors.New400Error("Message is required")
	}
	chat, err := s.resolveChat(ref, userID, false)
	if err != nil {
		return "", err
	}
	sessionID, err := s.sessions.Create(ctx, StreamSession{
		ChatID:              chat.ID.String(),
		UserID:              userID.String(),
		Message:             message,
		SelectedDocumentIDs: selectedDocumentIDs,
		PageFocus:           pageFocus,
	}, authToken)
	if err != nil {
		return "", apperrors.LogAndReturn500(err)
	}
	return sessionID, nil
}

// OpenStream is phase two: it consumes the parked session and drives a
// streamed completion, delivering each delta through onDelta. The caller's
// token must fingerprint-match the one captured at session creation. The
// session is deleted only after the stream completes successfully; cancelling
// ctx aborts the provider call and nothing is persisted for the turn.
func (s *ChatService) OpenStream(ctx context.Context, chatID uuid.UUID, authToken string, onDelta func(delta string) error) error {
	session, err := s.sessions.Get(ctx, chatID.String())
	if err != nil {
		return err
	}
	if FingerprintToken(authToken) != session.AuthTokenHash {
		return apperrors.New401Error()
	}
	userID, err := uuid.Parse(session.UserID)
	if err != nil {
		return apperrors.LogAndReturn500(fmt.Errorf("stream session holds invalid user id: %w", err))
	}

	chat, err := s.resolveChat(ChatRef{ID: chatID}, userID, true)
	if err != nil {
		return err
	}
	go s.maybeRenameChat(chat, session.Message)

	count, err := s.store.CountMessages(chat.ID)
	if err != nil {
		return apperrors.LogAndReturn500(err)
	}

	// The full history is only needed when the summary cadence fires; the
	// recent window suffices otherwise.
	var messages []models.ChatMessage
	if s.context.SummaryDue(count) {
		messages, err = s.store.GetMessages(chat.ID)
	} else {
		messages, err = s.store.GetRecentMessages(chat.ID, recentHistoryTurns)
	}
	if err != nil {
		return apperrors.LogAndReturn500(err)
	}
	user, err := s.store.GetUser(userID)
	if err != nil {
		return apperrors.LogAndReturn500(err)
	}

	s.scheduleSummary(chat.ID, count, messages)

	recentHistory := s.context.FormatRecentHistory(messages)
	olderSummary, err := s.context.LatestSummary(chat.ID)
	if err != nil {
		return apperrors.LogAndReturn500(err)
	}

	retrieval, err := s.retrieveIfSelected(ctx, chat, userID, session.Message, session.SelectedDocumentIDs, messages, count)
	if err != nil {
		return apperrors.LogAndReturn500(err)
	}

	prompt := s.context.BuildPrompt(user.EducationLevel, recentHistory, olderSummary, retrieval.Context, session.Message, session.PageFocus)
	fullText, err := s.completer.CompleteStream(ctx, CompletionRequest{
		System: systemInstruction,
		Prompt: prompt,
	}, onDelta)
	if err != nil {
		if ctx.Err() != nil {
			s.log.Info().Str("chatId", chat.ID.String()).Msg("Stream cancelled by client")
			return ctx.Err()
		}
		return apperrors.LogAndReturn500(fmt.Errorf("streamed completion failed: %w", err))
	}

	// Token usage is not reported for streamed calls, so the persisted turn
	// records zero.
	go func() {
		saved := &models.ChatMessage{
			ChatID: chat.ID,
			Turn:   models.NewTurn(session.Message, fullText),
		}
		if err := s.store.CreateMessage(saved); err != nil {
			s.log.Error().Err(err).Str("chatId", chat.ID.String()).Msg("Failed to persist streamed message")
		}
	}()

	if err := s.sessions.Delete(ctx, chatID.String()); err != nil {
		s.log.Error().Err(err).Str("chatId", chatID.String()).Msg("Failed to consume stream session")
	}
	return nil
}

// CreateChat creates an empty chat with the default title. Clients that
// generate ids up front may supply one; a duplicate id is a conflict, not a
// silent overwrite.
func (s *ChatService) CreateChat(userID uuid.UUID, clientID *uuid.UUID) (*models.Chat, error) {
	chat := &models.Chat{UserID: userID}
	if clientID != nil {
		chat.ID = *clientID
	}
	if err := s.store.CreateChat(chat); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperrors.New409Error("A chat with this id already exists")
		}
		return nil, apperrors.LogAndReturn500(err)
	}
	return chat, nil
}

// GetChats lists the user's chats that contain at least one message, newest
// first.
func (s *ChatService) GetChats(userID uuid.UUID) ([]models.Chat, error) {
	chats, err := s.store.ListChatsWithMessages(userID)
	if err != nil {
		return nil, apperrors.LogAndReturn500(err)
	}
	return chats, nil
}

// GetChat loads one chat with its messages and documents.
func (s *ChatService) GetChat(chatID, userID uuid.UUID) (*models.Chat, error) {
	chat, err := s.store.GetChatWithHistory(chatID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.New404Error("Chat not found")
		}
		return nil, apperrors.LogAndReturn500(err)
	}
	return chat, nil
}

// DeleteChat removes the chat and its rows, plus the chat's vector chunks on
// a best-effort basis.
func (s *ChatService) DeleteChat(ctx context.Context, chatID, userID uuid.UUID) error {
	if _, err := s.resolveChat(ChatRef{ID: chatID}, userID, false); err != nil {
		return err
	}
	if err := s.index.DeleteWhere(ctx, vecstore.Metadata{"chatId": vecstore.Metadata{"$eq": chatID.String()}}); err != nil {
		s.log.Error().Err(err).Str("chatId", chatID.String()).Msg("Failed to delete chat chunks from vector store")
	}
	if err := s.store.DeleteChat(chatID); err != nil {
		return apperrors.LogAndReturn500(err)
	}
	return nil
}

// UpdateMessageFeedback sets or clears the helpful flag on one message.
func (s *ChatService) UpdateMessageFeedback(chatID, messageID, userID uuid.UUID, helpful *bool) error {
	if _, err := s.resolveChat(ChatRef{ID: chatID}, userID, false); err != nil {
		return err
	}
	if _, err := s.store.GetMessageInChat(chatID, messageID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.New404Error("Message not found in this chat")
		}
		return apperrors.LogAndReturn500(err)
	}
	if err := s.store.UpdateMessageFeedback(messageID, helpful); err != nil {
		return apperrors.LogAndReturn500(err)
	}
	return nil
}

// UploadDocuments ingests files into the referenced chat, creating the chat
// first when asked to.
func (s *ChatService) UploadDocuments(ctx context.Context, ref ChatRef, userID uuid.UUID, files []UploadFile) (uuid.UUID, *UploadResult, error) {
	if len(files) == 0 {
		return uuid.Nil, nil, apperrors.New400Error("No files provided")
	}
	chat, err := s.resolveChat(ref, userID, false)
	if err != nil {
		return uuid.Nil, nil, err
	}
	result, err := s.documents.UploadDocuments(ctx, chat.ID, userID, files)
	if err != nil {
		return uuid.Nil, nil, apperrors.LogAndReturn500(err)
	}
	return chat.ID, result, nil
}

// RemoveDocument removes one document after checking chat ownership.
func (s *ChatService) RemoveDocument(ctx context.Context, chatID, documentID, userID uuid.UUID) error {
	if _, err := s.resolveChat(ChatRef{ID: chatID}, userID, false); err != nil {
		return err
	}
	if err := s.documents.RemoveDocument(ctx, chatID, documentID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.New404Error("Document not found in this chat")
		}
		return apperrors.LogAndReturn500(err)
	}
	return nil
}

// SignedDocumentURL returns a temporary download link for the original file.
func (s *ChatService) SignedDocumentURL(chatID, documentID, userID uuid.UUID) (string, error) {
	if _, err := s.resolveChat(ChatRef{ID: chatID}, userID, false); err != nil {
		return "", err
	}
	url, err := s.documents.SignedDocumentURL(chatID, documentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", apperrors.New404Error("Document not found in this chat")
		}
		return "", apperrors.LogAndReturn500(err)
	}
	return url, nil
}
