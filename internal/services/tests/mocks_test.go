package services_test

import (
	"context"
	"time"

	"docuchat_go_backend/internal/layout"
	"docuchat_go_backend/internal/models"
	"docuchat_go_backend/internal/services"
	"docuchat_go_backend/internal/vecstore"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

type MockChatStore struct {
	mock.Mock
}

func (m *MockChatStore) CreateChat(chat *models.Chat) error {
	args := m.Called(chat)
	if chat.ID == uuid.Nil {
		chat.ID = uuid.New()
	}
	if chat.Title == "" {
		chat.Title = models.DefaultChatTitle
	}
	return args.Error(0)
}

func (m *MockChatStore) GetChatForUser(chatID, userID uuid.UUID, withDocuments bool) (*models.Chat, error) {
	args := m.Called(chatID, userID, withDocuments)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Chat), args.Error(1)
}

func (m *MockChatStore) UpdateChatTitle(chatID uuid.UUID, title string) error {
	args := m.Called(chatID, title)
	return args.Error(0)
}

func (m *MockChatStore) DeleteChat(chatID uuid.UUID) error {
	args := m.Called(chatID)
	return args.Error(0)
}

func (m *MockChatStore) ListChatsWithMessages(userID uuid.UUID) ([]models.Chat, error) {
	args := m.Called(userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Chat), args.Error(1)
}

func (m *MockChatStore) GetChatWithHistory(chatID, userID uuid.UUID) (*models.Chat, error) {
	args := m.Called(chatID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Chat), args.Error(1)
}

func (m *MockChatStore) CountMessages(chatID uuid.UUID) (int, error) {
	args := m.Called(chatID)
	return args.Int(0), args.Error(1)
}

func (m *MockChatStore) GetMessages(chatID uuid.UUID) ([]models.ChatMessage, error) {
	args := m.Called(chatID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.ChatMessage), args.Error(1)
}

func (m *MockChatStore) GetRecentMessages(chatID uuid.UUID, n int) ([]models.ChatMessage, error) {
	args := m.Called(chatID, n)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.ChatMessage), args.Error(1)
}

func (m *MockChatStore) CreateMessage(message *models.ChatMessage) error {
	args := m.Called(message)
	return args.Error(0)
}

func (m *MockChatStore) GetMessageInChat(chatID, messageID uuid.UUID) (*models.ChatMessage, error) {
	args := m.Called(chatID, messageID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ChatMessage), args.Error(1)
}

func (m *MockChatStore) UpdateMessageFeedback(messageID uuid.UUID, helpful *bool) error {
	args := m.Called(messageID, helpful)
	return args.Error(0)
}

func (m *MockChatStore) CountDocuments(chatID uuid.UUID) (int, error) {
	args := m.Called(chatID)
	return args.Int(0), args.Error(1)
}

func (m *MockChatStore) CreateDocument(document *models.Document) error {
	args := m.Called(document)
	if document.ID == uuid.Nil {
		document.ID = uuid.New()
	}
	return args.Error(0)
}

func (m *MockChatStore) GetDocumentInChat(chatID, documentID uuid.UUID) (*models.Document, error) {
	args := m.Called(chatID, documentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Document), args.Error(1)
}

func (m *MockChatStore) DeleteDocument(documentID uuid.UUID) error {
	args := m.Called(documentID)
	return args.Error(0)
}

func (m *MockChatStore) CreateSummary(summary *models.ChatSummary) error {
	args := m.Called(summary)
	return args.Error(0)
}

func (m *MockChatStore) LatestSummary(chatID uuid.UUID) (*models.ChatSummary, error) {
	args := m.Called(chatID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ChatSummary), args.Error(1)
}

func (m *MockChatStore) GetUser(userID uuid.UUID) (*models.User, error) {
	args := m.Called(userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

type MockCompleter struct {
	mock.Mock
	// Deltas are replayed through onDelta during CompleteStream.
	Deltas []string
}

func (m *MockCompleter) Complete(ctx context.Context, req services.CompletionRequest) (string, int32, error) {
	args := m.Called(ctx, req)
	return args.String(0), int32(args.Int(1)), args.Error(2)
}

func (m *MockCompleter) CompleteStream(ctx context.Context, req services.CompletionRequest, onDelta func(delta string) error) (string, error) {
	args := m.Called(ctx, req)
	if args.Error(1) != nil {
		return "", args.Error(1)
	}
	for _, delta := range m.Deltas {
		if err := onDelta(delta); err != nil {
			return "", err
		}
	}
	return args.String(0), nil
}

type MockEmbedder struct {
	mock.Mock
}

func (m *MockEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	args := m.Called(ctx, texts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([][]float32), args.Error(1)
}

type MockVectorIndex struct {
	mock.Mock
}

func (m *MockVectorIndex) Upsert(ctx context.Context, ids []string, embeddings [][]float32, metadatas []vecstore.Metadata, documents []string) error {
	args := m.Called(ctx, ids, embeddings, metadatas, documents)
	return args.Error(0)
}

func (m *MockVectorIndex) Query(ctx context.Context, embedding []float32, k int, where vecstore.Metadata) ([]vecstore.Hit, error) {
	args := m.Called(ctx, embedding, k, where)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]vecstore.Hit), args.Error(1)
}

func (m *MockVectorIndex) DeleteWhere(ctx context.Context, where vecstore.Metadata) error {
	args := m.Called(ctx, where)
	return args.Error(0)
}

type MockPDFExtractor struct {
	mock.Mock
}

func (m *MockPDFExtractor) ExtractFragments(data []byte) ([]layout.Fragment, int, error) {
	args := m.Called(data)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]layout.Fragment), args.Int(1), args.Error(2)
}

type MockObjectStorage struct {
	mock.Mock
}

func (m *MockObjectStorage) UploadObject(ctx context.Context, bucket, key string, data []byte, contentType string) error {
	args := m.Called(ctx, bucket, key, data, contentType)
	return args.Error(0)
}

func (m *MockObjectStorage) DeleteObject(ctx context.Context, bucket, key string) error {
	args := m.Called(ctx, bucket, key)
	return args.Error(0)
}

func (m *MockObjectStorage) SignedURL(bucket, key string, ttl time.Duration) (string, error) {
	args := m.Called(bucket, key, ttl)
	return args.String(0), args.Error(1)
}

type MockStreamSessions struct {
	mock.Mock
}

func (m *MockStreamSessions) Create(ctx context.Context, session services.StreamSession, authToken string) (string, error) {
	args := m.Called(ctx, session, authToken)
	return args.String(0), args.Error(1)
}

func (m *MockStreamSessions) Get(ctx context.Context, chatID string) (*services.StreamSession, error) {
	args := m.Called(ctx, chatID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.StreamSession), args.Error(1)
}

func (m *MockStreamSessions) Delete(ctx context.Context, chatID string) error {
	args := m.Called(ctx, chatID)
	return args.Error(0)
}

type MockContextBuilder struct {
	mock.Mock
}

func (m *MockContextBuilder) FormatRecentHistory(messages []models.ChatMessage) string {
	args := m.Called(messages)
	return args.String(0)
}

func (m *MockContextBuilder) SummaryDue(count int) bool {
	args := m.Called(count)
	return args.Bool(0)
}

func (m *MockContextBuilder) GenerateSummary(ctx context.Context, chatID uuid.UUID, count int, messages []models.ChatMessage) error {
	args := m.Called(ctx, chatID, count, messages)
	return args.Error(0)
}

func (m *MockContextBuilder) LatestSummary(chatID uuid.UUID) (string, error) {
	args := m.Called(chatID)
	return args.String(0), args.Error(1)
}

func (m *MockContextBuilder) RetrieveDocumentContext(ctx context.Context, message string, chatID, userID uuid.UUID, selectedDocumentIDs []string, messages []models.ChatMessage, turnCount int) (*services.RetrievalResult, error) {
	args := m.Called(ctx, message, chatID, userID, selectedDocumentIDs, messages, turnCount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.RetrievalResult), args.Error(1)
}

func (m *MockContextBuilder) BuildPrompt(educationLevel, recentHistory, olderSummary, documentContext, message string, pageFocus *services.PageFocus) string {
	args := m.Called(educationLevel, recentHistory, olderSummary, documentContext, message, pageFocus)
	return args.String(0)
}
