package services_test

import (
	"context"
	"strings"
	"testing"
	"time"

	apperrors "docuchat_go_backend/internal/errors"
	"docuchat_go_backend/internal/models"
	"docuchat_go_backend/internal/services"
	"docuchat_go_backend/internal/vecstore"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type chatServiceFixture struct {
	store     *MockChatStore
	builder   *MockContextBuilder
	completer *MockCompleter
	sessions  *MockStreamSessions
	index     *MockVectorIndex
	service   *services.ChatService
}

func newChatServiceFixture() *chatServiceFixture {
	f := &chatServiceFixture{
		store:     &MockChatStore{},
		builder:   &MockContextBuilder{},
		completer: &MockCompleter{},
		sessions:  &MockStreamSessions{},
		index:     &MockVectorIndex{},
	}
	extractor := &MockPDFExtractor{}
	embedder := &MockEmbedder{}
	storage := &MockObjectStorage{}
	chunker, _ := services.NewChunker(1000, 200)
	documents := services.NewDocumentService(
		zerolog.Nop(), f.store, extractor, chunker, embedder, f.index,
		storage, "user-docs", 5, time.Hour)
	f.service = services.NewChatService(
		zerolog.Nop(), f.store, f.builder, f.completer, documents, f.sessions, f.index)
	return f
}

func TestParseChatRef(t *testing.T) {
	ref, err := services.ParseChatRef("new")
	require.NoError(t, err)
	assert.True(t, ref.CreateNew)

	id := uuid.New()
	ref, err = services.ParseChatRef(id.String())
	require.NoError(t, err)
	assert.False(t, ref.CreateNew)
	assert.Equal(t, id, ref.ID)

	_, err = services.ParseChatRef("not-a-uuid")
	require.Error(t, err)
	customErr, ok := err.(*apperrors.CustomError)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrorTypeBadRequest, customErr.Type)
}

func TestSendMessageNewChat(t *testing.T) {
	f := newChatServiceFixture()
	userID := uuid.New()
	message := "What is entropy in thermodynamics, explained simply for me?"

	f.store.On("CreateChat", mock.AnythingOfType("*models.Chat")).Return(nil)
	f.store.On("UpdateChatTitle", mock.Anything, "What is entropy in thermodyn").Return(nil)
	f.store.On("CountMessages", mock.Anything).Return(0, nil)
	f.store.On("GetMessages", mock.Anything).Return([]models.ChatMessage{}, nil)
	f.store.On("GetUser", userID).Return(&models.User{ID: userID, EducationLevel: "undergraduate"}, nil)

	f.builder.On("SummaryDue", 0).Return(false)
	f.builder.On("FormatRecentHistory", mock.Anything).Return("")
	f.builder.On("LatestSummary", mock.Anything).Return("", nil)
	f.builder.On("BuildPrompt", "undergraduate", "", "", "", message, (*services.PageFocus)(nil)).
		Return("assembled prompt")

	f.completer.On("Complete", mock.Anything, mock.MatchedBy(func(req services.CompletionRequest) bool {
		return req.Prompt == "assembled prompt" && req.System != ""
	})).Return("Entropy measures disorder.", 42, nil)

	var saved *models.ChatMessage
	f.store.On("CreateMessage", mock.AnythingOfType("*models.ChatMessage")).
		Run(func(args mock.Arguments) { saved = args.Get(0).(*models.ChatMessage) }).
		Return(nil)

	result, err := f.service.SendMessage(context.Background(), services.ChatRef{CreateNew: true}, userID, message, nil, nil)

	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.Equal(t, message, saved.Turn.Data().User)
	assert.Equal(t, "Entropy measures disorder.", saved.Turn.Data().Assistant)
	assert.Equal(t, 42, saved.TotalTokens)
	assert.Equal(t, result.ChatID, saved.ChatID)
	assert.Empty(t, result.SourceDocuments)
	f.index.AssertNotCalled(t, "Query")
}

func TestSendMessageGroundedWithSources(t *testing.T) {
	f := newChatServiceFixture()
	userID := uuid.New()
	chatID := uuid.New()
	docID := uuid.New().String()
	longChunk := strings.Repeat("x", 300)

	chat := &models.Chat{
		ID:        chatID,
		UserID:    userID,
		Title:     "Existing chat",
		Documents: []models.Document{{ID: uuid.New(), ChatID: chatID}},
	}
	f.store.On("GetChatForUser", chatID, userID, true).Return(chat, nil)
	f.store.On("CountMessages", chatID).Return(2, nil)
	f.store.On("GetMessages", chatID).Return([]models.ChatMessage{}, nil)
	f.store.On("GetUser", userID).Return(&models.User{ID: userID}, nil)
	f.store.On("CreateMessage", mock.Anything).Return(nil)

	retrieval := &services.RetrievalResult{
		Context:   "[Page 2 - physics.pdf]\n" + longChunk,
		Metadatas: []vecstore.Metadata{{"page": float64(2), "source": "physics.pdf"}},
		Documents: []string{longChunk},
	}
	f.builder.On("SummaryDue", 2).Return(false)
	f.builder.On("FormatRecentHistory", mock.Anything).Return("history")
	f.builder.On("LatestSummary", chatID).Return("", nil)
	f.builder.On("RetrieveDocumentContext", mock.Anything, "question", chatID, userID, []string{docID}, mock.Anything, 2).
		Return(retrieval, nil)
	f.builder.On("BuildPrompt", "", "history", "", retrieval.Context, "question", (*services.PageFocus)(nil)).
		Return("prompt with context")
	f.completer.On("Complete", mock.Anything, mock.Anything).Return("grounded answer", 10, nil)

	result, err := f.service.SendMessage(context.Background(), services.ChatRef{ID: chatID}, userID, "question", []string{docID}, nil)

	require.NoError(t, err)
	require.Len(t, result.SourceDocuments, 1)
	source := result.SourceDocuments[0]
	assert.Equal(t, float64(2), source.Page)
	assert.Equal(t, "physics.pdf", source.Source)
	assert.Equal(t, strings.Repeat("x", 200)+"...", source.Content)
	// Title already customized, so no rename.
	f.store.AssertNotCalled(t, "UpdateChatTitle", mock.Anything, mock.Anything)
}

func TestSendMessageSkipsRetrievalWithoutSelection(t *testing.T) {
	f := newChatServiceFixture()
	userID := uuid.New()
	chatID := uuid.New()

	chat := &models.Chat{
		ID:        chatID,
		UserID:    userID,
		Title:     "Existing chat",
		Documents: []models.Document{{ID: uuid.New()}},
	}
	f.store.On("GetChatForUser", chatID, userID, true).Return(chat, nil)
	f.store.On("CountMessages", chatID).Return(0, nil)
	f.store.On("GetMessages", chatID).Return([]models.ChatMessage{}, nil)
	f.store.On("GetUser", userID).Return(&models.User{ID: userID}, nil)
	f.store.On("CreateMessage", mock.Anything).Return(nil)

	f.builder.On("SummaryDue", 0).Return(false)
	f.builder.On("FormatRecentHistory", mock.Anything).Return("")
	f.builder.On("LatestSummary", chatID).Return("", nil)
	f.builder.On("BuildPrompt", mock.Anything, mock.Anything, mock.Anything, "", "question", (*services.PageFocus)(nil)).
		Return("prompt")
	f.completer.On("Complete", mock.Anything, mock.Anything).Return("answer", 1, nil)

	_, err := f.service.SendMessage(context.Background(), services.ChatRef{ID: chatID}, userID, "question", nil, nil)

	require.NoError(t, err)
	f.builder.AssertNotCalled(t, "RetrieveDocumentContext",
		mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSendMessageRejectsEmptyMessage(t *testing.T) {
	f := newChatServiceFixture()

	_, err := f.service.SendMessage(context.Background(), services.ChatRef{CreateNew: true}, uuid.New(), "   ", nil, nil)

	require.Error(t, err)
	customErr, ok := err.(*apperrors.CustomError)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrorTypeBadRequest, customErr.Type)
}

func TestOpenStreamDeliversDeltasAndPersists(t *testing.T) {
	f := newChatServiceFixture()
	userID := uuid.New()
	chatID := uuid.New()
	token := "bearer-token"

	session := &services.StreamSession{
		ChatID:        chatID.String(),
		UserID:        userID.String(),
		Message:       "stream question",
		AuthTokenHash: services.FingerprintToken(token),
	}
	f.sessions.On("Get", mock.Anything, chatID.String()).Return(session, nil)
	f.sessions.On("Delete", mock.Anything, chatID.String()).Return(nil)

	chat := &models.Chat{ID: chatID, UserID: userID, Title: "Existing chat"}
	f.store.On("GetChatForUser", chatID, userID, true).Return(chat, nil)
	f.store.On("CountMessages", chatID).Return(2, nil)
	f.store.On("GetRecentMessages", chatID, 4).Return([]models.ChatMessage{}, nil)
	f.store.On("GetUser", userID).Return(&models.User{ID: userID}, nil)

	f.builder.On("SummaryDue", 2).Return(false)
	f.builder.On("FormatRecentHistory", mock.Anything).Return("")
	f.builder.On("LatestSummary", chatID).Return("older summary", nil)
	f.builder.On("BuildPrompt", "", "", "older summary", "", "stream question", (*services.PageFocus)(nil)).
		Return("stream prompt")

	f.completer.Deltas = []string{"Hel", "lo"}
	f.completer.On("CompleteStream", mock.Anything, mock.Anything).Return("Hello", nil)

	persisted := make(chan *models.ChatMessage, 1)
	f.store.On("CreateMessage", mock.AnythingOfType("*models.ChatMessage")).
		Run(func(args mock.Arguments) { persisted <- args.Get(0).(*models.ChatMessage) }).
		Return(nil)

	var received []string
	err := f.service.OpenStream(context.Background(), chatID, token, func(delta string) error {
		received = append(received, delta)
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"Hel", "lo"}, received)

	select {
	case saved := <-persisted:
		assert.Equal(t, "stream question", saved.Turn.Data().User)
		assert.Equal(t, "Hello", saved.Turn.Data().Assistant)
		assert.Equal(t, 0, saved.TotalTokens)
	case <-time.After(2 * time.Second):
		t.Fatal("streamed message was never persisted")
	}
	f.sessions.AssertCalled(t, "Delete", mock.Anything, chatID.String())
}

func TestOpenStreamRewritesQueryOnLongChat(t *testing.T) {
	store := &MockChatStore{}
	completer := &MockCompleter{}
	embedder := &MockEmbedder{}
	index := &MockVectorIndex{}
	sessions := &MockStreamSessions{}
	chunker, _ := services.NewChunker(1000, 200)
	documents := services.NewDocumentService(
		zerolog.Nop(), store, &MockPDFExtractor{}, chunker, embedder, index,
		&MockObjectStorage{}, "user-docs", 5, time.Hour)
	contextService := services.NewContextService(zerolog.Nop(), store, completer, embedder, index)
	service := services.NewChatService(
		zerolog.Nop(), store, contextService, completer, documents, sessions, index)

	userID, chatID := uuid.New(), uuid.New()
	docID := uuid.New().String()
	token := "tok"

	session := &services.StreamSession{
		ChatID:              chatID.String(),
		UserID:              userID.String(),
		Message:             "what about that?",
		AuthTokenHash:       services.FingerprintToken(token),
		SelectedDocumentIDs: []string{docID},
	}
	sessions.On("Get", mock.Anything, chatID.String()).Return(session, nil)
	sessions.On("Delete", mock.Anything, chatID.String()).Return(nil)

	chat := &models.Chat{
		ID: chatID, UserID: userID, Title: "Existing chat",
		Documents: []models.Document{{ID: uuid.New(), ChatID: chatID}},
	}
	store.On("GetChatForUser", chatID, userID, true).Return(chat, nil)
	// Ten turns: the summary cadence is not due, so only the recent window
	// is loaded. The rewrite must still fire off the turn count.
	store.On("CountMessages", chatID).Return(10, nil)
	store.On("GetRecentMessages", chatID, 4).Return(turns(4), nil)
	store.On("GetUser", userID).Return(&models.User{ID: userID}, nil)
	store.On("LatestSummary", chatID).Return(nil, nil)

	completer.On("Complete", mock.Anything, mock.MatchedBy(func(req services.CompletionRequest) bool {
		return req.MaxOutputTokens != nil && strings.Contains(req.Prompt, "question 4")
	})).Return("standalone query", 5, nil)
	embedder.On("EmbedTexts", mock.Anything, []string{"standalone query"}).Return([][]float32{{0.5}}, nil)
	index.On("Query", mock.Anything, []float32{0.5}, 4, mock.Anything).Return([]vecstore.Hit{}, nil)

	completer.Deltas = []string{"answer"}
	completer.On("CompleteStream", mock.Anything, mock.Anything).Return("answer", nil)

	persisted := make(chan struct{}, 1)
	store.On("CreateMessage", mock.Anything).
		Run(func(mock.Arguments) { persisted <- struct{}{} }).
		Return(nil)

	err := service.OpenStream(context.Background(), chatID, token, func(string) error { return nil })

	require.NoError(t, err)
	completer.AssertCalled(t, "Complete", mock.Anything, mock.Anything)
	embedder.AssertExpectations(t)
	select {
	case <-persisted:
	case <-time.After(2 * time.Second):
		t.Fatal("streamed message was never persisted")
	}
}

func TestOpenStreamSessionNotFound(t *testing.T) {
	f := newChatServiceFixture()
	chatID := uuid.New()
	f.sessions.On("Get", mock.Anything, chatID.String()).Return(nil, services.ErrStreamSessionNotFound)

	err := f.service.OpenStream(context.Background(), chatID, "token", func(string) error { return nil })

	assert.ErrorIs(t, err, services.ErrStreamSessionNotFound)
}

func TestOpenStreamRejectsWrongToken(t *testing.T) {
	f := newChatServiceFixture()
	chatID := uuid.New()
	session := &services.StreamSession{
		ChatID:        chatID.String(),
		UserID:        uuid.New().String(),
		Message:       "question",
		AuthTokenHash: services.FingerprintToken("the-real-token"),
	}
	f.sessions.On("Get", mock.Anything, chatID.String()).Return(session, nil)

	err := f.service.OpenStream(context.Background(), chatID, "a-different-token", func(string) error { return nil })

	require.Error(t, err)
	customErr, ok := err.(*apperrors.CustomError)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrorTypeUnauthorized, customErr.Type)
}

func TestOpenStreamCancellationPersistsNothing(t *testing.T) {
	f := newChatServiceFixture()
	userID := uuid.New()
	chatID := uuid.New()
	token := "tok"

	session := &services.StreamSession{
		ChatID:        chatID.String(),
		UserID:        userID.String(),
		Message:       "question",
		AuthTokenHash: services.FingerprintToken(token),
	}
	f.sessions.On("Get", mock.Anything, chatID.String()).Return(session, nil)

	chat := &models.Chat{ID: chatID, UserID: userID, Title: "Existing chat"}
	f.store.On("GetChatForUser", chatID, userID, true).Return(chat, nil)
	f.store.On("CountMessages", chatID).Return(0, nil)
	f.store.On("GetRecentMessages", chatID, 4).Return([]models.ChatMessage{}, nil)
	f.store.On("GetUser", userID).Return(&models.User{ID: userID}, nil)

	f.builder.On("SummaryDue", 0).Return(false)
	f.builder.On("FormatRecentHistory", mock.Anything).Return("")
	f.builder.On("LatestSummary", chatID).Return("", nil)
	f.builder.On("BuildPrompt", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return("prompt")

	ctx, cancel := context.WithCancel(context.Background())
	f.completer.On("CompleteStream", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { cancel() }).
		Return("", context.Canceled)

	err := f.service.OpenStream(ctx, chatID, token, func(string) error { return nil })

	assert.ErrorIs(t, err, context.Canceled)
	f.store.AssertNotCalled(t, "CreateMessage", mock.Anything)
	f.sessions.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
}

func TestCreateStreamSessionParksParameters(t *testing.T) {
	f := newChatServiceFixture()
	userID := uuid.New()
	chatID := uuid.New()
	chat := &models.Chat{ID: chatID, UserID: userID, Title: "Existing chat"}

	f.store.On("GetChatForUser", chatID, userID, false).Return(chat, nil)
	f.sessions.On("Create", mock.Anything, mock.MatchedBy(func(session services.StreamSession) bool {
		return session.ChatID == chatID.String() &&
			session.UserID == userID.String() &&
			session.Message == "question" &&
			len(session.SelectedDocumentIDs) == 1
	}), "raw-token").Return(chatID.String(), nil)

	sessionID, err := f.service.CreateStreamSession(
		context.Background(), services.ChatRef{ID: chatID}, userID, "question", "raw-token", []string{"doc-1"}, nil)

	require.NoError(t, err)
	assert.Equal(t, chatID.String(), sessionID)
}

func TestCreateChatWithClientSuppliedID(t *testing.T) {
	f := newChatServiceFixture()
	userID := uuid.New()
	clientID := uuid.New()

	f.store.On("CreateChat", mock.MatchedBy(func(chat *models.Chat) bool {
		return chat.ID == clientID && chat.UserID == userID
	})).Return(nil)

	chat, err := f.service.CreateChat(userID, &clientID)

	require.NoError(t, err)
	assert.Equal(t, clientID, chat.ID)
	assert.Equal(t, models.DefaultChatTitle, chat.Title)
}

func TestCreateChatDuplicateIDConflicts(t *testing.T) {
	f := newChatServiceFixture()
	clientID := uuid.New()

	f.store.On("CreateChat", mock.Anything).Return(gorm.ErrDuplicatedKey)

	_, err := f.service.CreateChat(uuid.New(), &clientID)

	require.Error(t, err)
	customErr, ok := err.(*apperrors.CustomError)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrorTypeConflict, customErr.Type)
}

func TestUpdateMessageFeedback(t *testing.T) {
	f := newChatServiceFixture()
	userID := uuid.New()
	chatID := uuid.New()
	messageID := uuid.New()
	helpful := true
	chat := &models.Chat{ID: chatID, UserID: userID, Title: "Existing chat"}

	f.store.On("GetChatForUser", chatID, userID, false).Return(chat, nil)
	f.store.On("GetMessageInChat", chatID, messageID).Return(&models.ChatMessage{ID: messageID, ChatID: chatID}, nil)
	f.store.On("UpdateMessageFeedback", messageID, &helpful).Return(nil)

	err := f.service.UpdateMessageFeedback(chatID, messageID, userID, &helpful)

	require.NoError(t, err)
	f.store.AssertExpectations(t)
}

func TestDeleteChatCleansVectorStore(t *testing.T) {
	f := newChatServiceFixture()
	userID := uuid.New()
	chatID := uuid.New()
	chat := &models.Chat{ID: chatID, UserID: userID, Title: "Existing chat"}

	f.store.On("GetChatForUser", chatID, userID, false).Return(chat, nil)
	f.index.On("DeleteWhere", mock.Anything, vecstore.Metadata{"chatId": vecstore.Metadata{"$eq": chatID.String()}}).Return(nil)
	f.store.On("DeleteChat", chatID).Return(nil)

	err := f.service.DeleteChat(context.Background(), chatID, userID)

	require.NoError(t, err)
	f.index.AssertExpectations(t)
	f.store.AssertExpectations(t)
}
