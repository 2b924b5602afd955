package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"docuchat_go_backend/internal/layout"
	"docuchat_go_backend/internal/models"
	"docuchat_go_backend/internal/vecstore"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const pdfMimeType = "application/pdf"

// UploadFile is one inbound file in an upload request.
type UploadFile struct {
	Name        string
	ContentType string
	Size        int64
	Data        []byte
}

type UploadedDocument struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

type FailedUpload struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// UploadResult reports the outcome per file. Files succeed or fail
// independently; one bad PDF never blocks the rest of the batch.
type UploadResult struct {
	Successful     []UploadedDocument `json:"successfulUploads"`
	Failed         []FailedUpload     `json:"failedUploads"`
	RemainingSlots int                `json:"remainingSlots"`
}

// DocumentService owns the ingestion pipeline: PDF text extraction, layout
// reconstruction, chunking, embedding, vector indexing, and the durable copy
// of the original file.
type DocumentService struct {
	log          zerolog.Logger
	store        ChatStore
	extractor    PDFExtractor
	chunker      *Chunker
	embedder     Embedder
	index        VectorIndex
	storage      ObjectStorage
	bucket       string
	maxDocuments int
	signedURLTTL time.Duration
}

func NewDocumentService(
	log zerolog.Logger,
	store ChatStore,
	extractor PDFExtractor,
	chunker *Chunker,
	embedder Embedder,
	index VectorIndex,
	storage ObjectStorage,
	bucket string,
	maxDocuments int,
	signedURLTTL time.Duration,
) *DocumentService {
	return &DocumentService{
		log:          log.With().Str("service", "DocumentService").Logger(),
		store:        store,
		extractor:    extractor,
		chunker:      chunker,
		embedder:     embedder,
		index:        index,
		storage:      storage,
		bucket:       bucket,
		maxDocuments: maxDocuments,
		signedURLTTL: signedURLTTL,
	}
}

// UploadDocuments ingests a batch of files into the chat, enforcing the
// per-chat document cap. Each file is processed independently.
func (s *DocumentService) UploadDocuments(ctx context.Context, chatID, userID uuid.UUID, files []UploadFile) (*UploadResult, error) {
	existing, err := s.store.CountDocuments(chatID)
	if err != nil {
		return nil, fmt.Errorf("failed to count documents: %w", err)
	}
	remaining := s.maxDocuments - existing
	if remaining < 0 {
		remaining = 0
	}

	result := &UploadResult{RemainingSlots: remaining}
	for _, file := range files {
		if file.ContentType != pdfMimeType {
			result.Failed = append(result.Failed, FailedUpload{Name: file.Name, Reason: "Only PDF files are supported"})
			continue
		}
		if result.RemainingSlots <= 0 {
			result.Failed = append(result.Failed, FailedUpload{Name: file.Name, Reason: "No remaining upload slots"})
			continue
		}

		document, err := s.ingestFile(ctx, chatID, userID, file)
		if err != nil {
			s.log.Error().Err(err).Str("fileName", file.Name).Str("chatId", chatID.String()).Msg("Document ingestion failed")
			result.Failed = append(result.Failed, FailedUpload{Name: file.Name, Reason: err.Error()})
			continue
		}
		result.Successful = append(result.Successful, UploadedDocument{ID: document.ID, Name: document.FileName})
		result.RemainingSlots--
	}
	return result, nil
}

// ingestFile runs the full pipeline for one PDF. The document row is created
// as soon as text extraction succeeds; the durable-storage write happens in
// the background and never blocks or fails the upload.
func (s *DocumentService) ingestFile(ctx context.Context, chatID, userID uuid.UUID, file UploadFile) (*models.Document, error) {
	fragments, numPages, err := s.extractor.ExtractFragments(file.Data)
	if err != nil {
		return nil, err
	}

	chunks := s.chunkPages(layout.Reconstruct(fragments, numPages))
	if len(chunks) == 0 {
		return nil, fmt.Errorf("no extractable text in PDF")
	}

	document := &models.Document{
		ChatID:            chatID,
		UserID:            userID,
		FileName:          file.Name,
		FileType:          file.ContentType,
		FileSize:          file.Size,
		StorageKey:        GenerateObjectKey(userID, file.Name),
		VectorStoreID:     fmt.Sprintf("chat_%s", chatID),
		VectorStoreFileID: fmt.Sprintf("%s_%d", chatID, time.Now().UnixMilli()),
	}
	if err := s.store.CreateDocument(document); err != nil {
		return nil, fmt.Errorf("failed to save document record: %w", err)
	}

	go func() {
		if err := s.storage.UploadObject(context.Background(), s.bucket, document.StorageKey, file.Data, file.ContentType); err != nil {
			s.log.Error().Err(err).
				Str("fileName", file.Name).
				Str("storageKey", document.StorageKey).
				Msg("Background storage upload failed")
		}
	}()

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}
	embeddings, err := s.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to embed chunks: %w", err)
	}

	ids := make([]string, len(chunks))
	metadatas := make([]vecstore.Metadata, len(chunks))
	for i, chunk := range chunks {
		ids[i] = fmt.Sprintf("%s_chunk_%d", document.ID, i)
		metadatas[i] = vecstore.Metadata{
			"documentId": document.ID.String(),
			"chatId":     chatID.String(),
			"userId":     userID.String(),
			"page":       chunk.Page,
			"fileName":   file.Name,
			"source":     file.Name,
		}
	}
	if err := s.index.Upsert(ctx, ids, embeddings, metadatas, texts); err != nil {
		return nil, fmt.Errorf("failed to index chunks: %w", err)
	}
	return document, nil
}

func (s *DocumentService) chunkPages(paragraphs []layout.Paragraph) []Chunk {
	var chunks []Chunk
	var pageTexts []string
	currentPage := 0

	flush := func() {
		if currentPage == 0 {
			return
		}
		chunks = append(chunks, s.chunker.SplitPage(strings.Join(pageTexts, "\n\n"), currentPage)...)
		pageTexts = nil
	}

	for _, paragraph := range paragraphs {
		if paragraph.Page != currentPage {
			flush()
			currentPage = paragraph.Page
		}
		pageTexts = append(pageTexts, paragraph.Text)
	}
	flush()
	return chunks
}

// RemoveDocument deletes a document's chunks and stored file best-effort,
// then removes the record. Cleanup failures are logged but never block the
// record's deletion.
func (s *DocumentService) RemoveDocument(ctx context.Context, chatID, documentID uuid.UUID) error {
	document, err := s.store.GetDocumentInChat(chatID, documentID)
	if err != nil {
		return err
	}

	if err := s.index.DeleteWhere(ctx, vecstore.Metadata{"documentId": vecstore.Metadata{"$eq": documentID.String()}}); err != nil {
		s.log.Error().Err(err).Str("documentId", documentID.String()).Msg("Failed to delete document chunks from vector store")
	}
	if err := s.storage.DeleteObject(ctx, s.bucket, document.StorageKey); err != nil {
		s.log.Error().Err(err).Str("storageKey", document.StorageKey).Msg("Failed to delete stored document file")
	}

	return s.store.DeleteDocument(documentID)
}

// SignedDocumentURL returns a time-limited download URL for the original
// file.
func (s *DocumentService) SignedDocumentURL(chatID, documentID uuid.UUID) (string, error) {
	document, err := s.store.GetDocumentInChat(chatID, documentID)
	if err != nil {
		return "", err
	}
	return s.storage.SignedURL(s.bucket, document.StorageKey, s.signedURLTTL)
}
