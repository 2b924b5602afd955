package api

import (
	"io"
	"net/http"

	"docuchat_go_backend/internal/auth"
	apperrors "docuchat_go_backend/internal/errors"
	"docuchat_go_backend/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func SetupRoutes(r *gin.Engine, chatService *services.ChatService, store services.ChatStore) {
	api := r.Group("/api")
	{
		api.POST("/chat", auth.AuthMiddleware(store), createChatHandler(chatService))
		api.GET("/chats", auth.AuthMiddleware(store), listChatsHandler(chatService))
		api.GET("/chat/:chatId", auth.AuthMiddleware(store), getChatHandler(chatService))
		api.DELETE("/chat/:chatId", auth.AuthMiddleware(store), deleteChatHandler(chatService))

		api.POST("/chat/message", auth.AuthMiddleware(store), sendMessageHandler(chatService))
		api.POST("/chat/stream-session", auth.AuthMiddleware(store), createStreamSessionHandler(chatService))
		api.GET("/chat/:chatId/stream", streamMessageHandler(chatService))

		api.POST("/chat/:chatId/documents", auth.AuthMiddleware(store), uploadDocumentsHandler(chatService))
		api.DELETE("/chat/:chatId/documents/:documentId", auth.AuthMiddleware(store), removeDocumentHandler(chatService))
		api.GET("/chat/:chatId/documents/:documentId/url", auth.AuthMiddleware(store), documentURLHandler(chatService))

		api.PATCH("/chat/:chatId/messages/:messageId/feedback", auth.AuthMiddleware(store), messageFeedbackHandler(chatService))
	}
}

func currentUserOrAbort(c *gin.Context) (uuid.UUID, bool) {
	user, ok := auth.CurrentUser(c)
	if !ok {
		apperrors.HandleError(c, apperrors.New401Error())
		return uuid.Nil, false
	}
	return user.ID, true
}

func parseIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		apperrors.HandleError(c, apperrors.New400Error("Invalid "+name))
		return uuid.Nil, false
	}
	return id, true
}

type messageRequest struct {
	ChatID              string              `json:"chatId" binding:"required"`
	Message             string              `json:"message" binding:"required"`
	SelectedDocumentIDs []string            `json:"selectedDocumentIds"`
	PageFocus           *services.PageFocus `json:"pageFocus"`
}

func sendMessageHandler(chatService *services.ChatService) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserOrAbort(c)
		if !ok {
			return
		}

		var request messageRequest
		if err := c.ShouldBindJSON(&request); err != nil {
			apperrors.HandleError(c, apperrors.New400Error(err.Error()))
			return
		}
		ref, err := services.ParseChatRef(request.ChatID)
		if err != nil {
			apperrors.HandleError(c, err)
			return
		}

		result, err := chatService.SendMessage(c.Request.Context(), ref, userID, request.Message, request.SelectedDocumentIDs, request.PageFocus)
		if err != nil {
			apperrors.HandleError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"message": "Message sent successfully",
			"data":    result,
		})
	}
}

func createStreamSessionHandler(chatService *services.ChatService) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserOrAbort(c)
		if !ok {
			return
		}

		var request messageRequest
		if err := c.ShouldBindJSON(&request); err != nil {
			apperrors.HandleError(c, apperrors.New400Error(err.Error()))
			return
		}
		ref, err := services.ParseChatRef(request.ChatID)
		if err != nil {
			apperrors.HandleError(c, err)
			return
		}

		sessionID, err := chatService.CreateStreamSession(
			c.Request.Context(), ref, userID, request.Message,
			c.GetString(auth.ContextTokenKey), request.SelectedDocumentIDs, request.PageFocus)
		if err != nil {
			apperrors.HandleError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"message": "Stream session created",
			"data":    gin.H{"streamSessionId": sessionID},
		})
	}
}

func createChatHandler(chatService *services.ChatService) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserOrAbort(c)
		if !ok {
			return
		}

		// The body is optional; clients that pre-generate ids send one.
		var request struct {
			ChatID *uuid.UUID `json:"chatId"`
		}
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&request); err != nil {
				apperrors.HandleError(c, apperrors.New400Error("Invalid chatId"))
				return
			}
		}

		chat, err := chatService.CreateChat(userID, request.ChatID)
		if err != nil {
			apperrors.HandleError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"data": chat})
	}
}

func listChatsHandler(chatService *services.ChatService) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserOrAbort(c)
		if !ok {
			return
		}
		chats, err := chatService.GetChats(userID)
		if err != nil {
			apperrors.HandleError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": chats})
	}
}

func getChatHandler(chatService *services.ChatService) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserOrAbort(c)
		if !ok {
			return
		}
		chatID, ok := parseIDParam(c, "chatId")
		if !ok {
			return
		}
		chat, err := chatService.GetChat(chatID, userID)
		if err != nil {
			apperrors.HandleError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": chat})
	}
}

func deleteChatHandler(chatService *services.ChatService) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserOrAbort(c)
		if !ok {
			return
		}
		chatID, ok := parseIDParam(c, "chatId")
		if !ok {
			return
		}
		if err := chatService.DeleteChat(c.Request.Context(), chatID, userID); err != nil {
			apperrors.HandleError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Chat deleted successfully"})
	}
}

func uploadDocumentsHandler(chatService *services.ChatService) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserOrAbort(c)
		if !ok {
			return
		}
		ref, err := services.ParseChatRef(c.Param("chatId"))
		if err != nil {
			apperrors.HandleError(c, err)
			return
		}

		form, err := c.MultipartForm()
		if err != nil {
			apperrors.HandleError(c, apperrors.New400Error("Failed to parse multipart form"))
			return
		}

		var files []services.UploadFile
		for _, header := range form.File["files"] {
			file, err := header.Open()
			if err != nil {
				apperrors.HandleError(c, apperrors.New400Error("Failed to read file "+header.Filename))
				return
			}
			data, err := io.ReadAll(file)
			file.Close()
			if err != nil {
				apperrors.HandleError(c, apperrors.New400Error("Failed to read file "+header.Filename))
				return
			}
			files = append(files, services.UploadFile{
				Name:        header.Filename,
				ContentType: header.Header.Get("Content-Type"),
				Size:        header.Size,
				Data:        data,
			})
		}

		chatID, result, err := chatService.UploadDocuments(c.Request.Context(), ref, userID, files)
		if err != nil {
			apperrors.HandleError(c, err)
			return
		}

		message := "All files uploaded successfully"
		if len(result.Failed) > 0 {
			message = "Some files failed to upload"
		}
		c.JSON(http.StatusOK, gin.H{
			"message": message,
			"chatId":  chatID,
			"data":    result,
		})
	}
}

func removeDocumentHandler(chatService *services.ChatService) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserOrAbort(c)
		if !ok {
			return
		}
		chatID, ok := parseIDParam(c, "chatId")
		if !ok {
			return
		}
		documentID, ok := parseIDParam(c, "documentId")
		if !ok {
			return
		}
		if err := chatService.RemoveDocument(c.Request.Context(), chatID, documentID, userID); err != nil {
			apperrors.HandleError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Document removed successfully"})
	}
}

func documentURLHandler(chatService *services.ChatService) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserOrAbort(c)
		if !ok {
			return
		}
		chatID, ok := parseIDParam(c, "chatId")
		if !ok {
			return
		}
		documentID, ok := parseIDParam(c, "documentId")
		if !ok {
			return
		}
		url, err := chatService.SignedDocumentURL(chatID, documentID, userID)
		if err != nil {
			apperrors.HandleError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": gin.H{"url": url}})
	}
}

func messageFeedbackHandler(chatService *services.ChatService) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserOrAbort(c)
		if !ok {
			return
		}
		chatID, ok := parseIDParam(c, "chatId")
		if !ok {
			return
		}
		messageID, ok := parseIDParam(c, "messageId")
		if !ok {
			return
		}

		var request struct {
			Helpful *bool `json:"helpful"`
		}
		if err := c.ShouldBindJSON(&request); err != nil {
			apperrors.HandleError(c, apperrors.New400Error(err.Error()))
			return
		}
		if err := chatService.UpdateMessageFeedback(chatID, messageID, userID, request.Helpful); err != nil {
			apperrors.HandleError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Feedback recorded"})
	}
}
