package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"chat-sync/internal/conversation"
	"chat-sync/internal/convid"
	"chat-sync/internal/docstore"
	"chat-sync/internal/friends"
	"chat-sync/internal/repositories"
)

// respondError maps workflow errors onto responses. Write failures carry the
// alert flag the client shows as a blocking alert.
func respondError(c *gin.Context, err error, message string, extra gin.H) {
	body := gin.H{"error": message}
	for k, v := range extra {
		body[k] = v
	}
	_ = c.Error(err)

	switch {
	case errors.Is(err, docstore.ErrWriteFailure):
		body["alert"] = true
		c.JSON(http.StatusBadGateway, body)
	case errors.Is(err, convid.ErrInvalidIdentifier),
		errors.Is(err, friends.ErrSelfRequest),
		errors.Is(err, conversation.ErrEmptyMessage):
		body["error"] = err.Error()
		c.JSON(http.StatusBadRequest, body)
	case errors.Is(err, repositories.ErrInvalidTransition),
		errors.Is(err, repositories.ErrAlreadyFriends):
		body["error"] = err.Error()
		c.JSON(http.StatusConflict, body)
	case errors.Is(err, docstore.ErrNotFound):
		c.JSON(http.StatusNotFound, body)
	default:
		c.JSON(http.StatusInternalServerError, body)
	}
}
