package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"chat-sync/internal/friends"
	"chat-sync/internal/models"
)

// FriendRequestHandler manages friend request endpoints.
type FriendRequestHandler struct {
	friends *friends.Service
}

// NewFriendRequestHandler builds a FriendRequestHandler.
func NewFriendRequestHandler(friends *friends.Service) *FriendRequestHandler {
	return &FriendRequestHandler{friends: friends}
}

// ListPending returns the pending requests addressed to the caller.
func (h *FriendRequestHandler) ListPending(c *gin.Context) {
	sess, ok := currentSession(c)
	if !ok {
		return
	}

	reqs, err := h.friends.ListPending(c.Request.Context(), sess.UserID)
	if err != nil {
		respondError(c, err, "failed to load friend requests", nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": reqs})
}

// Send creates, or overwrites, a request from the caller to target_id.
func (h *FriendRequestHandler) Send(c *gin.Context) {
	sess, ok := currentSession(c)
	if !ok {
		return
	}
	var req struct {
		TargetID string `json:"target_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	created, err := h.friends.SendRequest(requestContext(c), sess.UserID, req.TargetID)
	if err != nil {
		respondError(c, err, "could not send friend request", nil)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"request": created})
}

// Accept accepts a request addressed to the caller.
func (h *FriendRequestHandler) Accept(c *gin.Context) {
	h.resolve(c, h.friends.Accept, "could not accept friend request")
}

// Reject rejects a request addressed to the caller.
func (h *FriendRequestHandler) Reject(c *gin.Context) {
	h.resolve(c, h.friends.Reject, "could not reject friend request")
}

func (h *FriendRequestHandler) resolve(c *gin.Context, apply func(context.Context, string) (models.FriendRequest, error), message string) {
	sess, ok := currentSession(c)
	if !ok {
		return
	}
	requestID := c.Param("request_id")

	current, err := h.friends.Get(c.Request.Context(), requestID)
	if err != nil {
		respondError(c, err, "friend request not found", nil)
		return
	}
	if current.ReceiverID != sess.UserID {
		c.JSON(http.StatusForbidden, gin.H{"error": "only the receiver can resolve a friend request"})
		return
	}

	resolved, err := apply(requestContext(c), requestID)
	if err != nil {
		respondError(c, err, message, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"request": resolved})
}
