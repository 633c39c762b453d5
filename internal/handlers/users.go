package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"chat-sync/internal/models"
	"chat-sync/internal/repositories"
)

// UserHandler serves profile search and updates.
type UserHandler struct {
	users repositories.UserRepository
}

// NewUserHandler builds a UserHandler.
func NewUserHandler(users repositories.UserRepository) *UserHandler {
	return &UserHandler{users: users}
}

// Search finds other users by exact email.
func (h *UserHandler) Search(c *gin.Context) {
	sess, ok := currentSession(c)
	if !ok {
		return
	}
	email := c.Query("email")
	if email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email is required"})
		return
	}

	found, err := h.users.FindByEmail(c.Request.Context(), email)
	if err != nil {
		respondError(c, err, "failed to search users", nil)
		return
	}

	users := make([]models.User, 0, len(found))
	for _, u := range found {
		if u.ID != sess.UserID {
			users = append(users, u)
		}
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}

// UpdateProfilePicture replaces the caller's profile picture.
func (h *UserHandler) UpdateProfilePicture(c *gin.Context) {
	sess, ok := currentSession(c)
	if !ok {
		return
	}
	var req struct {
		URL string `json:"url" binding:"required,url"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.users.UpdateProfilePicture(c.Request.Context(), sess.UserID, req.URL); err != nil {
		respondError(c, err, "could not update profile picture", nil)
		return
	}

	profile := sess.Profile()
	profile.ProfilePicURL = req.URL
	sess.SetProfile(profile)
	c.JSON(http.StatusOK, gin.H{"user": profile})
}
