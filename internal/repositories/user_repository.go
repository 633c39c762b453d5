package repositories

import (
	"context"
	"errors"
	"fmt"

	"chat-sync/internal/docstore"
	"chat-sync/internal/models"
)

var ErrUserNotFound = fmt.Errorf("user: %w", docstore.ErrNotFound)

// UserRepository abstracts profile persistence.
type UserRepository interface {
	EnsureProfile(ctx context.Context, user models.User) (models.User, error)
	GetUser(ctx context.Context, userID string) (models.User, error)
	FindByEmail(ctx context.Context, email string) ([]models.User, error)
	UpdateProfilePicture(ctx context.Context, userID string, url string) error
}

// UserRepo is a docstore implementation of UserRepository.
type UserRepo struct {
	store docstore.Store
}

// NewUserRepo constructs a UserRepo.
func NewUserRepo(store docstore.Store) *UserRepo {
	return &UserRepo{store: store}
}

// EnsureProfile creates the profile on first use and returns the stored one
// otherwise. A missing picture gets the default.
func (r *UserRepo) EnsureProfile(ctx context.Context, user models.User) (models.User, error) {
	if user.ProfilePicURL == "" {
		user.ProfilePicURL = models.DefaultProfilePicURL
	}
	if user.DisplayName == "" {
		user.DisplayName = user.Email
	}

	var stored models.User
	err := r.store.RunTransaction(ctx, func(tx docstore.Tx) error {
		doc, err := tx.Get(UsersCollection, user.ID)
		if err == nil {
			return decodeUser(doc, &stored)
		}
		if !docstore.IsNotFound(err) {
			return err
		}
		stored = user
		return tx.Upsert(UsersCollection, user.ID, userFields(user), false)
	})
	if err != nil {
		return models.User{}, docstore.WrapWrite("ensure profile", UsersCollection, user.ID, err)
	}
	return stored, nil
}

// GetUser fetches a profile by id.
func (r *UserRepo) GetUser(ctx context.Context, userID string) (models.User, error) {
	doc, err := r.store.Get(ctx, UsersCollection, userID)
	if docstore.IsNotFound(err) {
		return models.User{}, ErrUserNotFound
	}
	if err != nil {
		return models.User{}, err
	}
	var user models.User
	err = decodeUser(doc, &user)
	return user, err
}

// FindByEmail returns the profiles registered with an exact email.
func (r *UserRepo) FindByEmail(ctx context.Context, email string) ([]models.User, error) {
	docs, err := r.store.Query(ctx, docstore.Query{Collection: UsersCollection}.Where("email", email))
	if err != nil {
		return nil, err
	}
	users := make([]models.User, 0, len(docs))
	for _, doc := range docs {
		var user models.User
		if err := decodeUser(doc, &user); err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, nil
}

// UpdateProfilePicture changes the only mutable profile field.
func (r *UserRepo) UpdateProfilePicture(ctx context.Context, userID string, url string) error {
	err := r.store.Update(ctx, UsersCollection, userID, docstore.Fields{"profilePicUrl": url})
	if errors.Is(err, docstore.ErrNotFound) {
		return ErrUserNotFound
	}
	return err
}

func userFields(u models.User) docstore.Fields {
	return docstore.Fields{
		"userId":        u.ID,
		"displayName":   u.DisplayName,
		"email":         u.Email,
		"profilePicUrl": u.ProfilePicURL,
	}
}

func decodeUser(doc docstore.Document, u *models.User) error {
	if err := docstore.Decode(doc.Data, u); err != nil {
		return err
	}
	if u.ID == "" {
		u.ID = doc.ID
	}
	return nil
}
