package services

import (
	"context"
	"errors"
	"io"

	"realtorvoice/internal/auth"
	"realtorvoice/internal/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrUserNotFound         = errors.New("user not found")
	ErrNotificationNotFound = errors.New("notification not found")
	ErrEmailNotVerified     = errors.New("google account email is not verified")
	ErrPhotosUnavailable    = errors.New("photo uploads are not configured")
)

// AccountStore is the user persistence accounts need
type AccountStore interface {
	GetUser(ctx context.Context, userID string) (*models.User, error)
	UpsertOnSignIn(ctx context.Context, user *models.User) (*models.User, error)
	UpdatePhoto(ctx context.Context, userID, photoURL string) error
}

// NotificationFeed reads and updates the in-app feed
type NotificationFeed interface {
	ListNotifications(ctx context.Context, userID string, unreadOnly bool, limit int) ([]models.Notification, error)
	MarkRead(ctx context.Context, userID, id string) (bool, error)
}

// AccountService handles sign-in, profile and notification reads
type AccountService struct {
	users         AccountStore
	notifications NotificationFeed
	photos        PhotoUploader
	logger        *zap.Logger
}

// NewAccountService creates the account service. photos may be nil when
// uploads are not configured.
func NewAccountService(users AccountStore, notifications NotificationFeed, photos PhotoUploader, logger *zap.Logger) *AccountService {
	return &AccountService{users: users, notifications: notifications, photos: photos, logger: logger}
}

// SignIn creates or refreshes the user for a verified Google identity
func (s *AccountService) SignIn(ctx context.Context, info *auth.UserInfo) (*models.User, error) {
	if !info.EmailVerified {
		return nil, ErrEmailNotVerified
	}
	user, err := s.users.UpsertOnSignIn(ctx, &models.User{
		ID:          info.Sub,
		Email:       info.Email,
		DisplayName: info.Name,
		PhotoURL:    info.Picture,
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("user signed in", zap.String("user_id", user.ID))
	return user, nil
}

func (s *AccountService) GetUser(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.users.GetUser(ctx, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	return user, err
}

// UpdatePhoto uploads a new profile photo and stores its URL
func (s *AccountService) UpdatePhoto(ctx context.Context, userID string, file io.Reader, filename string, size int64) (string, error) {
	if s.photos == nil {
		return "", ErrPhotosUnavailable
	}
	if err := ValidatePhoto(filename, size); err != nil {
		return "", err
	}

	url, err := s.photos.UploadAgentPhoto(ctx, file, filename, userID)
	if err != nil {
		return "", err
	}
	if err := s.users.UpdatePhoto(ctx, userID, url); err != nil {
		return "", err
	}
	return url, nil
}

func (s *AccountService) ListNotifications(ctx context.Context, userID string, unreadOnly bool, limit int) ([]models.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.notifications.ListNotifications(ctx, userID, unreadOnly, limit)
}

func (s *AccountService) MarkNotificationRead(ctx context.Context, userID, id string) error {
	ok, err := s.notifications.MarkRead(ctx, userID, id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotificationNotFound
	}
	return nil
}
