package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"realtorvoice/internal/config"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
)

// MaxPhotoSize bounds agent photo uploads
const MaxPhotoSize = 5 << 20

var (
	ErrInvalidImageType = errors.New("invalid file type, allowed types: jpg, jpeg, png, gif, webp")
	ErrImageTooLarge    = errors.New("image exceeds the 5MB limit")
)

var allowedImageTypes = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
}

// PhotoUploader stores an agent's profile photo and returns its public URL
type PhotoUploader interface {
	UploadAgentPhoto(ctx context.Context, file io.Reader, filename, userID string) (string, error)
}

// ImageService uploads agent photos to Cloudinary
type ImageService struct {
	cld *cloudinary.Cloudinary
}

func NewImageService(cfg config.Config) (*ImageService, error) {
	if cfg.CloudinaryCloudName == "" || cfg.CloudinaryAPIKey == "" || cfg.CloudinaryAPISecret == "" {
		return nil, fmt.Errorf("missing Cloudinary configuration")
	}
	cld, err := cloudinary.NewFromParams(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Cloudinary: %w", err)
	}
	return &ImageService{cld: cld}, nil
}

// ValidatePhoto checks the file extension and size of an upload
func ValidatePhoto(filename string, size int64) error {
	if !allowedImageTypes[strings.ToLower(filepath.Ext(filename))] {
		return ErrInvalidImageType
	}
	if size > MaxPhotoSize {
		return ErrImageTooLarge
	}
	return nil
}

// UploadAgentPhoto replaces the agent's photo, cropped square around the face
func (s *ImageService) UploadAgentPhoto(ctx context.Context, file io.Reader, filename, userID string) (string, error) {
	if !allowedImageTypes[strings.ToLower(filepath.Ext(filename))] {
		return "", ErrInvalidImageType
	}

	overwrite := true
	result, err := s.cld.Upload.Upload(ctx, file, uploader.UploadParams{
		PublicID:       "agent_" + userID,
		Folder:         "realtorvoice/agents",
		Overwrite:      &overwrite,
		ResourceType:   "image",
		Transformation: "c_fill,g_face,h_400,w_400/q_auto,f_auto",
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload image: %w", err)
	}
	if result.Error.Message != "" {
		return "", fmt.Errorf("cloudinary rejected upload: %s", result.Error.Message)
	}
	return result.SecureURL, nil
}
