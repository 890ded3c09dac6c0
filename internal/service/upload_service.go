package service

import (
	"context"
	"path"
	"strings"
	"time"

	"inkwell/internal/auth"
	"inkwell/internal/models"
	"inkwell/internal/observability"
	"inkwell/internal/storage"
)

const presignExpiry = 15 * time.Minute

type UploadService struct {
	store     storage.Store
	presigner storage.Presigner
	maxBytes  int64
}

type UploadImageInput struct {
	Actor    auth.Identity
	Category string
	Content  []byte
}

// UploadResult locates a stored image and its WebP sibling.
type UploadResult struct {
	URL     string `json:"url"`
	WebPURL string `json:"webp_url"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
}

type PresignInput struct {
	Actor    auth.Identity
	FileName string
	FileType string
	Category string
}

type PresignResult struct {
	UploadURL string `json:"upload_url"`
	FileName  string `json:"file_name"`
}

// NewUploadService stores processed images in store. presigner is nil when
// direct uploads are not available.
func NewUploadService(store storage.Store, presigner storage.Presigner, maxBytes int64) *UploadService {
	return &UploadService{store: store, presigner: presigner, maxBytes: maxBytes}
}

// UploadImage re-encodes an image and stores the JPEG master and WebP sibling
// under one random base name.
func (s *UploadService) UploadImage(ctx context.Context, in UploadImageInput) (*UploadResult, error) {
	if in.Actor.UserID == 0 {
		return nil, models.NewUnauthorizedError("Authorization required")
	}
	category, err := storage.ParseCategory(in.Category)
	if err != nil {
		return nil, err
	}

	processed, err := storage.Process(in.Content, s.maxBytes)
	if err != nil {
		observability.UploadsTotal.WithLabelValues(s.store.Name(), "rejected").Inc()
		return nil, err
	}

	key := storage.ObjectKey(category, ".jpg")
	jpgURL, err := s.store.Put(ctx, key, processed.JPEG, "image/jpeg")
	if err != nil {
		observability.UploadsTotal.WithLabelValues(s.store.Name(), "failed").Inc()
		return nil, models.NewInternalError(err)
	}
	webpKey := strings.TrimSuffix(key, path.Ext(key)) + ".webp"
	webpURL, err := s.store.Put(ctx, webpKey, processed.WebP, "image/webp")
	if err != nil {
		_ = s.store.Delete(ctx, key)
		observability.UploadsTotal.WithLabelValues(s.store.Name(), "failed").Inc()
		return nil, models.NewInternalError(err)
	}

	observability.UploadsTotal.WithLabelValues(s.store.Name(), "stored").Inc()
	return &UploadResult{URL: jpgURL, WebPURL: webpURL, Width: processed.Width, Height: processed.Height}, nil
}

// Presign returns a URL the client can PUT the file to directly. The
// extension is taken from the declared type, never from the file name.
func (s *UploadService) Presign(ctx context.Context, in PresignInput) (*PresignResult, error) {
	if in.Actor.UserID == 0 {
		return nil, models.NewUnauthorizedError("Authorization required")
	}
	if s.presigner == nil {
		return nil, models.NewValidationError("Direct uploads require S3 storage")
	}
	if strings.TrimSpace(in.FileName) == "" || strings.TrimSpace(in.FileType) == "" {
		return nil, models.NewValidationError("fileName and fileType are required")
	}
	fileType := strings.ToLower(strings.TrimSpace(in.FileType))
	ext := storage.ExtensionFor(fileType)
	if ext == "" {
		return nil, models.NewValidationError("Only jpeg, png and gif images are allowed")
	}
	category, err := storage.ParseCategory(in.Category)
	if err != nil {
		return nil, err
	}

	key := storage.ObjectKey(category, ext)
	uploadURL, err := s.presigner.PresignPut(ctx, key, fileType, presignExpiry)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return &PresignResult{UploadURL: uploadURL, FileName: key}, nil
}
