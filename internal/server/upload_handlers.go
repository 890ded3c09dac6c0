package server

import (
	"io"

	"inkwell/internal/models"
	"inkwell/internal/service"

	"github.com/gofiber/fiber/v2"
)

// UploadImage handles POST /api/uploads/images
// @Summary Upload an image
// @Description jpeg, png or gif; stored as a bounded JPEG plus a WebP copy
// @Tags uploads
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param image formData file true "Image file"
// @Param category formData string false "post or profile"
// @Success 201 {object} service.UploadResult
// @Failure 400 {object} models.ErrorResponse
// @Router /uploads/images [post]
func (s *Server) UploadImage(c *fiber.Ctx) error {
	file, err := c.FormFile("image")
	if err != nil {
		return models.NewValidationError("No file uploaded")
	}

	src, err := file.Open()
	if err != nil {
		return models.NewValidationError("Unable to read uploaded file")
	}
	defer func() { _ = src.Close() }()

	content, err := io.ReadAll(src)
	if err != nil {
		return models.NewValidationError("Unable to read uploaded file")
	}

	result, err := s.uploadService.UploadImage(c.UserContext(), service.UploadImageInput{
		Actor:    actor(c),
		Category: c.FormValue("category"),
		Content:  content,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(result)
}

// PresignUpload handles GET /api/uploads/presign
// @Summary Presigned upload URL
// @Description Only available with S3 storage
// @Tags uploads
// @Produce json
// @Security BearerAuth
// @Param fileName query string true "Original file name"
// @Param fileType query string true "MIME type"
// @Param category query string false "post or profile"
// @Success 200 {object} service.PresignResult
// @Failure 400 {object} models.ErrorResponse
// @Router /uploads/presign [get]
func (s *Server) PresignUpload(c *fiber.Ctx) error {
	result, err := s.uploadService.Presign(c.UserContext(), service.PresignInput{
		Actor:    actor(c),
		FileName: c.Query("fileName"),
		FileType: c.Query("fileType"),
		Category: c.Query("category"),
	})
	if err != nil {
		return err
	}
	return c.JSON(result)
}
