package handlers

import (
	"errors"
	"fmt"
	"mime"
	"mime/multipart"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/syndromed/backend/internal/models"
	"github.com/syndromed/backend/internal/storage"
	"gorm.io/gorm"
)

func parseIDParam(c *fiber.Ctx, name string) (uint, error) {
	value, err := strconv.ParseUint(strings.TrimSpace(c.Params(name)), 10, 32)
	if err != nil {
		return 0, err
	}
	return uint(value), nil
}

// isDuplicateKeyError translates storage-level unique violations so a
// concurrent duplicate registration surfaces as the same duplicate error as
// the pre-check, never as a raw constraint failure.
func isDuplicateKeyError(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "unique constraint")
}

func getRequestID(c *fiber.Ctx) string {
	if value := c.Locals("requestID"); value != nil {
		if id, ok := value.(string); ok {
			return id
		}
	}
	return ""
}

func actorRef(p *models.Principal) (models.PrincipalKind, *uint) {
	if p == nil {
		return "", nil
	}
	id := p.ID
	return p.Kind, &id
}

// storeImage writes the upload to the blob store and returns the object name
// and retrievable URL. Callers must delete the object if the row insert that
// follows fails.
func storeImage(c *fiber.Ctx, blobStore storage.BlobStore, fileHeader *multipart.FileHeader, prefix string) (string, string, error) {
	stream, err := fileHeader.Open()
	if err != nil {
		return "", "", err
	}
	defer stream.Close()

	filename := filepath.Base(strings.TrimSpace(fileHeader.Filename))
	contentType := fileHeader.Header.Get("Content-Type")
	if contentType == "" {
		contentType = mime.TypeByExtension(filepath.Ext(filename))
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	objectName := fmt.Sprintf("%s/%s/%s", prefix, uuid.New().String(), filename)
	url, err := blobStore.Put(c.Context(), objectName, stream, fileHeader.Size, contentType)
	if err != nil {
		return "", "", err
	}
	return objectName, url, nil
}
